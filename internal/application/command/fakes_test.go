package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY STORE
// ══════════════════════════════════════════════════════════════════════════════

type memStore struct {
	mu      sync.Mutex
	users   map[user.ID]user.User
	quests  map[quest.ID]quest.Quest
	msgs    []chat.Message
	nextID  int64
	failOn  string // имя операции, которая вернёт ошибку
	updates int
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[user.ID]user.User),
		quests: make(map[quest.ID]quest.Quest),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return shared.WrapError("mem", op, shared.ErrPersistence, "injected", nil)
	}
	return nil
}

func cloneQuest(q quest.Quest) *quest.Quest {
	q.Tasks = append([]string(nil), q.Tasks...)
	q.Completed = append(quest.TaskSet{}, q.Completed...)
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		q.CompletedAt = &t
	}
	return &q
}

func (s *memStore) addUser(tg int64, name string) *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user.User{ID: user.ID(s.id()), TelegramID: user.TelegramID(tg), FirstName: name, Level: 1}
	s.users[u.ID] = u
	return &u
}

func (s *memStore) snapshot() (map[user.ID]user.User, map[quest.ID]quest.Quest) {
	users := make(map[user.ID]user.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	quests := make(map[quest.ID]quest.Quest, len(s.quests))
	for k, v := range s.quests {
		quests[k] = *cloneQuest(v)
	}
	return users, quests
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.users {
		if existing.TelegramID == u.TelegramID {
			return shared.ErrUserExists
		}
	}
	u.ID = user.ID(r.s.id())
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(ctx context.Context, id user.ID) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) GetByTelegramID(ctx context.Context, id user.TelegramID) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.TelegramID == id {
			u := u
			return &u, nil
		}
	}
	return nil, shared.ErrUserNotFound
}

func (r memUsers) Update(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.Update"); err != nil {
		return err
	}
	r.s.updates++
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) List(ctx context.Context, opts user.ListOptions) ([]*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.List"); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(r.s.users))
	for id := range r.s.users {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	out := []*user.User{}
	for i := opts.Offset; i < len(ids) && len(out) < opts.Limit; i++ {
		u := r.s.users[user.ID(ids[i])]
		out = append(out, &u)
	}
	return out, nil
}

func (r memUsers) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.users), nil
}

func (r memUsers) AverageLevel(ctx context.Context) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.users) == 0 {
		return 0, nil
	}
	sum := 0
	for _, u := range r.s.users {
		sum += u.Level
	}
	return float64(sum) / float64(len(r.s.users)), nil
}

type memQuests struct{ s *memStore }

func (r memQuests) Create(ctx context.Context, q *quest.Quest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("quests.Create"); err != nil {
		return err
	}
	q.ID = quest.ID(r.s.id())
	r.s.quests[q.ID] = *cloneQuest(*q)
	return nil
}

func (r memQuests) GetByID(ctx context.Context, id quest.ID) (*quest.Quest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.quests[id]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	return cloneQuest(q), nil
}

func (r memQuests) ListByUser(ctx context.Context, userID user.ID, f quest.ListFilter) ([]*quest.Quest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*quest.Quest{}
	for _, q := range r.s.quests {
		if q.UserID != userID {
			continue
		}
		if f.Status != nil && q.Status != *f.Status {
			continue
		}
		if f.Type != nil && q.Type != *f.Type {
			continue
		}
		out = append(out, cloneQuest(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memQuests) LatestPending(ctx context.Context, userID user.ID, t quest.Type) (*quest.Quest, error) {
	st := quest.StatusPending
	list, err := r.ListByUser(ctx, userID, quest.ListFilter{Status: &st, Type: &t, Limit: 1})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r memQuests) ListPendingCreatedUntil(ctx context.Context, t quest.Type, until time.Time, limit int) ([]*quest.Quest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*quest.Quest{}
	for _, q := range r.s.quests {
		if q.Type == t && q.Status == quest.StatusPending && !q.CreatedAt.After(until) {
			out = append(out, cloneQuest(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memQuests) Update(ctx context.Context, q *quest.Quest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("quests.Update"); err != nil {
		return err
	}
	if _, ok := r.s.quests[q.ID]; !ok {
		return shared.ErrQuestNotFound
	}
	r.s.updates++
	r.s.quests[q.ID] = *cloneQuest(*q)
	return nil
}

func (r memQuests) FailIfPending(ctx context.Context, id quest.ID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("quests.FailIfPending"); err != nil {
		return false, err
	}
	q, ok := r.s.quests[id]
	if !ok || q.Status != quest.StatusPending {
		return false, nil
	}
	q.Status = quest.StatusFailed
	q.CompletedAt = nil
	r.s.updates++
	r.s.quests[id] = q
	return true, nil
}

func (r memQuests) CountByStatus(ctx context.Context) (quest.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := quest.StatusCounts{}
	for _, q := range r.s.quests {
		out[q.Status]++
	}
	return out, nil
}

// memUoW откатывает все изменения, если fn вернула ошибку.
type memUoW struct{ s *memStore }

func (u memUoW) Do(ctx context.Context, fn func(ctx context.Context, s quest.Stores) error) error {
	u.s.mu.Lock()
	users, quests := u.s.snapshot()
	u.s.mu.Unlock()

	err := fn(ctx, quest.Stores{Quests: memQuests{u.s}, Users: memUsers{u.s}})
	if err != nil {
		u.s.mu.Lock()
		u.s.users, u.s.quests = users, quests
		u.s.mu.Unlock()
	}
	return err
}

type memChat struct{ s *memStore }

func (r memChat) Save(ctx context.Context, m *chat.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("chat.Save"); err != nil {
		return err
	}
	m.ID = r.s.id()
	r.s.msgs = append(r.s.msgs, *m)
	return nil
}

func (r memChat) ListRecent(ctx context.Context, userID user.ID, limit int) ([]*chat.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*chat.Message{}
	for i := range r.s.msgs {
		if r.s.msgs[i].UserID == userID {
			m := r.s.msgs[i]
			out = append(out, &m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MOCKS
// ══════════════════════════════════════════════════════════════════════════════

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate(ctx context.Context, req quest.GenerateRequest) (*quest.Generated, error) {
	args := m.Called(ctx, req)
	g, _ := args.Get(0).(*quest.Generated)
	return g, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyQuestIssued(ctx context.Context, u *user.User, q *quest.Quest) error {
	return m.Called(ctx, u, q).Error(0)
}
