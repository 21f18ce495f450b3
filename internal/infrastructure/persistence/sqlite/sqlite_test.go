package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 123456789, time.UTC)

func setupDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "questbot-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func createUser(t *testing.T, d *DB, tg int64) *user.User {
	t.Helper()
	u, err := user.NewUser(user.TelegramID(tg), "hero", "Арман", t0)
	require.NoError(t, err)
	require.NoError(t, NewUserRepository(d).Create(context.Background(), u))
	return u
}

func createQuest(t *testing.T, d *DB, u *user.User, qt quest.Type, created time.Time) *quest.Quest {
	t.Helper()
	diff := quest.DifficultyEasy
	if qt == quest.TypeWeekly {
		diff = quest.DifficultyMedium
	}
	q, err := quest.NewQuest(quest.NewQuestParams{
		UserID: u.ID, Title: "Утренняя разминка", Description: "Размяться",
		Tasks: []string{"10 отжиманий", "20 приседаний", "Стакан воды"}, Difficulty: diff, Type: qt,
	}, created)
	require.NoError(t, err)
	require.NoError(t, NewQuestRepository(d).Create(context.Background(), q))
	return q
}

func TestMigrations_Idempotent(t *testing.T) {
	d := setupDB(t)
	require.NoError(t, MigrateUp(d.SQL()))
	require.NoError(t, MigrateDown(d.SQL()))
	require.NoError(t, MigrateUp(d.SQL()))
}

func TestUserRepository(t *testing.T) {
	d := setupDB(t)
	repo := NewUserRepository(d)
	ctx := context.Background()

	u := createUser(t, d, 1001)
	assert.NotZero(t, u.ID)

	got, err := repo.GetByTelegramID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hero", got.Username)
	assert.Equal(t, 1, got.Level)
	assert.True(t, t0.Equal(got.CreatedAt))

	dup, _ := user.NewUser(1001, "other", "Other", t0)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrUserExists)

	got.Experience, got.Level = 25, 3
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, again.Experience)
	assert.Equal(t, 3, again.Level)

	_, err = repo.GetByID(ctx, 9999)
	assert.True(t, shared.IsNotFound(err))
	assert.ErrorIs(t, repo.Update(ctx, &user.User{ID: 9999, Level: 1}), shared.ErrUserNotFound)
}

func TestUserRepository_ListCountAverage(t *testing.T) {
	d := setupDB(t)
	repo := NewUserRepository(d)
	ctx := context.Background()

	avg, err := repo.AverageLevel(ctx)
	require.NoError(t, err)
	assert.Zero(t, avg)

	for i := int64(1); i <= 5; i++ {
		u := createUser(t, d, 100+i)
		u.Level = int(i)
		require.NoError(t, repo.Update(ctx, u))
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	avg, err = repo.AverageLevel(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, avg, 1e-9)

	page, err := repo.List(ctx, user.ListOptions{Offset: 3, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, user.TelegramID(104), page[0].TelegramID)
}

func TestQuestRepository_RoundTrip(t *testing.T) {
	d := setupDB(t)
	repo := NewQuestRepository(d)
	ctx := context.Background()
	u := createUser(t, d, 1)

	q := createQuest(t, d, u, quest.TypeDaily, t0)
	assert.NotZero(t, q.ID)

	_, err := q.ToggleTask(2, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, q))

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Tasks, got.Tasks)
	assert.Equal(t, quest.TaskSet{2}, got.Completed)
	assert.Equal(t, quest.StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, t0.Equal(got.CreatedAt))

	for _, idx := range []int{0, 1} {
		_, err := got.ToggleTask(idx, t0.Add(time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, repo.Update(ctx, got))

	done, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, t0.Add(time.Hour).Equal(*done.CompletedAt))

	_, err = repo.GetByID(ctx, 424242)
	assert.ErrorIs(t, err, shared.ErrQuestNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &quest.Quest{ID: 424242, Status: quest.StatusPending}), shared.ErrQuestNotFound)
}

func TestQuestRepository_CreateForUnknownUser(t *testing.T) {
	d := setupDB(t)
	q, err := quest.NewQuest(quest.NewQuestParams{
		UserID: 77, Title: "x", Tasks: []string{"a"}, Difficulty: quest.DifficultyEasy, Type: quest.TypeDaily,
	}, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, NewQuestRepository(d).Create(context.Background(), q), shared.ErrUserNotFound)
}

func TestQuestRepository_LatestPendingAndFilters(t *testing.T) {
	d := setupDB(t)
	repo := NewQuestRepository(d)
	ctx := context.Background()
	u := createUser(t, d, 1)

	latest, err := repo.LatestPending(ctx, u.ID, quest.TypeDaily)
	require.NoError(t, err)
	assert.Nil(t, latest)

	older := createQuest(t, d, u, quest.TypeDaily, t0)
	newer := createQuest(t, d, u, quest.TypeDaily, t0.Add(2*time.Hour))
	weekly := createQuest(t, d, u, quest.TypeWeekly, t0.Add(time.Hour))

	latest, err = repo.LatestPending(ctx, u.ID, quest.TypeDaily)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)

	require.NoError(t, newer.Fail())
	require.NoError(t, repo.Update(ctx, newer))
	latest, err = repo.LatestPending(ctx, u.ID, quest.TypeDaily)
	require.NoError(t, err)
	assert.Equal(t, older.ID, latest.ID)

	all, err := repo.ListByUser(ctx, u.ID, quest.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []quest.ID{newer.ID, weekly.ID, older.ID}, []quest.ID{all[0].ID, all[1].ID, all[2].ID})

	pending := quest.StatusPending
	weeklyType := quest.TypeWeekly
	filtered, err := repo.ListByUser(ctx, u.ID, quest.ListFilter{Status: &pending, Type: &weeklyType})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, weekly.ID, filtered[0].ID)

	limited, err := repo.ListByUser(ctx, u.ID, quest.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stale, err := repo.ListPendingCreatedUntil(ctx, quest.TypeDaily, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, older.ID, stale[0].ID)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[quest.StatusPending])
	assert.Equal(t, 1, counts[quest.StatusFailed])
	assert.Zero(t, counts[quest.StatusCompleted])
}

func TestQuestRepository_FailIfPending(t *testing.T) {
	d := setupDB(t)
	repo := NewQuestRepository(d)
	ctx := context.Background()
	u := createUser(t, d, 1)
	pending := createQuest(t, d, u, quest.TypeDaily, t0)
	done := createQuest(t, d, u, quest.TypeDaily, t0)

	for i := range done.Tasks {
		_, err := done.ToggleTask(i, t0.Add(time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, repo.Update(ctx, done))

	ok, err := repo.FailIfPending(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusFailed, got.Status)

	ok, err = repo.FailIfPending(ctx, done.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = repo.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.Completed.Len())

	ok, err = repo.FailIfPending(ctx, 424242)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuestRepository_ListPendingCutoffInclusive(t *testing.T) {
	d := setupDB(t)
	repo := NewQuestRepository(d)
	u := createUser(t, d, 1)
	q := createQuest(t, d, u, quest.TypeDaily, t0)

	stale, err := repo.ListPendingCreatedUntil(context.Background(), quest.TypeDaily, t0, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, q.ID, stale[0].ID)
}

func TestQuestRepository_RejectsCorruptedRow(t *testing.T) {
	d := setupDB(t)
	repo := NewQuestRepository(d)
	ctx := context.Background()
	u := createUser(t, d, 1)
	q := createQuest(t, d, u, quest.TypeDaily, t0)

	_, err := d.SQL().ExecContext(ctx, `UPDATE quests SET completed_tasks = '[0,7]' WHERE id = ?`, int64(q.ID))
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, q.ID)
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
	assert.Contains(t, err.Error(), "out of range")

	_, err = repo.ListByUser(ctx, u.ID, quest.ListFilter{})
	assert.True(t, shared.IsPersistence(err))
}

func TestChatRepository_ListRecentOldestFirst(t *testing.T) {
	d := setupDB(t)
	repo := NewChatRepository(d)
	ctx := context.Background()
	u := createUser(t, d, 1)
	other := createUser(t, d, 2)

	for i := 0; i < 5; i++ {
		m, err := chat.NewMessage(u.ID, fmt.Sprintf("msg-%d", i), i%2 == 0, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, m))
	}
	m, _ := chat.NewMessage(other.ID, "чужое", true, t0)
	require.NoError(t, repo.Save(ctx, m))

	msgs, err := repo.ListRecent(ctx, u.ID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg-2", msgs[0].Text)
	assert.Equal(t, "msg-4", msgs[2].Text)
	assert.True(t, msgs[0].IsFromUser)
	assert.False(t, msgs[1].IsFromUser)
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	u := createUser(t, d, 1)
	q := createQuest(t, d, u, quest.TypeDaily, t0)
	uow := NewUnitOfWork(d)

	boom := errors.New("boom")
	err := uow.Do(ctx, func(ctx context.Context, s quest.Stores) error {
		got, err := s.Quests.GetByID(ctx, q.ID)
		require.NoError(t, err)
		_, _ = got.ToggleTask(0, t0)
		require.NoError(t, s.Quests.Update(ctx, got))

		usr, err := s.Users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		usr.Experience = 50
		require.NoError(t, s.Users.Update(ctx, usr))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := NewQuestRepository(d).GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Completed)
	usr, err := NewUserRepository(d).GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, usr.Experience)

	err = uow.Do(ctx, func(ctx context.Context, s quest.Stores) error {
		got, err := s.Quests.GetByID(ctx, q.ID)
		if err != nil {
			return err
		}
		if _, err := got.ToggleTask(0, t0); err != nil {
			return err
		}
		return s.Quests.Update(ctx, got)
	})
	require.NoError(t, err)

	after, err = NewQuestRepository(d).GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, after.IsTaskCompleted(0))
}

func TestUnitOfWork_KeepsDomainErrors(t *testing.T) {
	d := setupDB(t)
	uow := NewUnitOfWork(d)

	err := uow.Do(context.Background(), func(ctx context.Context, s quest.Stores) error {
		_, err := s.Quests.GetByID(ctx, 424242)
		return err
	})
	assert.ErrorIs(t, err, shared.ErrQuestNotFound)
	assert.False(t, shared.IsPersistence(err))
}

func TestUnitOfWork_BeginFailureIsPersistence(t *testing.T) {
	d := setupDB(t)
	require.NoError(t, d.Close())

	err := NewUnitOfWork(d).Do(context.Background(), func(ctx context.Context, s quest.Stores) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
}
