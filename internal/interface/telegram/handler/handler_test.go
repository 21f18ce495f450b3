package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeLister struct {
	got    query.ListQuestsQuery
	quests []quest.Snapshot
}

func (f *fakeLister) Handle(_ context.Context, q query.ListQuestsQuery) (*query.ListQuestsResult, error) {
	f.got = q
	return &query.ListQuestsResult{Quests: f.quests}, nil
}

type fakeGate struct{ decision quest.Decision }

func (f *fakeGate) Handle(_ context.Context, q query.CanIssueQuestQuery) (quest.Decision, error) {
	d := f.decision
	d.Type = q.Type
	return d, nil
}

type fakeIssuer struct {
	calls  int
	result *command.IssueQuestResult
	err    error
}

func (f *fakeIssuer) Handle(_ context.Context, _ command.IssueQuestCommand) (*command.IssueQuestResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStats struct{ err error }

func (f *fakeStats) Handle(_ context.Context, _ query.AdminStatsQuery) (*query.AdminStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &query.AdminStats{TotalUsers: 2}, nil
}

type fakeHistory struct{ limit int }

func (f *fakeHistory) Handle(_ context.Context, q query.ChatHistoryQuery) ([]*chat.Message, error) {
	f.limit = q.Limit
	return nil, nil
}

func testQuest(t quest.Type) *quest.Quest {
	return &quest.Quest{
		ID:         5,
		UserID:     1,
		Title:      "Утро воина",
		Type:       t,
		Difficulty: quest.DifficultyEasy,
		Tasks:      []string{"отжимания", "вода"},
		Completed:  quest.NewTaskSet(),
		Status:     quest.StatusPending,
		CreatedAt:  time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testRequest() Request {
	return Request{TelegramID: 42, ChatID: 42, User: &user.User{ID: 1, TelegramID: 42, FirstName: "Дана"}}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestStartHandler_InstallsMenu(t *testing.T) {
	resp, err := NewStartHandler().Handle(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, resp.Replies, 1)
	assert.Contains(t, resp.Replies[0].Text, "Дана")
	assert.NotNil(t, resp.Replies[0].Menu)
}

func TestMyQuestsHandler(t *testing.T) {
	lister := &fakeLister{}
	h := NewMyQuestsHandler(lister)

	resp, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, presenter.NoActiveQuests, resp.Replies[0].Text)
	require.NotNil(t, lister.got.Status)
	assert.Equal(t, quest.StatusPending, *lister.got.Status)

	lister.quests = []quest.Snapshot{testQuest(quest.TypeDaily).Snapshot(), testQuest(quest.TypeWeekly).Snapshot()}
	resp, err = h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, resp.Replies, 3)
	assert.Contains(t, resp.Replies[0].Text, "2")
	assert.NotNil(t, resp.Replies[1].Keyboard)
	assert.Len(t, resp.Replies[2].Keyboard.Rows, 2)
}

func TestGenerateHandler_GateDenied(t *testing.T) {
	issuer := &fakeIssuer{}
	h := NewGenerateHandler(quest.TypeDaily, &fakeGate{decision: quest.Decision{Hours: 3, Minutes: 10}}, issuer, nil)

	var progress []Reply
	req := testRequest()
	req.Progress = func(_ context.Context, r Reply) { progress = append(progress, r) }

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, resp.Replies[0].Text, "3ч 10мин")
	assert.Empty(t, progress)
	assert.Zero(t, issuer.calls)
}

func TestGenerateHandler_Issued(t *testing.T) {
	q := testQuest(quest.TypeWeekly)
	issuer := &fakeIssuer{result: &command.IssueQuestResult{Issued: true, Quest: q}}
	h := NewGenerateHandler(quest.TypeWeekly, &fakeGate{decision: quest.Decision{Allowed: true}}, issuer, nil)

	var progress []Reply
	req := testRequest()
	req.Progress = func(_ context.Context, r Reply) { progress = append(progress, r) }

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, presenter.Generating(quest.TypeWeekly), progress[0].Text)

	reply := resp.Replies[0]
	assert.Contains(t, reply.Text, "НОВЫЙ НЕДЕЛЬНЫЙ КВЕСТ")
	assert.Equal(t, presenter.ParseModeHTML, reply.ParseMode)
	require.NotNil(t, reply.Keyboard)
	assert.Equal(t, presenter.ToggleTaskData(5, 0), reply.Keyboard.Rows[0][0].CallbackData)
}

func TestGenerateHandler_GenerationFailure(t *testing.T) {
	issuer := &fakeIssuer{err: shared.Generation("Generate", "generator unavailable", errors.New("503"))}
	h := NewGenerateHandler(quest.TypeDaily, &fakeGate{decision: quest.Decision{Allowed: true}}, issuer, nil)

	resp, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, presenter.GenerationFailed, resp.Replies[0].Text)

	issuer.err = errors.New("db is gone")
	_, err = h.Handle(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestGenerateHandler_LostRace(t *testing.T) {
	issuer := &fakeIssuer{result: &command.IssueQuestResult{
		Decision: quest.Decision{Type: quest.TypeDaily, Hours: 23, Minutes: 59},
	}}
	h := NewGenerateHandler(quest.TypeDaily, &fakeGate{decision: quest.Decision{Allowed: true}}, issuer, nil)

	resp, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Contains(t, resp.Replies[0].Text, "23ч 59мин")
}

func TestAdminStatsHandler(t *testing.T) {
	resp, err := NewAdminStatsHandler(&fakeStats{}).Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Contains(t, resp.Replies[0].Text, "Всего пользователей: <b>2</b>")

	resp, err = NewAdminStatsHandler(&fakeStats{err: shared.ErrNotAdmin}).Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, presenter.AdminDenied, resp.Replies[0].Text)
}

func TestHistoryHandler_Limit(t *testing.T) {
	hist := &fakeHistory{}
	h := NewHistoryHandler(hist, time.UTC)

	tests := []struct {
		args string
		want int
	}{
		{"", defaultHistoryShown},
		{"5", 5},
		{"500", chat.DefaultHistoryLimit},
		{"abc", defaultHistoryShown},
		{"-3", defaultHistoryShown},
	}
	for _, tt := range tests {
		req := testRequest()
		req.Args = tt.args
		_, err := h.Handle(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, hist.limit, tt.args)
	}
}

func TestMenuMatch(t *testing.T) {
	m := NewMenu()

	tests := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{presenter.MenuMyQuests, CmdMyQuests, true},
		{presenter.MenuProfile, CmdProfile, true},
		{presenter.MenuWeekly, CmdWeekly, true},
		{"мои", CmdMyQuests, true},
		{"Недел", CmdWeekly, true},
		{"дейли", CmdDaily, true},
		{"история", CmdHistory, true},
		{"ку", "", false},
		{"zzzz", "", false},
	}
	for _, tt := range tests {
		cmd, ok := m.Match(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
	}
}
