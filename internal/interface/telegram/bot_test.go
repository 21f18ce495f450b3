package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/user"
	"github.com/questforge/questbot/internal/infrastructure/external/telegram"
	"github.com/questforge/questbot/internal/interface/telegram/handler"
	"github.com/questforge/questbot/internal/interface/telegram/handler/callback"
	"github.com/questforge/questbot/internal/interface/telegram/middleware"
	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type answer struct {
	text  string
	alert bool
}

type edit struct {
	chatID, messageID int64
	text              string
	keyboard          *telegram.InlineKeyboardMarkup
}

type fakeAPI struct {
	mu      sync.Mutex
	sent    []telegram.SendMessageParams
	edits   []edit
	answers []answer
}

func (f *fakeAPI) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, chatID, messageID int64, text, _ string, kb *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit{chatID: chatID, messageID: messageID, text: text, keyboard: kb})
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, _ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{text: text, alert: alert})
	return nil
}

func (f *fakeAPI) GetMe(context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, Username: "quest_bot", IsBot: true}, nil
}

func (f *fakeAPI) StartPolling(ctx context.Context, _ int, _ telegram.UpdateHandler) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAPI) SetWebhook(context.Context, string, string, []string) error { return nil }
func (f *fakeAPI) DeleteWebhook(context.Context, bool) error                 { return nil }

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

type fakeRegistrar struct{}

func (fakeRegistrar) Handle(_ context.Context, cmd command.RegisterUserCommand) (*command.RegisterUserResult, error) {
	return &command.RegisterUserResult{User: &user.User{
		ID:         user.ID(cmd.TelegramID) * 10,
		TelegramID: cmd.TelegramID,
		FirstName:  cmd.FirstName,
	}}, nil
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []command.SaveChatMessageCommand
}

func (f *fakeSaver) Handle(_ context.Context, cmd command.SaveChatMessageCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, cmd)
	return nil
}

type funcCommand func(ctx context.Context, req handler.Request) (*handler.Response, error)

func (f funcCommand) Handle(ctx context.Context, req handler.Request) (*handler.Response, error) {
	return f(ctx, req)
}

type funcCallback func(ctx context.Context, req callback.Request) (*callback.Response, error)

func (f funcCallback) Handle(ctx context.Context, req callback.Request) (*callback.Response, error) {
	return f(ctx, req)
}

type fixture struct {
	api    *fakeAPI
	saver  *fakeSaver
	router *Router
	bot    *Bot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	api := &fakeAPI{}
	saver := &fakeSaver{}
	chatLog := middleware.NewChatLog(saver, nil)

	auth, err := middleware.NewAuthMiddleware(fakeRegistrar{}, middleware.DefaultAuthConfig())
	require.NoError(t, err)

	router := NewRouter(api, RouterConfig{ChatLog: chatLog})
	router.RegisterCommand(handler.CmdStart, handler.NewStartHandler())
	router.RegisterCommand(handler.CmdHelp, handler.NewHelpHandler("", ""))

	bot, err := NewBot(DefaultBotConfig(), BotDependencies{
		API:     api,
		Router:  router,
		Auth:    auth,
		ChatLog: chatLog,
	})
	require.NoError(t, err)

	return &fixture{api: api, saver: saver, router: router, bot: bot}
}

func textUpdate(from int64, text string) *telegram.Update {
	msg := &telegram.Message{
		MessageID: 5,
		From:      &telegram.User{ID: from, FirstName: "Айдар"},
		Chat:      &telegram.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		n := len(text)
		for i, r := range text {
			if r == ' ' {
				n = i
				break
			}
		}
		msg.Entities = []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return &telegram.Update{UpdateID: 1, Message: msg}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestBot_StartCommand(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "/start")))

	require.Len(t, f.api.sent, 1)
	sent := f.api.sent[0]
	assert.Equal(t, int64(7), sent.ChatID)
	assert.Contains(t, sent.Text, "Айдар")
	markup, ok := sent.ReplyMarkup.(*telegram.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, presenter.MenuMyQuests, markup.Keyboard[0][0].Text)

	require.Len(t, f.saver.saved, 2)
	assert.Equal(t, "/start", f.saver.saved[0].Text)
	assert.True(t, f.saver.saved[0].IsFromUser)
	assert.Equal(t, user.ID(70), f.saver.saved[1].UserID)
	assert.False(t, f.saver.saved[1].IsFromUser)

	stats := f.bot.GetStats()
	assert.Equal(t, int64(1), stats.UpdatesHandled)
	assert.Equal(t, int64(1), stats.CommandsCount["start"])
}

func TestBot_MenuTextAndUnknown(t *testing.T) {
	f := newFixture(t)
	var called bool
	f.router.RegisterCommand(handler.CmdMyQuests, funcCommand(func(_ context.Context, req handler.Request) (*handler.Response, error) {
		called = true
		assert.Equal(t, user.ID(70), req.User.ID)
		return &handler.Response{Replies: []handler.Reply{{Text: "список"}}}, nil
	}))

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, presenter.MenuMyQuests)))
	assert.True(t, called)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "/nope")))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "zzzz")))

	assert.Equal(t, []string{"список", presenter.UnknownCommand, presenter.UnknownCommand}, f.api.texts())
}

func TestBot_ProgressIsSentBeforeResult(t *testing.T) {
	f := newFixture(t)
	f.router.RegisterCommand(handler.CmdDaily, funcCommand(func(ctx context.Context, req handler.Request) (*handler.Response, error) {
		req.Progress(ctx, handler.Reply{Text: "⏳"})
		return &handler.Response{Replies: []handler.Reply{{Text: "квест"}}}, nil
	}))

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "/generate_daily")))
	assert.Equal(t, []string{"⏳", "квест"}, f.api.texts())
}

func TestBot_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.router.RegisterCommand("profile", funcCommand(func(context.Context, handler.Request) (*handler.Response, error) {
		panic("nil map")
	}))

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "/profile")))
	require.Len(t, f.api.sent, 1)
	assert.Equal(t, middleware.DefaultRecoveryConfig().UserErrorMessage, f.api.sent[0].Text)

	snap := f.bot.Metrics()
	require.Len(t, snap.Commands, 1)
	assert.Equal(t, int64(1), snap.Commands[0].Errors)
}

func TestBot_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.bot.deps.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "/help")))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "/help")))

	texts := f.api.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, presenter.TooFast, texts[1])
}

func TestBot_Callback(t *testing.T) {
	f := newFixture(t)
	f.router.RegisterCallbackPrefix(presenter.ToggleTaskPrefix, funcCallback(func(_ context.Context, req callback.Request) (*callback.Response, error) {
		assert.Equal(t, int64(99), req.MessageID)
		kb := presenter.NewInlineKeyboard().AddRow(presenter.CallbackButton("✅ Задание 1", req.Data))
		return &callback.Response{
			Toast:    "✅ +1 опыта",
			Edit:     &callback.Edit{Text: "card", ParseMode: presenter.ParseModeHTML, Keyboard: kb},
			FollowUp: presenter.LevelUp(2),
		}, nil
	}))

	update := &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "q",
		From:    &telegram.User{ID: 7},
		Message: &telegram.Message{MessageID: 99, Chat: &telegram.Chat{ID: 7}},
		Data:    presenter.ToggleTaskData(3, 0),
	}}
	require.NoError(t, f.bot.HandleUpdate(context.Background(), update))

	require.Len(t, f.api.answers, 1)
	assert.Equal(t, "✅ +1 опыта", f.api.answers[0].text)
	require.Len(t, f.api.edits, 1)
	assert.Equal(t, "toggle_task:3:0", f.api.edits[0].keyboard.InlineKeyboard[0][0].CallbackData)
	require.Len(t, f.api.sent, 1)
	assert.Contains(t, f.api.sent[0].Text, "НОВЫЙ УРОВЕНЬ")
}

func TestBot_UnknownCallbackIsAnswered(t *testing.T) {
	f := newFixture(t)
	update := &telegram.Update{CallbackQuery: &telegram.CallbackQuery{ID: "q", From: &telegram.User{ID: 7}, Data: "legacy:1"}}
	require.NoError(t, f.bot.HandleUpdate(context.Background(), update))
	assert.Len(t, f.api.answers, 1)
}

func TestBot_DispatchAndStop(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.router.RegisterCommand("history", funcCommand(func(context.Context, handler.Request) (*handler.Response, error) {
		<-release
		return &handler.Response{Replies: []handler.Reply{{Text: "done"}}}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.bot.Start(ctx) }()
	require.Eventually(t, f.bot.IsRunning, time.Second, 5*time.Millisecond)

	require.NoError(t, f.bot.Dispatch(ctx, textUpdate(7, "/history")))
	cancel()
	close(release)

	require.NoError(t, f.bot.Stop(context.Background()))
	assert.Equal(t, []string{"done"}, f.api.texts())
}

func TestQuestNotifier(t *testing.T) {
	f := newFixture(t)
	n := NewQuestNotifier(f.router)

	q := &quest.Quest{
		ID: 4, Title: "Рассвет", Type: quest.TypeDaily, Difficulty: quest.DifficultyEasy,
		Tasks: []string{"зарядка"}, Status: quest.StatusPending,
	}
	require.NoError(t, n.NotifyQuestIssued(context.Background(), &user.User{ID: 2, TelegramID: 555}, q))

	require.Len(t, f.api.sent, 1)
	assert.Equal(t, int64(555), f.api.sent[0].ChatID)
	assert.Contains(t, f.api.sent[0].Text, "НОВЫЙ ЕЖЕДНЕВНЫЙ КВЕСТ")
	assert.IsType(t, &telegram.InlineKeyboardMarkup{}, f.api.sent[0].ReplyMarkup)
	require.Len(t, f.saver.saved, 1)
	assert.Equal(t, user.ID(2), f.saver.saved[0].UserID)
}
