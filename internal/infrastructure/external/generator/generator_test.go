package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/pkg/retry"
)

type fakeCompleter struct {
	content string
	err     error
	params  openai.ChatCompletionNewParams
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	f.calls++
	f.params = params
	return f.content, f.err
}

func newTestGenerator(api completer) *Generator {
	return newGenerator(Config{
		Model:       "test-model",
		Temperature: 0.5,
		RateLimiter: RateLimiterConfig{RequestsPerSecond: 100, BurstSize: 100, WaitTimeout: time.Second},
	}, api)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		qType   quest.Type
		tasks   int
		wantErr bool
	}{
		{
			name:    "plain object",
			content: `{"title":"Утро героя","description":"Начни день","tasks":["Зарядка","Стакан воды"],"difficulty":"easy"}`,
			qType:   quest.TypeDaily,
			tasks:   2,
		},
		{
			name:    "code fence",
			content: "```json\n{\"title\":\"Т\",\"tasks\":[\"a\"],\"difficulty\":\"Medium\"}\n```",
			qType:   quest.TypeDaily,
			tasks:   1,
		},
		{
			name:    "nested under quest with prose",
			content: `Вот квест: {"quest":{"title":"Неделя силы","tasks":[{"text":"a"},{"title":"b"}],"difficulty":"hard"}}`,
			qType:   quest.TypeWeekly,
			tasks:   2,
		},
		{
			name:    "not json",
			content: "извините, не могу",
			qType:   quest.TypeDaily,
			wantErr: true,
		},
		{
			name:    "missing title",
			content: `{"tasks":["a"],"difficulty":"easy"}`,
			qType:   quest.TypeDaily,
			wantErr: true,
		},
		{
			name:    "empty task",
			content: `{"title":"Т","tasks":["a","  "],"difficulty":"easy"}`,
			qType:   quest.TypeDaily,
			wantErr: true,
		},
		{
			name:    "no tasks",
			content: `{"title":"Т","tasks":[],"difficulty":"easy"}`,
			qType:   quest.TypeDaily,
			wantErr: true,
		},
		{
			name:    "unknown difficulty",
			content: `{"title":"Т","tasks":["a"],"difficulty":"legendary"}`,
			qType:   quest.TypeDaily,
			wantErr: true,
		},
		{
			name:    "easy weekly",
			content: `{"title":"Т","tasks":["a"],"difficulty":"easy"}`,
			qType:   quest.TypeWeekly,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Parse(tt.content, tt.qType)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsGeneration(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, g.Tasks, tt.tasks)
			assert.NotEmpty(t, g.Title)
			assert.True(t, g.Difficulty.IsAllowedFor(tt.qType))
		})
	}
}

func TestGenerate_Success(t *testing.T) {
	api := &fakeCompleter{content: `{"title":"Т","description":"Д","tasks":["a","b","c"],"difficulty":"medium"}`}
	gen := newTestGenerator(api)

	g, err := gen.Generate(context.Background(), quest.GenerateRequest{UserName: "Арман", Type: quest.TypeDaily, Level: 4})
	require.NoError(t, err)
	assert.Equal(t, quest.DifficultyMedium, g.Difficulty)
	assert.Equal(t, []string{"a", "b", "c"}, g.Tasks)

	assert.Equal(t, openai.ChatModel("test-model"), api.params.Model)
	assert.Len(t, api.params.Messages, 2)
	assert.NotNil(t, api.params.ResponseFormat.OfJSONObject)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"bad request", &openai.Error{StatusCode: http.StatusBadRequest}, true},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, true},
		{"rate limited", &openai.Error{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &openai.Error{StatusCode: http.StatusBadGateway}, false},
		{"network", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newTestGenerator(&fakeCompleter{err: tt.err})
			_, err := gen.Generate(context.Background(), quest.GenerateRequest{Type: quest.TypeDaily})
			require.Error(t, err)
			assert.True(t, shared.IsGeneration(err))
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}

func TestGenerate_ContextErrorPassesThrough(t *testing.T) {
	gen := newTestGenerator(&fakeCompleter{err: context.DeadlineExceeded})
	_, err := gen.Generate(context.Background(), quest.GenerateRequest{Type: quest.TypeDaily})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_RejectsUnknownType(t *testing.T) {
	api := &fakeCompleter{}
	gen := newTestGenerator(api)

	_, err := gen.Generate(context.Background(), quest.GenerateRequest{Type: "monthly"})
	assert.True(t, shared.IsGeneration(err))
	assert.Zero(t, api.calls)
}

func TestBuildPrompt(t *testing.T) {
	_, user := buildPrompt(quest.GenerateRequest{UserName: "Арман", Type: quest.TypeWeekly, Level: 12})
	assert.Contains(t, user, "недельный")
	assert.Contains(t, user, "Арман")
	assert.Contains(t, user, "medium, hard")
	assert.NotContains(t, user, "easy")
	assert.Contains(t, user, "опытный")

	_, user = buildPrompt(quest.GenerateRequest{Type: quest.TypeDaily})
	assert.Contains(t, user, "Игрок")
	assert.True(t, strings.Contains(user, "easy, medium, hard"))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2, WaitTimeout: time.Millisecond})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.TryAllow())
	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())

	var rlErr *RateLimitError
	require.ErrorAs(t, rl.Allow(context.Background()), &rlErr)

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.TryAllow())

	rl.RecordRateLimitHit(0)
	st := rl.Status()
	assert.InDelta(t, 0.8, st.RefillRate, 1e-9)
	assert.Zero(t, st.AvailableTokens)

	now = now.Add(10 * time.Second)
	st = rl.Status()
	assert.Equal(t, 2.0, st.AvailableTokens)
	assert.Equal(t, 1.0, st.RefillRate)
}
