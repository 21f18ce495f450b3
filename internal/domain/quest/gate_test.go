package quest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/domain/shared"
)

func TestGate_NoPendingQuest(t *testing.T) {
	g := NewGate(DefaultPolicy())
	d := g.Decide(TypeDaily, nil, testNow)
	assert.True(t, d.Allowed)
}

func TestGate_DeniesRightAfterIssue(t *testing.T) {
	g := NewGate(DefaultPolicy())
	q := newDailyQuest(t, "a")

	d := g.Decide(TypeDaily, q, testNow)
	assert.False(t, d.Allowed)
	assert.Equal(t, 24, d.Hours)
	assert.Equal(t, 0, d.Minutes)
}

func TestGate_WeeklyScenario(t *testing.T) {
	g := NewGate(DefaultPolicy())
	q, err := NewQuest(NewQuestParams{
		UserID:     1,
		Title:      "Неделя силы",
		Tasks:      []string{"a", "b"},
		Difficulty: DifficultyHard,
		Type:       TypeWeekly,
	}, testNow)
	require.NoError(t, err)

	d := g.Decide(TypeWeekly, q, testNow.Add(time.Hour))
	assert.False(t, d.Allowed)
	assert.Equal(t, 167, d.Hours)
	assert.Equal(t, 0, d.Minutes)

	d = g.Decide(TypeWeekly, q, testNow.Add(7*24*time.Hour+time.Minute))
	assert.True(t, d.Allowed)
	assert.Equal(t, StatusPending, q.Status)
}

func TestGate_ExactlyAtExpiry(t *testing.T) {
	g := NewGate(DefaultPolicy())
	q := newDailyQuest(t, "a")

	assert.True(t, g.Decide(TypeDaily, q, testNow.Add(24*time.Hour)).Allowed)
	assert.True(t, g.IsExpired(q, testNow.Add(24*time.Hour)))

	d := g.Decide(TypeDaily, q, testNow.Add(23*time.Hour+30*time.Minute+59*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Hours)
	assert.Equal(t, 29, d.Minutes)
}

func TestGate_CompletedQuestDoesNotBlock(t *testing.T) {
	g := NewGate(DefaultPolicy())
	q := newDailyQuest(t, "a")
	_, err := q.ToggleTask(0, testNow)
	require.NoError(t, err)

	assert.True(t, g.Decide(TypeDaily, q, testNow).Allowed)
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{DailyTTL: time.Hour}.Validate())
}

func TestGenerated_Validate(t *testing.T) {
	ok := &Generated{Title: "Квест", Tasks: []string{"a"}, Difficulty: DifficultyMedium}
	assert.NoError(t, ok.Validate(TypeDaily))
	assert.NoError(t, ok.Validate(TypeWeekly))

	easy := &Generated{Title: "Квест", Tasks: []string{"a"}, Difficulty: DifficultyEasy}
	assert.True(t, shared.IsGeneration(easy.Validate(TypeWeekly)))

	empty := &Generated{Title: "Квест", Tasks: []string{" "}, Difficulty: DifficultyEasy}
	assert.True(t, shared.IsGeneration(empty.Validate(TypeDaily)))

	var missing *Generated
	assert.True(t, shared.IsGeneration(missing.Validate(TypeDaily)))
}
