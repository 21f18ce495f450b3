package leveling

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/user"
)

func TestExpRequiredForLevel(t *testing.T) {
	c := NewCalculator(DefaultRules())

	assert.Equal(t, 0, c.ExpRequiredForLevel(0))
	assert.Equal(t, 0, c.ExpRequiredForLevel(1))
	assert.Equal(t, 10, c.ExpRequiredForLevel(2))
	assert.Equal(t, 15, c.ExpRequiredForLevel(3))
	assert.Equal(t, 55, c.ExpRequiredForLevel(11))
}

func TestCumulativeExp(t *testing.T) {
	c := NewCalculator(DefaultRules())

	assert.Equal(t, 0, c.CumulativeExpToReachLevel(1))
	assert.Equal(t, 10, c.CumulativeExpToReachLevel(2))
	assert.Equal(t, 25, c.CumulativeExpToReachLevel(3))
	assert.Equal(t, 45, c.CumulativeExpToReachLevel(4))
}

func TestLevelFromExperience_Scenarios(t *testing.T) {
	c := NewCalculator(DefaultRules())

	tests := []struct {
		exp  int
		want Progress
	}{
		{0, Progress{Level: 1, Progress: 0, ExpForNext: 10}},
		{9, Progress{Level: 1, Progress: 9, ExpForNext: 10}},
		{10, Progress{Level: 2, Progress: 0, ExpForNext: 15}},
		{24, Progress{Level: 2, Progress: 14, ExpForNext: 15}},
		{25, Progress{Level: 3, Progress: 0, ExpForNext: 20}},
		{-7, Progress{Level: 1, Progress: 0, ExpForNext: 10}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.LevelFromExperience(tt.exp), "exp=%d", tt.exp)
	}
}

func TestLevelFromExperience_BoundaryExactness(t *testing.T) {
	c := NewCalculator(DefaultRules())

	for level := 1; level <= 200; level++ {
		got := c.LevelFromExperience(c.CumulativeExpToReachLevel(level))
		assert.Equal(t, Progress{
			Level:      level,
			Progress:   0,
			ExpForNext: c.ExpRequiredForLevel(level + 1),
		}, got)
	}
}

func TestLevelFromExperience_Properties(t *testing.T) {
	c := NewCalculator(DefaultRules())
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	prevLevel := 1
	exp := 0
	for i := 0; i < 2000; i++ {
		exp += rnd.Intn(30)

		p := c.LevelFromExperience(exp)
		require.GreaterOrEqual(t, p.Level, 1)
		require.GreaterOrEqual(t, p.Progress, 0)
		require.Less(t, p.Progress, p.ExpForNext)
		require.GreaterOrEqual(t, p.Level, prevLevel, "level must never decrease")
		prevLevel = p.Level
	}
}

func TestExpForTaskCompletion(t *testing.T) {
	c := NewCalculator(DefaultRules())

	assert.Equal(t, 1, c.ExpForTaskCompletion(quest.TypeDaily, 0, 3))
	assert.Equal(t, 1, c.ExpForTaskCompletion(quest.TypeDaily, 1, 3))
	assert.Equal(t, 2, c.ExpForTaskCompletion(quest.TypeDaily, 2, 3))

	assert.Equal(t, 3, c.ExpForTaskCompletion(quest.TypeWeekly, 0, 5))
	assert.Equal(t, 6, c.ExpForTaskCompletion(quest.TypeWeekly, 4, 5))
	assert.Equal(t, 6, c.ExpForTaskCompletion(quest.TypeWeekly, 0, 1))
}

func TestCalculator_ImplementsLevelCurve(t *testing.T) {
	var curve user.LevelCurve = NewCalculator(DefaultRules())

	u, err := user.NewUser(42, "hero", "Арман", time.Now())
	require.NoError(t, err)

	change, err := u.AddExperience(25, curve)
	require.NoError(t, err)
	assert.True(t, change.LeveledUp())
	assert.Equal(t, 3, u.Level)
	assert.Equal(t, 25, change.Gained())

	_, err = u.AddExperience(-1, curve)
	assert.Error(t, err)
	assert.Equal(t, 25, u.Experience)
}

func TestNewCalculator_FixesBrokenRules(t *testing.T) {
	c := NewCalculator(Rules{})
	assert.Equal(t, 10, c.ExpRequiredForLevel(2))
}
