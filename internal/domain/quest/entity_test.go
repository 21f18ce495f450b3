package quest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/domain/shared"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newDailyQuest(t *testing.T, tasks ...string) *Quest {
	t.Helper()
	q, err := NewQuest(NewQuestParams{
		UserID:      1,
		Title:       "Утренний ритуал",
		Description: "Начни день правильно",
		Tasks:       tasks,
		Difficulty:  DifficultyEasy,
		Type:        TypeDaily,
	}, testNow)
	require.NoError(t, err)
	return q
}

func TestNewQuest(t *testing.T) {
	q := newDailyQuest(t, "Зарядка", " ", "Холодный душ")

	assert.Equal(t, StatusPending, q.Status)
	assert.Equal(t, []string{"Зарядка", "Холодный душ"}, q.Tasks)
	assert.Empty(t, q.Completed)
	assert.Nil(t, q.CompletedAt)
	assert.NoError(t, q.Validate())
}

func TestNewQuest_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params NewQuestParams
	}{
		{"unknown type", NewQuestParams{Title: "x", Tasks: []string{"a"}, Difficulty: DifficultyEasy, Type: "monthly"}},
		{"easy weekly", NewQuestParams{Title: "x", Tasks: []string{"a"}, Difficulty: DifficultyEasy, Type: TypeWeekly}},
		{"empty title", NewQuestParams{Title: "  ", Tasks: []string{"a"}, Difficulty: DifficultyEasy, Type: TypeDaily}},
		{"no tasks", NewQuestParams{Title: "x", Tasks: []string{"", " "}, Difficulty: DifficultyHard, Type: TypeDaily}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQuest(tt.params, testNow)
			assert.True(t, shared.IsInvalidArgument(err))
		})
	}
}

func TestToggleTask_CompletesInAnyOrder(t *testing.T) {
	orders := [][]int{{0, 1, 2}, {2, 0, 1}, {1, 2, 0}}

	for _, order := range orders {
		q := newDailyQuest(t, "a", "b", "c")
		for i, idx := range order {
			out, err := q.ToggleTask(idx, testNow.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, out.Completed)

			if i < len(order)-1 {
				assert.Equal(t, StatusPending, q.Status)
				assert.False(t, out.QuestCompleted())
				assert.Nil(t, q.CompletedAt)
			} else {
				assert.Equal(t, StatusCompleted, q.Status)
				assert.True(t, out.QuestCompleted())
				require.NotNil(t, q.CompletedAt)
				assert.Equal(t, testNow.Add(time.Minute), *q.CompletedAt)
			}
		}
		assert.NoError(t, q.Validate())
	}
}

func TestToggleTask_RoundTrip(t *testing.T) {
	q := newDailyQuest(t, "a", "b")
	_, err := q.ToggleTask(0, testNow)
	require.NoError(t, err)

	before := append(TaskSet{}, q.Completed...)
	status := q.Status

	out, err := q.ToggleTask(1, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, out.CompletedBefore)

	out, err = q.ToggleTask(1, testNow)
	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.Equal(t, StatusCompleted, out.PreviousStatus)
	assert.Equal(t, before, q.Completed)
	assert.Equal(t, status, q.Status)
	assert.Nil(t, q.CompletedAt)
}

func TestToggleTask_Errors(t *testing.T) {
	q := newDailyQuest(t, "a")

	_, err := q.ToggleTask(1, testNow)
	assert.True(t, shared.IsInvalidArgument(err))
	_, err = q.ToggleTask(-1, testNow)
	assert.True(t, shared.IsInvalidArgument(err))
	assert.Empty(t, q.Completed)

	require.NoError(t, q.Fail())
	_, err = q.ToggleTask(0, testNow)
	assert.True(t, shared.IsInvalidState(err))
}

func TestFail(t *testing.T) {
	q := newDailyQuest(t, "a")
	_, err := q.ToggleTask(0, testNow)
	require.NoError(t, err)

	assert.True(t, shared.IsInvalidState(q.Fail()))

	q2 := newDailyQuest(t, "a", "b")
	require.NoError(t, q2.Fail())
	assert.Equal(t, StatusFailed, q2.Status)
	assert.Nil(t, q2.CompletedAt)
	assert.NoError(t, q2.Validate())
}

func TestValidate_DetectsCorruption(t *testing.T) {
	q := newDailyQuest(t, "a", "b")
	q.Completed = TaskSet{0, 5}
	assert.True(t, shared.IsInvalidArgument(q.Validate()))

	q = newDailyQuest(t, "a")
	q.Status = StatusCompleted
	assert.Error(t, q.Validate())
}

func TestNewTaskSet(t *testing.T) {
	s := NewTaskSet(3, 1, 3, 0)
	assert.Equal(t, TaskSet{0, 1, 3}, s)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(2))
}

func TestSnapshot(t *testing.T) {
	q := newDailyQuest(t, "a", "b")
	_, err := q.ToggleTask(1, testNow)
	require.NoError(t, err)

	snap := q.Snapshot()
	assert.Equal(t, 1, snap.Done)
	assert.Equal(t, 2, snap.Total)
	assert.False(t, snap.Tasks[0].Done)
	assert.True(t, snap.Tasks[1].Done)
}
