// Package quest содержит доменную модель квеста: типы, сложность, набор
// заданий и машину состояний отметки заданий. Статус квеста никогда не
// присваивается снаружи - он всегда выводится из набора выполненных заданий.
package quest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// ID - идентификатор квеста.
type ID int64

// Type определяет периодичность квеста.
type Type string

const (
	TypeDaily  Type = "daily"
	TypeWeekly Type = "weekly"
)

// IsValid проверяет, что тип квеста корректен.
func (t Type) IsValid() bool {
	return t == TypeDaily || t == TypeWeekly
}

// ParseType разбирает тип квеста из строки.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.InvalidArgument("quest", "ParseType", fmt.Sprintf("unknown quest type %q", s))
	}
	return t, nil
}

// Difficulty - сложность квеста.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AllowedDifficulties возвращает допустимые уровни сложности для типа квеста.
// Недельные квесты не бывают лёгкими.
func AllowedDifficulties(t Type) []Difficulty {
	if t == TypeWeekly {
		return []Difficulty{DifficultyMedium, DifficultyHard}
	}
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// IsAllowedFor проверяет, допустима ли сложность для типа квеста.
func (d Difficulty) IsAllowedFor(t Type) bool {
	for _, allowed := range AllowedDifficulties(t) {
		if d == allowed {
			return true
		}
	}
	return false
}

// Status - состояние квеста.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK SET
// ══════════════════════════════════════════════════════════════════════════════

// TaskSet - множество индексов выполненных заданий, хранится отсортированным.
type TaskSet []int

// NewTaskSet строит множество из индексов, убирая дубликаты.
func NewTaskSet(indices ...int) TaskSet {
	seen := make(map[int]struct{}, len(indices))
	out := make(TaskSet, 0, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Has проверяет, выполнено ли задание.
func (s TaskSet) Has(idx int) bool {
	i := sort.SearchInts(s, idx)
	return i < len(s) && s[i] == idx
}

// Len возвращает количество выполненных заданий.
func (s TaskSet) Len() int {
	return len(s)
}

func (s TaskSet) with(idx int) TaskSet {
	if s.Has(idx) {
		return s
	}
	return NewTaskSet(append(append(TaskSet{}, s...), idx)...)
}

func (s TaskSet) without(idx int) TaskSet {
	out := make(TaskSet, 0, len(s))
	for _, v := range s {
		if v != idx {
			out = append(out, v)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEST
// ══════════════════════════════════════════════════════════════════════════════

// Quest - набор заданий, выданный пользователю.
// Список заданий фиксируется при создании и больше не меняется.
type Quest struct {
	ID          ID
	UserID      user.ID
	Title       string
	Description string
	Type        Type
	Difficulty  Difficulty
	Tasks       []string
	Completed   TaskSet
	Status      Status
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NewQuestParams содержит параметры для создания квеста.
type NewQuestParams struct {
	UserID      user.ID
	Title       string
	Description string
	Tasks       []string
	Difficulty  Difficulty
	Type        Type
}

// NewQuest создаёт квест в статусе pending с пустым набором выполненных заданий.
func NewQuest(p NewQuestParams, now time.Time) (*Quest, error) {
	if !p.Type.IsValid() {
		return nil, shared.InvalidArgument("quest", "New", fmt.Sprintf("unknown quest type %q", p.Type))
	}
	if !p.Difficulty.IsAllowedFor(p.Type) {
		return nil, shared.InvalidArgument("quest", "New",
			fmt.Sprintf("difficulty %q is not allowed for %s quests", p.Difficulty, p.Type))
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, shared.InvalidArgument("quest", "New", "title is required")
	}

	tasks := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		if t = strings.TrimSpace(t); t != "" {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return nil, shared.InvalidArgument("quest", "New", "quest must contain at least one task")
	}

	return &Quest{
		UserID:      p.UserID,
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Type:        p.Type,
		Difficulty:  p.Difficulty,
		Tasks:       tasks,
		Completed:   TaskSet{},
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
	}, nil
}

// Validate проверяет инварианты квеста, загруженного из хранилища.
func (q *Quest) Validate() error {
	if !q.Type.IsValid() {
		return shared.InvalidArgument("quest", "Validate", fmt.Sprintf("unknown quest type %q", q.Type))
	}
	if !q.Status.IsValid() {
		return shared.InvalidArgument("quest", "Validate", fmt.Sprintf("unknown status %q", q.Status))
	}
	if len(q.Tasks) == 0 {
		return shared.InvalidArgument("quest", "Validate", "quest has no tasks")
	}
	for _, idx := range q.Completed {
		if idx < 0 || idx >= len(q.Tasks) {
			return shared.InvalidArgument("quest", "Validate", fmt.Sprintf("completed index %d out of range", idx))
		}
	}
	if q.Status != StatusFailed {
		full := q.Completed.Len() == len(q.Tasks)
		if full != (q.Status == StatusCompleted) {
			return shared.InvalidArgument("quest", "Validate", "status does not match completed tasks")
		}
	}
	if (q.CompletedAt != nil) != (q.Status == StatusCompleted) {
		return shared.InvalidArgument("quest", "Validate", "completed_at does not match status")
	}
	return nil
}

// IsTaskCompleted проверяет, отмечено ли задание.
func (q *Quest) IsTaskCompleted(idx int) bool {
	return q.Completed.Has(idx)
}

// Progress возвращает количество выполненных и всего заданий.
func (q *Quest) Progress() (done, total int) {
	return q.Completed.Len(), len(q.Tasks)
}

// ExpiresAt возвращает момент, после которого квест считается устаревшим.
func (q *Quest) ExpiresAt(ttl time.Duration) time.Time {
	return q.CreatedAt.Add(ttl)
}

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE STATE MACHINE
// pending -> completed (все задания выполнены)
// completed -> pending (снята отметка с задания)
// ══════════════════════════════════════════════════════════════════════════════

// ToggleOutcome описывает результат переключения задания.
type ToggleOutcome struct {
	Index           int
	Completed       bool // задание стало выполненным
	CompletedBefore int  // выполнено заданий до переключения
	CompletedAfter  int
	TotalTasks      int
	PreviousStatus  Status
	Status          Status
}

// QuestCompleted возвращает true, если переключение завершило квест.
func (o ToggleOutcome) QuestCompleted() bool {
	return o.PreviousStatus != StatusCompleted && o.Status == StatusCompleted
}

// ToggleTask переключает отметку задания и пересчитывает статус.
// Политика запрета снятия отметки применяется вызывающим кодом.
func (q *Quest) ToggleTask(idx int, now time.Time) (ToggleOutcome, error) {
	if idx < 0 || idx >= len(q.Tasks) {
		return ToggleOutcome{}, shared.InvalidArgument("quest", "ToggleTask",
			fmt.Sprintf("task index %d out of range [0, %d)", idx, len(q.Tasks)))
	}
	if q.Status == StatusFailed {
		return ToggleOutcome{}, shared.NewDomainError("quest", "ToggleTask", shared.ErrInvalidState,
			"failed quest cannot be changed")
	}

	out := ToggleOutcome{
		Index:           idx,
		CompletedBefore: q.Completed.Len(),
		TotalTasks:      len(q.Tasks),
		PreviousStatus:  q.Status,
	}

	if q.Completed.Has(idx) {
		q.Completed = q.Completed.without(idx)
	} else {
		q.Completed = q.Completed.with(idx)
		out.Completed = true
	}

	q.deriveStatus(now)

	out.CompletedAfter = q.Completed.Len()
	out.Status = q.Status
	return out, nil
}

// deriveStatus - единственное место, где вычисляется pending/completed.
func (q *Quest) deriveStatus(now time.Time) {
	if q.Completed.Len() == len(q.Tasks) {
		if q.Status != StatusCompleted || q.CompletedAt == nil {
			t := now.UTC()
			q.CompletedAt = &t
		}
		q.Status = StatusCompleted
		return
	}
	q.Status = StatusPending
	q.CompletedAt = nil
}

// Fail переводит незавершённый квест в статус failed.
func (q *Quest) Fail() error {
	if q.Status != StatusPending {
		return shared.NewDomainError("quest", "Fail", shared.ErrInvalidState,
			fmt.Sprintf("cannot fail quest in status %s", q.Status))
	}
	q.Status = StatusFailed
	q.CompletedAt = nil
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// TaskView - задание с отметкой о выполнении.
type TaskView struct {
	Index int
	Text  string
	Done  bool
}

// Snapshot - плоское представление квеста для транспорта.
type Snapshot struct {
	ID          ID
	Title       string
	Description string
	Type        Type
	Difficulty  Difficulty
	Status      Status
	Tasks       []TaskView
	Done        int
	Total       int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Snapshot возвращает копию данных квеста без ссылок на внутреннее состояние.
func (q *Quest) Snapshot() Snapshot {
	tasks := make([]TaskView, len(q.Tasks))
	for i, text := range q.Tasks {
		tasks[i] = TaskView{Index: i, Text: text, Done: q.Completed.Has(i)}
	}
	done, total := q.Progress()

	var completedAt *time.Time
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		completedAt = &t
	}

	return Snapshot{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Type:        q.Type,
		Difficulty:  q.Difficulty,
		Status:      q.Status,
		Tasks:       tasks,
		Done:        done,
		Total:       total,
		CreatedAt:   q.CreatedAt,
		CompletedAt: completedAt,
	}
}
