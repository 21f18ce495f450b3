package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUEST REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuestRepository implements quest.Repository for PostgreSQL.
// Tasks and completed task indices are stored as JSONB arrays.
type QuestRepository struct {
	db Querier
}

// NewQuestRepository creates a new QuestRepository.
func NewQuestRepository(db Querier) *QuestRepository {
	return &QuestRepository{db: db}
}

const questColumns = `
	id, user_id, title, description, quest_type, difficulty,
	tasks, completed_tasks, status, created_at, completed_at
`

// Create inserts a new quest and sets its ID.
func (r *QuestRepository) Create(ctx context.Context, q *quest.Quest) error {
	tasksJSON, completedJSON, err := marshalTasks(q)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO quests (
			user_id, title, description, quest_type, difficulty,
			tasks, completed_tasks, status, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRow(ctx, query,
		int64(q.UserID),
		q.Title,
		q.Description,
		string(q.Type),
		string(q.Difficulty),
		tasksJSON,
		completedJSON,
		string(q.Status),
		q.CreatedAt,
		q.CompletedAt,
	).Scan(&id)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to create quest: %w", err)
	}

	q.ID = quest.ID(id)
	return nil
}

// GetByID retrieves a quest by ID.
func (r *QuestRepository) GetByID(ctx context.Context, id quest.ID) (*quest.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE id = $1`
	return r.scanQuest(r.db.QueryRow(ctx, query, int64(id)))
}

// ListByUser returns a user's quests, newest first.
func (r *QuestRepository) ListByUser(ctx context.Context, userID user.ID, filter quest.ListFilter) ([]*quest.Quest, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{int64(userID)}
	)

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		where = append(where, fmt.Sprintf("quest_type = $%d", len(args)))
	}

	query := `SELECT ` + questColumns + ` FROM quests WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.queryQuests(ctx, query, args...)
}

// LatestPending returns the newest pending quest of the type, or nil.
func (r *QuestRepository) LatestPending(ctx context.Context, userID user.ID, t quest.Type) (*quest.Quest, error) {
	query := `
		SELECT ` + questColumns + `
		FROM quests
		WHERE user_id = $1 AND quest_type = $2 AND status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	q, err := r.scanQuest(r.db.QueryRow(ctx, query, int64(userID), string(t)))
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return q, nil
}

// ListPendingCreatedUntil returns pending quests of the type created at or
// before the moment.
func (r *QuestRepository) ListPendingCreatedUntil(ctx context.Context, t quest.Type, until time.Time, limit int) ([]*quest.Quest, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + questColumns + `
		FROM quests
		WHERE quest_type = $1 AND status = 'pending' AND created_at <= $2
		ORDER BY created_at, id
		LIMIT $3
	`

	return r.queryQuests(ctx, query, string(t), until, limit)
}

// Update saves completed task indices, status and completion time.
func (r *QuestRepository) Update(ctx context.Context, q *quest.Quest) error {
	_, completedJSON, err := marshalTasks(q)
	if err != nil {
		return err
	}

	query := `
		UPDATE quests
		SET completed_tasks = $2, status = $3, completed_at = $4
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, int64(q.ID), completedJSON, string(q.Status), q.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrQuestNotFound
	}
	return nil
}

// FailIfPending fails the quest unless it has left the pending state.
func (r *QuestRepository) FailIfPending(ctx context.Context, id quest.ID) (bool, error) {
	query := `
		UPDATE quests
		SET status = 'failed', completed_at = NULL
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, int64(id))
	if err != nil {
		return false, fmt.Errorf("failed to fail quest: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountByStatus returns quest counts grouped by status.
func (r *QuestRepository) CountByStatus(ctx context.Context) (quest.StatusCounts, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM quests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count quests: %w", err)
	}
	defer rows.Close()

	counts := quest.StatusCounts{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan quest count: %w", err)
		}
		counts[quest.Status(status)] = n
	}

	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *QuestRepository) queryQuests(ctx context.Context, query string, args ...any) ([]*quest.Quest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quests: %w", err)
	}
	defer rows.Close()

	var quests []*quest.Quest
	for rows.Next() {
		q, err := r.scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}

	return quests, rows.Err()
}

func (r *QuestRepository) scanQuest(row scanner) (*quest.Quest, error) {
	var (
		q                     quest.Quest
		id, userID            int64
		qType, diff, status   string
		tasksRaw, completeRaw []byte
	)

	err := row.Scan(
		&id, &userID, &q.Title, &q.Description, &qType, &diff,
		&tasksRaw, &completeRaw, &status, &q.CreatedAt, &q.CompletedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to scan quest: %w", err)
	}

	if err := json.Unmarshal(tasksRaw, &q.Tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks of quest %d: %w", id, err)
	}
	var completed []int
	if err := json.Unmarshal(completeRaw, &completed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed tasks of quest %d: %w", id, err)
	}

	q.ID = quest.ID(id)
	q.UserID = user.ID(userID)
	q.Type = quest.Type(qType)
	q.Difficulty = quest.Difficulty(diff)
	q.Status = quest.Status(status)
	q.Completed = quest.NewTaskSet(completed...)
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("quest", "Load", shared.ErrPersistence,
			fmt.Sprintf("quest %d is corrupted", id), err)
	}
	return &q, nil
}

func marshalTasks(q *quest.Quest) (tasks, completed []byte, err error) {
	tasks, err = json.Marshal(q.Tasks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}

	set := q.Completed
	if set == nil {
		set = quest.TaskSet{}
	}
	completed, err = json.Marshal(set)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal completed tasks: %w", err)
	}
	return tasks, completed, nil
}
