package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/internal/domain/user"
)

// QuestRepository implements quest.Repository for SQLite.
// Tasks and completed indices are JSON text columns.
type QuestRepository struct {
	db dbtx
}

// NewQuestRepository creates a repository on the shared handle.
func NewQuestRepository(d *DB) *QuestRepository {
	return &QuestRepository{db: d.db}
}

const questColumns = `id, user_id, title, description, quest_type, difficulty,
	tasks, completed_tasks, status, created_at, completed_at`

func (r *QuestRepository) Create(ctx context.Context, q *quest.Quest) error {
	tasks, completed, err := encodeTasks(q)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO quests (user_id, title, description, quest_type, difficulty,
			tasks, completed_tasks, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(q.UserID), q.Title, q.Description, string(q.Type), string(q.Difficulty),
		tasks, completed, string(q.Status), formatTime(q.CreatedAt), nullTime(q.CompletedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("create quest: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create quest: %w", err)
	}
	q.ID = quest.ID(id)
	return nil
}

func (r *QuestRepository) GetByID(ctx context.Context, id quest.ID) (*quest.Quest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE id = ?`, int64(id))
	return scanQuest(row)
}

func (r *QuestRepository) ListByUser(ctx context.Context, userID user.ID, filter quest.ListFilter) ([]*quest.Quest, error) {
	where := []string{"user_id = ?"}
	args := []any{int64(userID)}

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		where = append(where, "quest_type = ?")
		args = append(args, string(*filter.Type))
	}

	query := `SELECT ` + questColumns + ` FROM quests WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return r.queryQuests(ctx, query, args...)
}

func (r *QuestRepository) LatestPending(ctx context.Context, userID user.ID, t quest.Type) (*quest.Quest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+questColumns+` FROM quests
		WHERE user_id = ? AND quest_type = ? AND status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		int64(userID), string(t),
	)

	q, err := scanQuest(row)
	if errors.Is(err, shared.ErrQuestNotFound) {
		return nil, nil
	}
	return q, err
}

func (r *QuestRepository) ListPendingCreatedUntil(ctx context.Context, t quest.Type, until time.Time, limit int) ([]*quest.Quest, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryQuests(ctx, `
		SELECT `+questColumns+` FROM quests
		WHERE quest_type = ? AND status = 'pending' AND created_at <= ?
		ORDER BY created_at, id
		LIMIT ?`,
		string(t), formatTime(until), limit,
	)
}

func (r *QuestRepository) Update(ctx context.Context, q *quest.Quest) error {
	_, completed, err := encodeTasks(q)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE quests SET completed_tasks = ?, status = ?, completed_at = ?
		WHERE id = ?`,
		completed, string(q.Status), nullTime(q.CompletedAt), int64(q.ID),
	)
	if err != nil {
		return fmt.Errorf("update quest: %w", err)
	}
	return checkRowsAffected(res, shared.ErrQuestNotFound)
}

func (r *QuestRepository) FailIfPending(ctx context.Context, id quest.ID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quests SET status = 'failed', completed_at = NULL
		WHERE id = ? AND status = 'pending'`,
		int64(id),
	)
	if err != nil {
		return false, fmt.Errorf("fail quest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail quest: %w", err)
	}
	return n > 0, nil
}

func (r *QuestRepository) CountByStatus(ctx context.Context) (quest.StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM quests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count quests: %w", err)
	}
	defer rows.Close()

	counts := quest.StatusCounts{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan quest count: %w", err)
		}
		counts[quest.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *QuestRepository) queryQuests(ctx context.Context, query string, args ...any) ([]*quest.Quest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	defer rows.Close()

	out := make([]*quest.Quest, 0)
	for rows.Next() {
		q, scanErr := scanQuest(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuest(row scanner) (*quest.Quest, error) {
	var (
		q                      quest.Quest
		id, userID             int64
		qType, diff, status    string
		tasksRaw, completedRaw string
		createdRaw             string
		completedAtRaw         sql.NullString
	)

	err := row.Scan(&id, &userID, &q.Title, &q.Description, &qType, &diff,
		&tasksRaw, &completedRaw, &status, &createdRaw, &completedAtRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, fmt.Errorf("scan quest: %w", err)
	}

	if err := json.Unmarshal([]byte(tasksRaw), &q.Tasks); err != nil {
		return nil, fmt.Errorf("decode tasks of quest %d: %w", id, err)
	}
	var completed []int
	if err := json.Unmarshal([]byte(completedRaw), &completed); err != nil {
		return nil, fmt.Errorf("decode completed tasks of quest %d: %w", id, err)
	}
	if q.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, fmt.Errorf("parse quest created_at: %w", err)
	}
	if q.CompletedAt, err = parseNullableTime(completedAtRaw); err != nil {
		return nil, fmt.Errorf("parse quest completed_at: %w", err)
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

func encodeTasks(q *quest.Quest) (tasks, completed string, err error) {
	tb, err := json.Marshal(q.Tasks)
	if err != nil {
		return "", "", fmt.Errorf("encode tasks: %w", err)
	}

	set := q.Completed
	if set == nil {
		set = quest.TaskSet{}
	}
	cb, err := json.Marshal(set)
	if err != nil {
		return "", "", fmt.Errorf("encode completed tasks: %w", err)
	}
	return string(tb), string(cb), nil
}
