package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperengineering/rentops/internal/types"
	"github.com/oklog/ulid/v2"
)

const taskColumns = `t.id, t.property_id, t.phase, t.task_type, t.is_completed, t.task_data, t.completed_at, t.updated_at`

type taskRow struct {
	ID          string         `db:"id"`
	PropertyID  string         `db:"property_id"`
	Phase       string         `db:"phase"`
	TaskType    string         `db:"task_type"`
	IsCompleted bool           `db:"is_completed"`
	TaskData    sql.NullString `db:"task_data"`
	CompletedAt sql.NullString `db:"completed_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func (r taskRow) toTask() types.PropertyTask {
	t := types.PropertyTask{
		ID:          r.ID,
		PropertyID:  r.PropertyID,
		Phase:       types.Phase(r.Phase),
		TaskType:    r.TaskType,
		IsCompleted: r.IsCompleted,
		CompletedAt: parseNullTime(r.CompletedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
	if r.TaskData.Valid {
		t.TaskData = []byte(r.TaskData.String)
	}
	return t
}

// ListTasks returns every task of a property.
func (s *SQLStore) ListTasks(ctx context.Context, propertyID string) ([]types.PropertyTask, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+taskColumns+` FROM property_tasks t
		WHERE t.property_id = ?
		ORDER BY t.phase, t.task_type
	`), propertyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return toTasks(rows), nil
}

// ListCurrentPhaseTasks returns, for every property, the tasks of the phase
// the property is currently in.
func (s *SQLStore) ListCurrentPhaseTasks(ctx context.Context) ([]types.PropertyTask, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+` FROM property_tasks t
		JOIN properties p ON p.id = t.property_id AND p.phase = t.phase
		ORDER BY t.property_id, t.task_type
	`)
	if err != nil {
		return nil, fmt.Errorf("list current phase tasks: %w", err)
	}
	return toTasks(rows), nil
}

// UpsertTasks writes tasks keyed by (property, phase, task type).
func (s *SQLStore) UpsertTasks(ctx context.Context, tasks []types.PropertyTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO property_tasks (id, property_id, phase, task_type, is_completed, task_data, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (property_id, phase, task_type)
		DO UPDATE SET is_completed = excluded.is_completed, task_data = excluded.task_data,
		              completed_at = excluded.completed_at, updated_at = excluded.updated_at
	`))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			t.ID = ulid.Make().String()
		}
		t.UpdatedAt = ts
		var data sql.NullString
		if len(t.TaskData) > 0 {
			data = sql.NullString{String: string(t.TaskData), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.PropertyID, string(t.Phase), t.TaskType, t.IsCompleted,
			data, nullTime(t.CompletedAt), formatTime(ts),
		)
		if err != nil {
			return fmt.Errorf("upsert task %s/%s: %w", t.Phase, t.TaskType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toTasks(rows []taskRow) []types.PropertyTask {
	out := make([]types.PropertyTask, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTask())
	}
	return out
}
