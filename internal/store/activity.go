package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/rentops/internal/types"
	"github.com/oklog/ulid/v2"
)

// DefaultActivityLimit bounds activity listings when no limit is given.
const DefaultActivityLimit = 100

type activityRow struct {
	ID        string         `db:"id"`
	Entity    string         `db:"entity"`
	EntityID  string         `db:"entity_id"`
	Operation string         `db:"operation"`
	Payload   sql.NullString `db:"payload"`
	Actor     string         `db:"actor"`
	CreatedAt string         `db:"created_at"`
}

// AppendActivity appends a single entry to the activity log.
func (s *SQLStore) AppendActivity(ctx context.Context, entry *types.Activity) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO activity_log (id, entity, entity_id, operation, payload, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), entry.ID, entry.Entity, entry.EntityID, entry.Operation,
		nullablePayload(entry.Payload), entry.Actor, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries for an entity, up to limit.
func (s *SQLStore) ListActivity(ctx context.Context, entity, entityID string, limit int) ([]types.Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, entity, entity_id, operation, payload, actor, created_at
		FROM activity_log
		WHERE entity = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), entity, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}

	out := make([]types.Activity, 0, len(rows))
	for _, r := range rows {
		a := types.Activity{
			ID:        r.ID,
			Entity:    r.Entity,
			EntityID:  r.EntityID,
			Operation: r.Operation,
			Actor:     r.Actor,
			CreatedAt: parseTime(r.CreatedAt),
		}
		if r.Payload.Valid {
			a.Payload = json.RawMessage(r.Payload.String)
		}
		out = append(out, a)
	}
	return out, nil
}

// nullablePayload converts a json.RawMessage to a value suitable for a
// nullable TEXT column.
func nullablePayload(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
