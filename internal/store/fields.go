package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/rentops/internal/types"
)

type fieldRow struct {
	Key   string `db:"field_key"`
	Value string `db:"value"`
}

// GetFields returns every field value of a property.
func (s *SQLStore) GetFields(ctx context.Context, propertyID string) (types.Fields, error) {
	if _, err := getProperty(ctx, s.db, propertyID); err != nil {
		return nil, err
	}
	return getFields(ctx, s.db, propertyID)
}

func getFields(ctx context.Context, q queryer, propertyID string) (types.Fields, error) {
	rows, err := q.QueryxContext(ctx, q.Rebind(`
		SELECT field_key, value FROM property_fields WHERE property_id = ? ORDER BY field_key
	`), propertyID)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	fields := types.Fields{}
	for rows.Next() {
		var r fieldRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(r.Value), &v); err != nil {
			return nil, fmt.Errorf("decode field %s: %w", r.Key, err)
		}
		fields[r.Key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return fields, nil
}

// PatchFields upserts every key in patch and deletes keys whose value is
// nil, then returns the full resulting field set. Each key is written
// independently so concurrent patches of different keys never clobber each
// other.
func (s *SQLStore) PatchFields(ctx context.Context, propertyID string, patch types.Fields) (types.Fields, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getProperty(ctx, tx, propertyID); err != nil {
		return nil, err
	}
	if err := upsertFields(ctx, tx, propertyID, patch); err != nil {
		return nil, err
	}
	if len(patch) > 0 {
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE properties SET updated_at = ? WHERE id = ?`),
			formatTime(now()), propertyID)
		if err != nil {
			return nil, fmt.Errorf("touch property: %w", err)
		}
	}

	fields, err := getFields(ctx, tx, propertyID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return fields, nil
}

func upsertFields(ctx context.Context, e execer, propertyID string, patch types.Fields) error {
	ts := formatTime(now())
	for key, v := range patch {
		if v == nil {
			_, err := e.ExecContext(ctx, e.Rebind(`
				DELETE FROM property_fields WHERE property_id = ? AND field_key = ?
			`), propertyID, key)
			if err != nil {
				return fmt.Errorf("delete field %s: %w", key, err)
			}
			continue
		}

		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", key, err)
		}
		_, err = e.ExecContext(ctx, e.Rebind(`
			INSERT INTO property_fields (property_id, field_key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (property_id, field_key)
			DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`), propertyID, key, string(b), ts)
		if err != nil {
			return fmt.Errorf("upsert field %s: %w", key, err)
		}
	}
	return nil
}
