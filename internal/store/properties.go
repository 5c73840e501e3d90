package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/rentops/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
)

const propertyColumns = `id, address, city, postal_code, phase, created_at, updated_at`

type propertyRow struct {
	ID         string `db:"id"`
	Address    string `db:"address"`
	City       string `db:"city"`
	PostalCode string `db:"postal_code"`
	Phase      string `db:"phase"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (r propertyRow) toProperty() types.Property {
	return types.Property{
		ID:         r.ID,
		Address:    r.Address,
		City:       r.City,
		PostalCode: r.PostalCode,
		Phase:      types.Phase(r.Phase),
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}
}

// CreateProperty inserts p together with its initial fields. ID and
// timestamps are assigned when empty.
func (s *SQLStore) CreateProperty(ctx context.Context, p *types.Property, fields types.Fields) error {
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	ts := now()
	p.CreatedAt = ts
	p.UpdatedAt = ts

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO properties (id, address, city, postal_code, phase, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.Address, p.City, p.PostalCode, string(p.Phase), formatTime(ts), formatTime(ts))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert property: %w", err)
	}

	if err := upsertFields(ctx, tx, p.ID, fields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetProperty retrieves a property by ID.
func (s *SQLStore) GetProperty(ctx context.Context, id string) (*types.Property, error) {
	return getProperty(ctx, s.db, id)
}

func getProperty(ctx context.Context, q queryer, id string) (*types.Property, error) {
	var row propertyRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+propertyColumns+` FROM properties WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get property: %w", err)
	}
	p := row.toProperty()
	return &p, nil
}

// likeEscaper makes search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListProperties returns properties ordered by most recently updated.
func (s *SQLStore) ListProperties(ctx context.Context, filter types.PropertyFilter) ([]types.Property, error) {
	var (
		where []string
		args  []any
	)
	if filter.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, string(filter.Phase))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		where = append(where, `(LOWER(address) LIKE ? ESCAPE '\' OR LOWER(city) LIKE ? ESCAPE '\' OR LOWER(postal_code) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + propertyColumns + ` FROM properties`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []propertyRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}

	out := make([]types.Property, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toProperty())
	}
	return out, nil
}

// UpdateProperty applies a patch to the core columns.
func (s *SQLStore) UpdateProperty(ctx context.Context, id string, patch types.PropertyPatch) (*types.Property, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := getProperty(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if patch.Address != nil {
		p.Address = *patch.Address
	}
	if patch.City != nil {
		p.City = *patch.City
	}
	if patch.PostalCode != nil {
		p.PostalCode = *patch.PostalCode
	}
	p.UpdatedAt = now()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE properties SET address = ?, city = ?, postal_code = ?, updated_at = ? WHERE id = ?
	`), p.Address, p.City, p.PostalCode, formatTime(p.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("update property: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return p, nil
}

// SetPhase moves a property to phase.
func (s *SQLStore) SetPhase(ctx context.Context, id string, phase types.Phase) (*types.Property, error) {
	ts := now()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE properties SET phase = ?, updated_at = ? WHERE id = ?
	`), string(phase), formatTime(ts), id)
	if err != nil {
		return nil, fmt.Errorf("set phase: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return s.GetProperty(ctx, id)
}

// DeleteProperty removes a property. Fields, tasks and documents cascade;
// leads are detached.
func (s *SQLStore) DeleteProperty(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM properties WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return requireAffected(result)
}

// GetInspection returns the technical inspection report, or nil when none
// has been saved.
func (s *SQLStore) GetInspection(ctx context.Context, propertyID string) (*types.InspectionReport, error) {
	var raw sql.NullString
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT inspection FROM properties WHERE id = ?`), propertyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get inspection: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var report types.InspectionReport
	if err := json.Unmarshal([]byte(raw.String), &report); err != nil {
		return nil, fmt.Errorf("decode inspection: %w", err)
	}
	return &report, nil
}

// SaveInspection replaces the inspection report. A nil report clears it.
func (s *SQLStore) SaveInspection(ctx context.Context, propertyID string, report *types.InspectionReport) error {
	var raw sql.NullString
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode inspection: %w", err)
		}
		raw = sql.NullString{String: string(b), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE properties SET inspection = ?, updated_at = ? WHERE id = ?
	`), raw, formatTime(now()), propertyID)
	if err != nil {
		return fmt.Errorf("save inspection: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
