package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/rentops/internal/types"
	"github.com/oklog/ulid/v2"
)

const leadColumns = `id, property_id, full_name, email, phone, phase, interested, qualified, notes, created_at, updated_at`

type leadRow struct {
	ID         string         `db:"id"`
	PropertyID sql.NullString `db:"property_id"`
	FullName   string         `db:"full_name"`
	Email      string         `db:"email"`
	Phone      string         `db:"phone"`
	Phase      string         `db:"phase"`
	Interested bool           `db:"interested"`
	Qualified  bool           `db:"qualified"`
	Notes      string         `db:"notes"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  string         `db:"updated_at"`
}

func (r leadRow) toLead() types.Lead {
	return types.Lead{
		ID:         r.ID,
		PropertyID: r.PropertyID.String,
		FullName:   r.FullName,
		Email:      r.Email,
		Phone:      r.Phone,
		Phase:      types.LeadPhase(r.Phase),
		Interested: r.Interested,
		Qualified:  r.Qualified,
		Notes:      r.Notes,
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}
}

// CreateLead inserts a lead. ID and timestamps are assigned.
func (s *SQLStore) CreateLead(ctx context.Context, lead *types.Lead) error {
	if lead.ID == "" {
		lead.ID = ulid.Make().String()
	}
	ts := now()
	lead.CreatedAt = ts
	lead.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), lead.ID, nullString(lead.PropertyID), lead.FullName, lead.Email, lead.Phone,
		string(lead.Phase), lead.Interested, lead.Qualified, lead.Notes,
		formatTime(ts), formatTime(ts))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// GetLead retrieves a lead by ID.
func (s *SQLStore) GetLead(ctx context.Context, id string) (*types.Lead, error) {
	var row leadRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+leadColumns+` FROM leads WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	l := row.toLead()
	return &l, nil
}

// ListLeads returns leads, newest first.
func (s *SQLStore) ListLeads(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error) {
	var (
		where []string
		args  []any
	)
	if filter.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, string(filter.Phase))
	}
	if filter.PropertyID != "" {
		where = append(where, "property_id = ?")
		args = append(args, filter.PropertyID)
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var rows []leadRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	out := make([]types.Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLead())
	}
	return out, nil
}

// UpdateLead writes every mutable column of lead.
func (s *SQLStore) UpdateLead(ctx context.Context, lead *types.Lead) error {
	lead.UpdatedAt = now()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE leads
		SET property_id = ?, full_name = ?, email = ?, phone = ?, phase = ?,
		    interested = ?, qualified = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`), nullString(lead.PropertyID), lead.FullName, lead.Email, lead.Phone, string(lead.Phase),
		lead.Interested, lead.Qualified, lead.Notes, formatTime(lead.UpdatedAt), lead.ID)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	return requireAffected(result)
}

// DeleteLead removes a lead.
func (s *SQLStore) DeleteLead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM leads WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return requireAffected(result)
}
