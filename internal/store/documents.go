package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/rentops/internal/types"
	"github.com/oklog/ulid/v2"
)

const documentColumns = `id, property_id, field_key, room_key, filename, mime_type, size_bytes, storage_key, uploaded_at`

type documentRow struct {
	ID         string `db:"id"`
	PropertyID string `db:"property_id"`
	FieldKey   string `db:"field_key"`
	RoomKey    string `db:"room_key"`
	Filename   string `db:"filename"`
	MimeType   string `db:"mime_type"`
	SizeBytes  int64  `db:"size_bytes"`
	StorageKey string `db:"storage_key"`
	UploadedAt string `db:"uploaded_at"`
}

func (r documentRow) toDocument() types.Document {
	return types.Document{
		ID:         r.ID,
		PropertyID: r.PropertyID,
		FieldKey:   r.FieldKey,
		RoomKey:    r.RoomKey,
		Filename:   r.Filename,
		MimeType:   r.MimeType,
		SizeBytes:  r.SizeBytes,
		StorageKey: r.StorageKey,
		UploadedAt: parseTime(r.UploadedAt),
	}
}

// CreateDocument records uploaded file metadata.
func (s *SQLStore) CreateDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" {
		doc.ID = ulid.Make().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), doc.ID, doc.PropertyID, doc.FieldKey, doc.RoomKey, doc.Filename, doc.MimeType,
		doc.SizeBytes, doc.StorageKey, formatTime(doc.UploadedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves document metadata by ID.
func (s *SQLStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+documentColumns+` FROM documents WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	d := row.toDocument()
	return &d, nil
}

// ListDocuments returns the documents of a property in upload order.
func (s *SQLStore) ListDocuments(ctx context.Context, propertyID string) ([]types.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+documentColumns+` FROM documents WHERE property_id = ? ORDER BY uploaded_at, id
	`), propertyID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]types.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDocument())
	}
	return out, nil
}

// DeleteDocument removes document metadata. The stored object is the
// caller's responsibility.
func (s *SQLStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(result)
}
