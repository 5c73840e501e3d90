package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/validation"
	"github.com/hyperengineering/rentops/internal/workflow"
	"github.com/oklog/ulid/v2"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("document exceeds upload limit")

// DefaultMaxUploadBytes caps uploads when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"image/jpeg":         true,
	"image/png":          true,
	"image/webp":         true,
	"image/heic":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Upload is one file to attach to a property. Exactly one of FieldKey and
// RoomKey is set.
type Upload struct {
	PropertyID string
	FieldKey   string
	RoomKey    string
	Filename   string
	MimeType   string
	// Size is -1 when unknown.
	Size int64
	Body io.Reader
}

// DocumentService stores uploaded files and binds them to document fields
// or inspection rooms.
type DocumentService struct {
	store      store.Store
	properties *PropertyService
	storage    documents.Storage
	logger     *slog.Logger
	maxBytes   int64
}

// NewDocumentService creates a DocumentService. maxBytes <= 0 selects
// DefaultMaxUploadBytes.
func NewDocumentService(st store.Store, properties *PropertyService, storage documents.Storage, logger *slog.Logger, maxBytes int64) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DocumentService{
		store:      st,
		properties: properties,
		storage:    storage,
		logger:     logger.With("component", "document_service"),
		maxBytes:   maxBytes,
	}
}

// MaxBytes returns the upload size limit.
func (s *DocumentService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores a file and binds it. A document field holds one document,
// so a previous one is removed; a room collects photos.
func (s *DocumentService) Upload(ctx context.Context, up Upload) (*types.Document, *PropertyDetail, error) {
	if err := validateUpload(up); err != nil {
		return nil, nil, err
	}
	if up.Size > s.maxBytes {
		return nil, nil, ErrTooLarge
	}
	if _, err := s.store.GetProperty(ctx, up.PropertyID); err != nil {
		return nil, nil, fmt.Errorf("failed to get property: %w", err)
	}

	var previous string
	if up.FieldKey != "" {
		fields, err := s.store.GetFields(ctx, up.PropertyID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get fields: %w", err)
		}
		previous, _ = fields[up.FieldKey].(string)
	} else {
		report, err := s.store.GetInspection(ctx, up.PropertyID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get inspection: %w", err)
		}
		if report.Room(up.RoomKey) == nil {
			return nil, nil, invalid("room_key", fmt.Sprintf("unknown room %q", up.RoomKey))
		}
	}

	body, mimeType, err := sniff(up.Body, up.MimeType)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if !documentTypes[mimeType] {
		return nil, nil, invalid("file", fmt.Sprintf("unsupported file type %s", mimeType))
	}
	if up.RoomKey != "" && !strings.HasPrefix(mimeType, "image/") {
		return nil, nil, invalid("file", "room photos must be images")
	}

	doc := &types.Document{
		ID:         ulid.Make().String(),
		PropertyID: up.PropertyID,
		FieldKey:   up.FieldKey,
		RoomKey:    up.RoomKey,
		Filename:   documents.SanitizeFilename(up.Filename),
		MimeType:   mimeType,
	}
	doc.StorageKey = documents.ObjectKey(doc.PropertyID, doc.ID, doc.Filename)

	counter := &countingReader{r: io.LimitReader(body, s.maxBytes+1)}
	if err := s.storage.Save(ctx, doc.StorageKey, counter, up.Size, mimeType); err != nil {
		return nil, nil, fmt.Errorf("failed to store document: %w", err)
	}
	if counter.n > s.maxBytes {
		s.discard(ctx, doc.StorageKey)
		return nil, nil, ErrTooLarge
	}
	doc.SizeBytes = counter.n

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		s.discard(ctx, doc.StorageKey)
		return nil, nil, fmt.Errorf("failed to record document: %w", err)
	}

	detail, err := s.bind(ctx, doc)
	if err != nil {
		if derr := s.store.DeleteDocument(ctx, doc.ID); derr != nil {
			s.logger.Warn("failed to remove unbound document", "document_id", doc.ID, "error", derr)
		}
		s.discard(ctx, doc.StorageKey)
		return nil, nil, err
	}

	if previous != "" && previous != doc.ID {
		s.remove(ctx, previous)
	}

	record(ctx, s.store, s.logger, EntityProperty, doc.PropertyID, "upload_document", map[string]any{
		"document_id": doc.ID,
		"field_key":   doc.FieldKey,
		"room_key":    doc.RoomKey,
		"filename":    doc.Filename,
		"size_bytes":  doc.SizeBytes,
	})
	s.logger.Info("document uploaded",
		"action", "upload",
		"property_id", doc.PropertyID,
		"document_id", doc.ID,
		"size_bytes", doc.SizeBytes,
	)
	return doc, detail, nil
}

// Get returns document metadata.
func (s *DocumentService) Get(ctx context.Context, id string) (*types.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Open returns document metadata and its content. The caller closes the
// reader.
func (s *DocumentService) Open(ctx context.Context, id string) (*types.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return nil, nil, fmt.Errorf("document content missing: %w", store.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open document: %w", err)
	}
	return doc, rc, nil
}

// DownloadURL returns a direct link when the storage backend can sign one.
func (s *DocumentService) DownloadURL(ctx context.Context, id string) (string, time.Time, error) {
	p, ok := s.storage.(documents.Presigner)
	if !ok {
		return "", time.Time{}, documents.ErrNotConfigured
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	return p.PresignedURL(ctx, doc.StorageKey, doc.Filename)
}

// List returns the documents of a property.
func (s *DocumentService) List(ctx context.Context, propertyID string) ([]types.Document, error) {
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	docs, err := s.store.ListDocuments(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Delete unbinds a document from its field or room and removes it.
func (s *DocumentService) Delete(ctx context.Context, id string) (*PropertyDetail, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail, err := s.unbind(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	s.discard(ctx, doc.StorageKey)

	record(ctx, s.store, s.logger, EntityProperty, doc.PropertyID, "delete_document", map[string]any{
		"document_id": doc.ID,
		"field_key":   doc.FieldKey,
		"room_key":    doc.RoomKey,
	})
	if detail == nil {
		detail, err = s.properties.Get(ctx, doc.PropertyID)
		if err != nil {
			return nil, err
		}
	}
	return detail, nil
}

func (s *DocumentService) bind(ctx context.Context, doc *types.Document) (*PropertyDetail, error) {
	if doc.FieldKey != "" {
		return s.properties.PatchFields(ctx, doc.PropertyID, types.Fields{doc.FieldKey: doc.ID})
	}
	report, err := s.store.GetInspection(ctx, doc.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	room := report.Room(doc.RoomKey)
	if room == nil {
		return nil, invalid("room_key", fmt.Sprintf("unknown room %q", doc.RoomKey))
	}
	photos := append(append([]string(nil), room.Photos...), doc.ID)
	return s.properties.UpdateRoom(ctx, doc.PropertyID, doc.RoomKey, types.RoomPatch{Photos: &photos})
}

// unbind clears whatever still references doc. A nil detail means nothing
// referenced it.
func (s *DocumentService) unbind(ctx context.Context, doc *types.Document) (*PropertyDetail, error) {
	if doc.FieldKey != "" {
		fields, err := s.store.GetFields(ctx, doc.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("failed to get fields: %w", err)
		}
		// Any document field still holding the id is cleared, not only the
		// one it was uploaded for.
		patch := types.Fields{}
		for key, v := range fields {
			ref, ok := workflow.FieldByKey(key)
			if !ok || ref.Field.Kind != workflow.FieldDocument {
				continue
			}
			if current, _ := v.(string); current == doc.ID {
				patch[key] = nil
			}
		}
		if len(patch) == 0 {
			return nil, nil
		}
		return s.properties.PatchFields(ctx, doc.PropertyID, patch)
	}

	report, err := s.store.GetInspection(ctx, doc.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	room := report.Room(doc.RoomKey)
	if room == nil {
		return nil, nil
	}
	photos := make([]string, 0, len(room.Photos))
	for _, p := range room.Photos {
		if p != doc.ID {
			photos = append(photos, p)
		}
	}
	if len(photos) == len(room.Photos) {
		return nil, nil
	}
	return s.properties.UpdateRoom(ctx, doc.PropertyID, doc.RoomKey, types.RoomPatch{Photos: &photos})
}

// remove deletes a replaced document without touching the property.
func (s *DocumentService) remove(ctx context.Context, id string) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load replaced document", "document_id", id, "error", err)
		}
		return
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		s.logger.Warn("failed to delete replaced document", "document_id", id, "error", err)
		return
	}
	s.discard(ctx, doc.StorageKey)
}

func (s *DocumentService) discard(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, documents.ErrNotFound) {
		s.logger.Warn("failed to delete stored document", "key", key, "error", err)
	}
}

func validateUpload(up Upload) error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("property_id", up.PropertyID))
	if up.Body == nil {
		c.Add(&validation.ValidationError{Field: "file", Message: "is required"})
	}
	switch {
	case up.FieldKey == "" && up.RoomKey == "":
		c.Add(&validation.ValidationError{Field: "field_key", Message: "field_key or room_key is required"})
	case up.FieldKey != "" && up.RoomKey != "":
		c.Add(&validation.ValidationError{Field: "field_key", Message: "cannot be combined with room_key"})
	case up.FieldKey != "":
		ref, ok := workflow.FieldByKey(up.FieldKey)
		if !ok || ref.Field.Kind != workflow.FieldDocument {
			c.Add(&validation.ValidationError{Field: "field_key", Message: "must name a document field"})
		}
	default:
		c.Add(validation.Var("room_key", up.RoomKey, "max=64"))
	}
	if c.HasErrors() {
		return invalidAll(c.Errors())
	}
	return nil
}

// sniff resolves the media type of an upload. A missing or generic declared
// type is replaced by content detection.
func sniff(r io.Reader, declared string) (io.Reader, string, error) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err == nil && mediaType != "application/octet-stream" {
		return r, strings.ToLower(mediaType), nil
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", err
	}
	head = head[:n]
	detected, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return io.MultiReader(bytes.NewReader(head), r), detected, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
