package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hyperengineering/rentops/internal/config"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	objects map[string][]byte
	types   map[string]string

	putErr     error
	presignErr error

	lastBucket string
	lastKey    string
	lastParams url.Values
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *mockS3Client) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	m.lastBucket, m.lastKey = bucket, key
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *mockS3Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.lastBucket, m.lastKey = bucket, key
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockS3Client) RemoveObject(ctx context.Context, bucket, key string) error {
	m.lastBucket, m.lastKey = bucket, key
	delete(m.objects, key)
	return nil
}

func (m *mockS3Client) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
	m.lastBucket, m.lastKey, m.lastParams = bucket, key, params
	if m.presignErr != nil {
		return nil, m.presignErr
	}
	return url.Parse("https://s3.example.com/" + bucket + "/" + key + "?presigned=true")
}

func newTestS3Storage(m *mockS3Client) *S3Storage {
	return &S3Storage{client: m, bucket: "rentops-docs", urlExpiry: 15 * time.Minute}
}

func TestS3Storage_SaveOpenDelete(t *testing.T) {
	mock := newMockS3Client()
	s := newTestS3Storage(mock)
	ctx := context.Background()

	if err := s.Save(ctx, "p1/d1.pdf", strings.NewReader("pdf"), 3, "application/pdf"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if mock.lastBucket != "rentops-docs" || mock.lastKey != "p1/d1.pdf" {
		t.Errorf("put %s/%s", mock.lastBucket, mock.lastKey)
	}
	if mock.types["p1/d1.pdf"] != "application/pdf" {
		t.Errorf("content type = %q", mock.types["p1/d1.pdf"])
	}

	rc, err := s.Open(ctx, "p1/d1.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "pdf" {
		t.Errorf("data = %q, want pdf", data)
	}

	if err := s.Delete(ctx, "p1/d1.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Open(ctx, "p1/d1.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() after delete = %v, want ErrNotFound", err)
	}
}

func TestS3Storage_SaveError(t *testing.T) {
	mock := newMockS3Client()
	mock.putErr = errors.New("network timeout")
	s := newTestS3Storage(mock)

	err := s.Save(context.Background(), "p1/d1.pdf", strings.NewReader("x"), 1, "application/pdf")
	if !errors.Is(err, mock.putErr) {
		t.Errorf("Save() error = %v, want wrapped network timeout", err)
	}
	if err := s.Save(context.Background(), "", strings.NewReader("x"), 1, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Save(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestS3Storage_PresignedURL(t *testing.T) {
	mock := newMockS3Client()
	s := newTestS3Storage(mock)

	urlStr, expiry, err := s.PresignedURL(context.Background(), "p1/d1.pdf", "contrato.pdf")
	if err != nil {
		t.Fatalf("PresignedURL() error = %v", err)
	}
	if !strings.Contains(urlStr, "p1/d1.pdf") {
		t.Errorf("url = %q", urlStr)
	}
	expectedExpiry := time.Now().Add(15 * time.Minute)
	if expiry.Before(expectedExpiry.Add(-1*time.Second)) || expiry.After(expectedExpiry.Add(1*time.Second)) {
		t.Errorf("expiry = %v, want approximately %v", expiry, expectedExpiry)
	}
	if got := mock.lastParams.Get("response-content-disposition"); got != `attachment; filename="contrato.pdf"` {
		t.Errorf("content disposition = %q", got)
	}

	mock.presignErr = errors.New("access denied")
	if _, _, err := s.PresignedURL(context.Background(), "p1/d1.pdf", ""); err == nil {
		t.Error("PresignedURL() expected error, got nil")
	}
}

func TestNewStorage_Backends(t *testing.T) {
	local, err := NewStorage(config.DocumentsConfig{Backend: "local", LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStorage(local) error = %v", err)
	}
	if _, ok := local.(*LocalStorage); !ok {
		t.Errorf("expected *LocalStorage, got %T", local)
	}

	ssl := false
	s3, err := NewStorage(config.DocumentsConfig{Backend: "s3", S3: config.S3Config{
		Bucket:    "rentops-docs",
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		UseSSL:    &ssl,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}})
	if err != nil {
		t.Fatalf("NewStorage(s3) error = %v", err)
	}
	s3s, ok := s3.(*S3Storage)
	if !ok {
		t.Fatalf("expected *S3Storage, got %T", s3)
	}
	if s3s.urlExpiry != 15*time.Minute {
		t.Errorf("urlExpiry = %v, want 15m default", s3s.urlExpiry)
	}

	if _, err := NewStorage(config.DocumentsConfig{Backend: "s3"}); err == nil {
		t.Error("NewStorage(s3) without bucket should fail")
	}
	if _, err := NewStorage(config.DocumentsConfig{Backend: "ftp"}); err == nil {
		t.Error("NewStorage(ftp) should fail")
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantHost string
		wantSSL  bool
	}{
		{"bare host", "s3.example.com", "s3.example.com", true},
		{"bare host:port", "minio:9000", "minio:9000", true},
		{"https URL", "https://s3.example.com", "s3.example.com", true},
		{"http URL", "http://minio:9000", "minio:9000", false},
		{"trailing slash", "http://localhost:9000/", "localhost:9000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ssl := true
			got := stripScheme(tt.endpoint, &ssl)
			if got != tt.wantHost {
				t.Errorf("stripScheme(%q) host = %q, want %q", tt.endpoint, got, tt.wantHost)
			}
			if ssl != tt.wantSSL {
				t.Errorf("stripScheme(%q) ssl = %v, want %v", tt.endpoint, ssl, tt.wantSSL)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"contrato.pdf", "p1/d1.pdf"},
		{"FOTO.JPG", "p1/d1.jpg"},
		{"sin_extension", "p1/d1"},
		{"raro.p$d f", "p1/d1.pdf"},
		{"largo.abcdefghijkl", "p1/d1"},
	}
	for _, tt := range tests {
		if got := ObjectKey("p1", "d1", tt.filename); got != tt.want {
			t.Errorf("ObjectKey(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"contrato.pdf", "contrato.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\ana\dni.jpg`, "dni.jpg"},
		{"mal\x00nombre.pdf", "malnombre.pdf"},
		{"", "document"},
		{"   ", "document"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_TruncatesOnRuneBoundary(t *testing.T) {
	// 254 ASCII bytes then a two-byte rune straddling the limit.
	name := strings.Repeat("a", 254) + "ñ.pdf"

	got := SanitizeFilename(name)
	if !utf8.ValidString(got) {
		t.Fatalf("SanitizeFilename produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if got != strings.Repeat("a", 254) {
		t.Errorf("len = %d, want the 254 bytes before the split rune", len(got))
	}

	short := strings.Repeat("é", 127) + ".pdf" // 258 bytes
	if got := SanitizeFilename(short); len(got) > 255 || !utf8.ValidString(got) {
		t.Errorf("SanitizeFilename(%d bytes) = %d bytes, valid=%v", len(short), len(got), utf8.ValidString(got))
	}
}
