package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/rentops/internal/documents"
)

// mockReportWriter implements ReportWriter for testing.
type mockReportWriter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockReportWriter) Write(ctx context.Context, w io.Writer) error {
	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return err
	}
	_, werr := w.Write([]byte("PK\x03\x04 workbook"))
	return werr
}

func (m *mockReportWriter) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestStorage(t *testing.T) *documents.LocalStorage {
	t.Helper()
	s, err := documents.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return s
}

func TestReportKey(t *testing.T) {
	at := time.Date(2026, 10, 17, 8, 5, 9, 0, time.FixedZone("CEST", 2*3600))
	if got, want := ReportKey(at), "reports/board-20261017T060509Z.xlsx"; got != want {
		t.Errorf("ReportKey = %q, want %q", got, want)
	}
}

func TestReportCoordinator_Generate(t *testing.T) {
	storage := newTestStorage(t)
	writer := &mockReportWriter{}
	c := NewReportCoordinator(writer, storage, time.Hour)
	c.now = func() time.Time { return time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC) }

	key, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if key != "reports/board-20261017T060000Z.xlsx" {
		t.Errorf("key = %q", key)
	}

	rc, err := storage.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "PK\x03\x04 workbook" {
		t.Errorf("stored report = %q", data)
	}
}

func TestReportCoordinator_GenerateError(t *testing.T) {
	boom := errors.New("board unavailable")
	c := NewReportCoordinator(&mockReportWriter{err: boom}, newTestStorage(t), time.Hour)

	if _, err := c.Generate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Generate error = %v, want %v", err, boom)
	}
}

func TestReportCoordinator_DisabledReturnsImmediately(t *testing.T) {
	writer := &mockReportWriter{}
	c := NewReportCoordinator(writer, newTestStorage(t), 0)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval did not return")
	}
	if writer.getCalls() != 0 {
		t.Errorf("calls = %d, want 0", writer.getCalls())
	}
}

func TestReportCoordinator_RunsOnInterval(t *testing.T) {
	writer := &mockReportWriter{}
	c := NewReportCoordinator(writer, newTestStorage(t), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for writer.getCalls() < 2 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want at least 2", writer.getCalls())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestReportCoordinator_ContinuesAfterFailure(t *testing.T) {
	writer := &mockReportWriter{err: errors.New("transient")}
	c := NewReportCoordinator(writer, newTestStorage(t), 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	if writer.getCalls() < 2 {
		t.Errorf("calls = %d, want the loop to keep ticking after errors", writer.getCalls())
	}
}
