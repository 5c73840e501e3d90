//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

const e2eAPIKey = "e2e-test-api-key"

// rentopsServer manages a running rentops server process.
type rentopsServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile *os.File
}

// serverEnv configures the binary entirely through environment variables.
func serverEnv(dataDir string, port int) []string {
	return append(os.Environ(),
		fmt.Sprintf("RENTOPS_PORT=%d", port),
		"RENTOPS_DB_DRIVER=sqlite",
		"RENTOPS_DB_DSN="+filepath.Join(dataDir, "rentops.db"),
		"RENTOPS_DOCUMENTS_BACKEND=local",
		"RENTOPS_DOCUMENTS_PATH="+filepath.Join(dataDir, "documents"),
		"RENTOPS_EVENTS_BACKEND=memory",
		"RENTOPS_API_KEY="+e2eAPIKey,
		// Drafts only reach the database through a flush.
		"RENTOPS_AUTOSAVE_DELAY=1h",
		"RENTOPS_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
	)
}

// startRentops launches the binary over dataDir and waits for it to become
// healthy. Passing the same dataDir twice restarts over the same database.
func startRentops(t *testing.T, dataDir string) *rentopsServer {
	t.Helper()
	requireRentops(t)

	port := freePort(t)
	lf, err := os.OpenFile(filepath.Join(dataDir, "rentops.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}

	cmd := exec.Command(rentopsBin)
	cmd.Env = serverEnv(dataDir, port)
	cmd.Stdout = lf
	cmd.Stderr = lf
	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start rentops: %v", err)
	}

	s := &rentopsServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: lf,
	}
	t.Cleanup(s.stop)

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("rentops not healthy: %v\n%s", err, s.logs())
	}
	return s
}

// stop sends SIGINT and waits for the graceful shutdown to finish.
func (s *rentopsServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
}

func (s *rentopsServer) logs() string {
	b, _ := os.ReadFile(filepath.Join(s.dataDir, "rentops.log"))
	return string(b)
}

func (s *rentopsServer) baseURL() string {
	return fmt.Sprintf("http://%s/api/v1", s.address)
}

func (s *rentopsServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(s.baseURL() + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("rentops not healthy after %s", timeout)
}

// do sends an authenticated JSON request and decodes a JSON response into
// out when out is non-nil. It returns the status code.
func (s *rentopsServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.baseURL()+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e2eAPIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "e2e")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(raw) > 0 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v: %s", method, path, err, raw)
		}
	}
	return resp.StatusCode
}

// propertyDetail mirrors the fields of a property response the tests read.
type propertyDetail struct {
	ID      string         `json:"id"`
	Address string         `json:"address"`
	Phase   string         `json:"phase"`
	Fields  map[string]any `json:"fields"`
	Current struct {
		Phase   string `json:"phase"`
		Percent int    `json:"percent"`
	} `json:"current"`
}

func (s *rentopsServer) createProperty(t *testing.T, address string) propertyDetail {
	t.Helper()
	var p propertyDetail
	status := s.do(t, http.MethodPost, "/properties", map[string]any{
		"address": address,
		"city":    "Madrid",
	}, &p)
	if status != http.StatusCreated {
		t.Fatalf("create property: status %d", status)
	}
	return p
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
