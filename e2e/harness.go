// Package e2e drives a built proofledger binary over HTTP and its CLI, and
// checks the SQLite file it writes.
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
	"strings"
	"syscall"
	"testing"
	"time"
)

// Password is shared by every configured principal.
const Password = "e2e-password"

// Principals are the identities the harness can log in as.
var Principals = []string{"OWNER", "A", "B", "C"}

// TestHarness manages a proofledger subprocess and provides HTTP helpers.
type TestHarness struct {
	BaseURL    string
	DataDir    string
	LedgerDB   string
	ConfigPath string
	Binary     string

	cmd    *exec.Cmd
	client *http.Client
	port   int
}

// BinaryPath returns the absolute path of the binary built at the module root.
func BinaryPath() string {
	wd, _ := os.Getwd()
	binary, _ := filepath.Abs(filepath.Join(wd, "..", "proofledger"))
	return binary
}

// NewHarness writes a config, starts proofledger serve, and waits for health.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	binary := BinaryPath()
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Fatalf("binary not found at %s, run: CGO_ENABLED=0 go build -o proofledger .", binary)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	// Manual cleanup: t.TempDir() would vanish with the first test while the
	// server is shared.
	dataDir, err := os.MkdirTemp("", "proofledger-e2e-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	ledgerDB := filepath.Join(dataDir, "ledger.db")

	hash, err := exec.Command(binary, "hash-password", Password).Output()
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}

	var principals strings.Builder
	for _, id := range Principals {
		fmt.Fprintf(&principals, "\n[[auth.principals]]\nidentity = %q\npassword_hash = %q\n", id, strings.TrimSpace(string(hash)))
	}

	config := fmt.Sprintf(`[server]
addr = "127.0.0.1:%d"

[store]
backend = "sqlite"
path = %q

[auth]
jwt_secret = "e2e-test-secret-key-proofledger"
token_expiry_min = 60
%s
[ledger]
owner = "OWNER"
oracle = "OWNER"
submission_timeout_blocks = 144
challenge_period_blocks = 72
max_submissions_per_user = 10
reward_rate = 1
verification_fee = 50
voting_threshold = 51

[chain]
block_interval = "10m"

[log]
level = "warn"

[audit]
enabled = true

[metrics]
enabled = true
path = "/metrics"
`, port, ledgerDB, principals.String())

	configPath := filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cmd := exec.Command(binary, "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = dataDir
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting proofledger: %v", err)
	}

	h := &TestHarness{
		BaseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		DataDir:    dataDir,
		LedgerDB:   ledgerDB,
		ConfigPath: configPath,
		Binary:     binary,
		cmd:        cmd,
		port:       port,
		client:     &http.Client{Timeout: 30 * time.Second},
	}

	deadline := time.Now().Add(15 * time.Second)
	backoff := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(h.BaseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				t.Logf("proofledger ready on port %d", port)
				return h
			}
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff = backoff * 3 / 2
		}
	}

	h.Stop()
	t.Fatalf("proofledger did not become ready within 15s on port %d", port)
	return nil
}

// Stop sends SIGTERM, waits 5s, then SIGKILL. Cleans up the data directory.
func (h *TestHarness) Stop() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.cmd.Process.Kill()
		<-done
	}

	if h.DataDir != "" {
		os.RemoveAll(h.DataDir)
	}
}

// Do executes an HTTP request and returns the response.
func (h *TestHarness) Do(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.client.Do(req)
}

// JSON executes a request and decodes the JSON response into dst.
func (h *TestHarness) JSON(method, path string, body interface{}, token string, dst interface{}) (*http.Response, error) {
	resp, err := h.Do(method, path, body, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if dst != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dst); err != nil {
			return resp, fmt.Errorf("decoding JSON (status %d, body: %s): %w", resp.StatusCode, truncate(string(data), 500), err)
		}
	}
	return resp, nil
}

// Login authenticates a principal and returns its token.
func (h *TestHarness) Login(t *testing.T, id string) string {
	t.Helper()
	var result struct {
		Token string `json:"token"`
	}
	resp, err := h.JSON("POST", "/api/login", map[string]string{
		"identity": id,
		"password": Password,
	}, "", &result)
	if err != nil {
		t.Fatalf("login %s: %v", id, err)
	}
	RequireStatus(t, resp, http.StatusOK)
	return result.Token
}

// Run executes the binary with the harness config and returns stdout.
func (h *TestHarness) Run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{args[0], "--config", h.ConfigPath}, args[1:]...)
	cmd := exec.Command(h.Binary, full...)
	cmd.Dir = h.DataDir
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	return string(out), err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RequireStatus asserts the HTTP status code matches expected.
func RequireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, truncate(string(body), 500))
	}
}
