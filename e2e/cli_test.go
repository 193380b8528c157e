package e2e

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestTokenCommand(t *testing.T) {
	h, _ := ensureHarness(t)
	out, err := h.Run(t, "token", "--identity", "C")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	var user map[string]any
	resp, err := h.JSON("POST", "/api/register", nil, strings.TrimSpace(out), &user)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		t.Fatalf("register with CLI token: status %d", resp.StatusCode)
	}
}

func TestExportCommand(t *testing.T) {
	h, _ := ensureHarness(t)
	carol := h.Login(t, "C")
	if resp, err := h.Do("POST", "/api/register", nil, carol); err == nil {
		resp.Body.Close()
	}
	submit(t, h, carol, 10)

	out, err := h.Run(t, "export", "--raw", "--submitter", "C")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	sc := bufio.NewScanner(strings.NewReader(out))
	lines := 0
	for sc.Scan() {
		var rec struct {
			Submitter string `json:"submitter"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if rec.Submitter != "C" {
			t.Fatalf("submitter = %q", rec.Submitter)
		}
		lines++
	}
	if lines == 0 {
		t.Fatal("export wrote nothing")
	}
}
