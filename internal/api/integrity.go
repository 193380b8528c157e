package api

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

var (
	binaryHash     string
	binaryHashOnce sync.Once
	startTime      = time.Now()
)

// computeBinaryHash calculates SHA-256 of the running binary (once).
func computeBinaryHash() string {
	binaryHashOnce.Do(func() {
		binaryHash = "unknown"
		exe, err := os.Executable()
		if err != nil {
			return
		}
		f, err := os.Open(exe)
		if err != nil {
			return
		}
		defer f.Close()
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return
		}
		binaryHash = fmt.Sprintf("sha256:%x", h.Sum(nil))
	})
	return binaryHash
}

// BinaryHash returns the cached binary hash (call from main for startup log).
func BinaryHash() string {
	return computeBinaryHash()
}

func (a *API) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	resp, err := a.ep.GetConfig(a.requestContext(r), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	var configVersion uint64
	if p, ok := resp.(ledger.Params); ok {
		configVersion = p.Version
	}
	report := map[string]any{
		"binary_hash":    computeBinaryHash(),
		"go_version":     runtime.Version(),
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"height":         a.clock.Height(),
		"config_version": configVersion,
	}
	if a.traces != nil {
		sum, err := a.traces.Summarize(r.Context(), 5)
		if err != nil {
			slog.Warn("summarizing sql traces", "error", err)
		} else {
			report["sql_traces"] = sum
		}
	}
	jsonResp(w, http.StatusOK, report)
}
