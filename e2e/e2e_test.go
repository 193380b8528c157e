package e2e

import (
	"os"
	"sync"
	"testing"
)

// harness and dba are shared by every test and started by the first one.
var (
	harness     *TestHarness
	dba         *DBAssert
	harnessOnce sync.Once
)

func ensureHarness(t *testing.T) (*TestHarness, *DBAssert) {
	t.Helper()
	if _, err := os.Stat(BinaryPath()); err != nil {
		t.Skipf("proofledger binary not built: %v", err)
	}
	harnessOnce.Do(func() {
		harness = NewHarness(t)
		dba = NewDBAssert(harness.LedgerDB)
	})
	if harness == nil {
		t.Fatal("harness initialization failed")
	}
	return harness, dba
}

func TestMain(m *testing.M) {
	exitCode := m.Run()
	if dba != nil {
		dba.Close()
	}
	if harness != nil {
		harness.Stop()
	}
	os.Exit(exitCode)
}
