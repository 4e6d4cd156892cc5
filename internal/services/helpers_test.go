package services_test

import (
	"io"
	"log/slog"
	"time"

	pkglogger "github.com/jmercer-dev/authgate/pkg/logger"
)

// fakeClock is a manually advanced clock for deterministic expiry tests.
// It starts at the real wall clock because signed tokens are validated
// against real time; only the advance is simulated.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestAudit() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// stubHasher verifies by plain comparison and counts invocations, so tests
// can assert the hash primitive was skipped for locked accounts.
type stubHasher struct {
	verifyCalls int
}

func (h *stubHasher) Hash(plain string) (string, error) {
	return "hashed:" + plain, nil
}

func (h *stubHasher) Verify(plain, hash string) bool {
	h.verifyCalls++
	return hash == "hashed:"+plain
}
