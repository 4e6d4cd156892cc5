package services

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/ratelimit"
)

// MonitorConfig holds the thresholds for suspicious-pattern detection.
type MonitorConfig struct {
	Window                time.Duration // rolling window for per-key counts
	MaxFailuresPerIP      int
	MaxFailuresPerAccount int
	MaxTokenInvalidPerIP  int
	RapidWindow           time.Duration // burst detection window
	RapidThreshold        int
}

// DefaultMonitorConfig returns the thresholds used unless overridden.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Window:                15 * time.Minute,
		MaxFailuresPerIP:      10,
		MaxFailuresPerAccount: 5,
		MaxTokenInvalidPerIP:  5,
		RapidWindow:           30 * time.Second,
		RapidThreshold:        3,
	}
}

// Substrings of user agents that indicate automation rather than a staff
// browser. Matched case-insensitively; an empty user agent is also flagged.
var automationSignatures = []string{
	"curl",
	"wget",
	"python",
	"perl",
	"ruby",
	"java",
	"go-http-client",
	"httpclient",
	"libwww",
	"scrapy",
	"bot",
	"crawler",
	"spider",
	"scanner",
}

// SecurityMonitor correlates classified security events: it keeps bounded
// rolling activity windows per key and flags abnormal patterns. All state
// is in-memory and ephemeral; a restart starts the windows empty.
type SecurityMonitor struct {
	mu              sync.Mutex
	ipFailures      map[string][]time.Time
	accountFailures map[string][]time.Time
	ipTokenInvalid  map[string][]time.Time
	recent          map[string][]time.Time // all events per key, for burst detection

	config MonitorConfig
	clock  ratelimit.Clock
	logger *slog.Logger
}

// NewSecurityMonitor creates a monitor using the system clock.
func NewSecurityMonitor(config MonitorConfig, logger *slog.Logger) *SecurityMonitor {
	return NewSecurityMonitorWithClock(config, ratelimit.SystemClock(), logger)
}

// NewSecurityMonitorWithClock creates a monitor with an injected clock for
// deterministic window testing.
func NewSecurityMonitorWithClock(config MonitorConfig, clock ratelimit.Clock, logger *slog.Logger) *SecurityMonitor {
	return &SecurityMonitor{
		ipFailures:      make(map[string][]time.Time),
		accountFailures: make(map[string][]time.Time),
		ipTokenInvalid:  make(map[string][]time.Time),
		recent:          make(map[string][]time.Time),
		config:          config,
		clock:           clock,
		logger:          logger,
	}
}

// Record ingests one event into the rolling windows and returns the
// suspicious-activity findings for it, evaluated after the windows were
// updated so the triggering event counts toward its own thresholds.
func (m *SecurityMonitor) Record(event *models.SecurityEvent) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := event.Timestamp
	if now.IsZero() {
		now = m.clock.Now()
	}

	switch event.Type {
	case models.EventLoginFailure:
		if event.IPAddress != "" {
			m.ipFailures[event.IPAddress] = appendPruned(m.ipFailures[event.IPAddress], now, m.config.Window)
		}
		if event.Username != "" {
			m.accountFailures[event.Username] = appendPruned(m.accountFailures[event.Username], now, m.config.Window)
		}
	case models.EventTokenInvalid:
		if event.IPAddress != "" {
			m.ipTokenInvalid[event.IPAddress] = appendPruned(m.ipTokenInvalid[event.IPAddress], now, m.config.Window)
		}
	}

	for _, key := range eventKeys(event) {
		m.recent[key] = appendPruned(m.recent[key], now, m.config.RapidWindow)
	}

	return m.detectLocked(event, now)
}

// detectLocked evaluates all patterns for the event. Caller holds the lock.
func (m *SecurityMonitor) detectLocked(event *models.SecurityEvent, now time.Time) []string {
	var findings []string

	if event.IPAddress != "" {
		if count := countWithin(m.ipFailures[event.IPAddress], now, m.config.Window); count >= m.config.MaxFailuresPerIP {
			findings = append(findings, fmt.Sprintf("excessive login failures from IP %s", event.IPAddress))
		}
		if count := countWithin(m.ipTokenInvalid[event.IPAddress], now, m.config.Window); count >= m.config.MaxTokenInvalidPerIP {
			findings = append(findings, fmt.Sprintf("excessive invalid tokens from IP %s", event.IPAddress))
		}
	}

	if event.Username != "" {
		if count := countWithin(m.accountFailures[event.Username], now, m.config.Window); count >= m.config.MaxFailuresPerAccount {
			findings = append(findings, fmt.Sprintf("excessive login failures for account %s", event.Username))
		}
	}

	if isAutomationAgent(event.UserAgent) {
		findings = append(findings, "automation signature in user agent")
	}

	for _, key := range eventKeys(event) {
		if count := countWithin(m.recent[key], now, m.config.RapidWindow); count >= m.config.RapidThreshold {
			findings = append(findings, fmt.Sprintf("rapid succession of events for %s", key))
			break
		}
	}

	return findings
}

// IsSuspiciousIP reports whether the IP currently exceeds either of its
// tracked thresholds. Point-in-time, based on what is tracked right now.
func (m *SecurityMonitor) IsSuspiciousIP(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	return countWithin(m.ipFailures[ip], now, m.config.Window) >= m.config.MaxFailuresPerIP ||
		countWithin(m.ipTokenInvalid[ip], now, m.config.Window) >= m.config.MaxTokenInvalidPerIP
}

// IsSuspiciousUser reports whether the account currently exceeds its
// failure threshold.
func (m *SecurityMonitor) IsSuspiciousUser(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	return countWithin(m.accountFailures[username], now, m.config.Window) >= m.config.MaxFailuresPerAccount
}

// Sweep prunes every tracking map and drops now-empty keys, bounding
// memory under sustained attack. Returns the number of keys removed.
func (m *SecurityMonitor) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	removed += sweepMap(m.ipFailures, now, m.config.Window)
	removed += sweepMap(m.accountFailures, now, m.config.Window)
	removed += sweepMap(m.ipTokenInvalid, now, m.config.Window)
	removed += sweepMap(m.recent, now, m.config.RapidWindow)

	if removed > 0 {
		m.logger.Debug("security monitor sweep", slog.Int("keys_removed", removed))
	}
	return removed
}

func sweepMap(tracked map[string][]time.Time, now time.Time, window time.Duration) int {
	removed := 0
	for key, stamps := range tracked {
		pruned := pruneOld(stamps, now, window)
		if len(pruned) == 0 {
			delete(tracked, key)
			removed++
		} else {
			tracked[key] = pruned
		}
	}
	return removed
}

// eventKeys returns the burst-detection keys an event counts toward.
func eventKeys(event *models.SecurityEvent) []string {
	var keys []string
	if event.IPAddress != "" {
		keys = append(keys, "ip:"+event.IPAddress)
	}
	if event.Username != "" {
		keys = append(keys, "user:"+event.Username)
	}
	return keys
}

func isAutomationAgent(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

func appendPruned(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	return append(pruneOld(stamps, now, window), now)
}

func countWithin(stamps []time.Time, now time.Time, window time.Duration) int {
	return len(pruneOld(stamps, now, window))
}

func pruneOld(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
