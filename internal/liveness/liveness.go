// Package liveness detects feed silence, globally and per symbol, using a
// monotonic clock. It is startup-aware: nothing is ever reported dead or
// stale before the first observation arrives, matching the doublezero
// liveness scheduler's use of explicit "armed" state rather than a
// zero-value timestamp standing in for "never seen".
package liveness

import (
	"strings"
	"sync"
	"time"

	"github.com/lumduan/settrade-feed-adapter/internal/config"
	"github.com/lumduan/settrade-feed-adapter/internal/monoclock"
)

// Monitor tracks the most recent event timestamp globally and per symbol.
// Every method takes an internal mutex, so it is safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	clk monoclock.Clock

	maxGapNs      int64
	perSymbolGap  map[string]int64
	hasGlobalLast bool
	globalLastNs  int64
	symbolLastNs  map[string]int64
}

// New constructs a Monitor from cfg.
func New(cfg config.LivenessConfig) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	perSymbol := make(map[string]int64, len(cfg.PerSymbolMaxGap))
	for symbol, seconds := range cfg.PerSymbolMaxGap {
		perSymbol[strings.ToUpper(symbol)] = secondsToNs(seconds)
	}
	return &Monitor{
		clk:          monoclock.New(),
		maxGapNs:     secondsToNs(cfg.MaxGapSeconds),
		perSymbolGap: perSymbol,
		symbolLastNs: make(map[string]int64),
	}, nil
}

func secondsToNs(seconds float64) int64 {
	return int64(seconds * float64(time.Second))
}

// OnEvent records an observation for symbol at nowNs, or at the monitor's
// own monotonic clock reading if nowNs is omitted.
func (m *Monitor) OnEvent(symbol string, nowNs ...int64) {
	symbol = strings.ToUpper(symbol)
	now := m.resolveNow(nowNs)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hasGlobalLast = true
	m.globalLastNs = now
	m.symbolLastNs[symbol] = now
}

// IsFeedDead reports whether the feed as a whole has gone silent past the
// configured global threshold. It is always false before the first event.
func (m *Monitor) IsFeedDead(nowNs ...int64) bool {
	now := m.resolveNow(nowNs)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasGlobalLast {
		return false
	}
	return gapExceeds(now, m.globalLastNs, m.maxGapNs)
}

// IsStale reports whether symbol has gone silent past its threshold. It is
// always false for a symbol that has never been observed.
func (m *Monitor) IsStale(symbol string, nowNs ...int64) bool {
	symbol = strings.ToUpper(symbol)
	now := m.resolveNow(nowNs)

	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.symbolLastNs[symbol]
	if !ok {
		return false
	}
	return gapExceeds(now, last, m.gapNsLocked(symbol))
}

// StaleSymbols returns every currently tracked symbol whose gap exceeds its
// threshold.
func (m *Monitor) StaleSymbols(nowNs ...int64) []string {
	now := m.resolveNow(nowNs)

	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string
	for symbol, last := range m.symbolLastNs {
		if gapExceeds(now, last, m.gapNsLocked(symbol)) {
			stale = append(stale, symbol)
		}
	}
	return stale
}

// HasEverReceived reports whether any event has ever been recorded.
func (m *Monitor) HasEverReceived() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasGlobalLast
}

// HasSeen reports whether symbol has ever been recorded.
func (m *Monitor) HasSeen(symbol string) bool {
	symbol = strings.ToUpper(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.symbolLastNs[symbol]
	return ok
}

// TrackedSymbolCount returns the number of symbols with a recorded entry.
func (m *Monitor) TrackedSymbolCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.symbolLastNs)
}

// Purge removes symbol's entry without affecting the global timestamp. It
// reports whether the symbol was tracked.
func (m *Monitor) Purge(symbol string) bool {
	symbol = strings.ToUpper(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.symbolLastNs[symbol]
	delete(m.symbolLastNs, symbol)
	return ok
}

// Reset clears the global timestamp and all per-symbol state.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasGlobalLast = false
	m.globalLastNs = 0
	m.symbolLastNs = make(map[string]int64)
}

func (m *Monitor) gapNsLocked(symbol string) int64 {
	if override, ok := m.perSymbolGap[symbol]; ok {
		return override
	}
	return m.maxGapNs
}

func (m *Monitor) resolveNow(nowNs []int64) int64 {
	if len(nowNs) > 0 {
		return nowNs[0]
	}
	return m.clk.NowNs()
}

// gapExceeds reports whether the gap between now and last is strictly
// greater than threshold, clamping negative (out-of-order) deltas to zero
// so a now earlier than last never produces a false positive.
func gapExceeds(now, last, thresholdNs int64) bool {
	gap := now - last
	if gap < 0 {
		gap = 0
	}
	return gap > thresholdNs
}
