// Package dispatcher implements the bounded single-producer,
// single-consumer queue that decouples the MQTT IO thread from the
// consumer. It is a fixed-capacity ring buffer with drop-oldest overflow
// and an exponentially-smoothed drop-rate health signal.
//
// The ring and its four counters share one mutex rather than relying on
// per-field atomics. SPEC_FULL.md §9 calls this out explicitly: a
// mutex-protected ring is the clearer choice here unless the target
// language has a proven lock-free SPSC primitive, and correctness of the
// combined invariant (total_pushed - total_dropped - total_polled ==
// queue_len) is easiest to reason about under one lock covering both the
// ring and the counters.
package dispatcher

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumduan/settrade-feed-adapter/internal/apperr"
	"github.com/lumduan/settrade-feed-adapter/internal/config"
	"github.com/lumduan/settrade-feed-adapter/internal/event"
)

// Stats is a frozen snapshot of the dispatcher's counters.
type Stats struct {
	TotalPushed  uint64
	TotalPolled  uint64
	TotalDropped uint64
	QueueLen     int
	MaxLen       int
}

// Health is a frozen snapshot of the dispatcher's drop-pressure signal.
type Health struct {
	DropRateEMA float64
	Utilization float64
	QueueLen    int
	MaxLen      int
}

// Dispatcher is the bounded SPSC queue described above.
type Dispatcher struct {
	mu sync.Mutex

	buf   []event.Event
	head  int
	count int

	maxLen    int
	emaAlpha  float64
	threshold float64
	ema       float64
	warned    bool

	totalPushed  uint64
	totalPolled  uint64
	totalDropped uint64

	logger *zap.Logger
}

// New validates cfg and constructs a Dispatcher.
func New(cfg config.DispatcherConfig, logger *zap.Logger) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		buf:       make([]event.Event, cfg.MaxLen),
		maxLen:    cfg.MaxLen,
		emaAlpha:  cfg.EMAAlpha,
		threshold: cfg.DropWarningThreshold,
		logger:    logger,
	}, nil
}

// Push appends evt, evicting the oldest element first if the queue is at
// capacity. Producer-only: must not be called concurrently with another
// Push.
func (d *Dispatcher) Push(evt event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := 0.0
	if d.count == d.maxLen {
		dropped = 1.0
		d.totalDropped++
		d.head = (d.head + 1) % d.maxLen
		d.count--
	}

	idx := (d.head + d.count) % d.maxLen
	d.buf[idx] = evt
	d.count++
	d.totalPushed++

	d.ema = d.emaAlpha*dropped + (1-d.emaAlpha)*d.ema
	d.checkWarningEdge()
}

func (d *Dispatcher) checkWarningEdge() {
	switch {
	case d.ema > d.threshold && !d.warned:
		d.warned = true
		d.logger.Warn("dispatcher drop rate crossed warning threshold",
			zap.Float64("drop_rate_ema", d.ema),
			zap.Float64("threshold", d.threshold),
		)
	case d.ema <= d.threshold && d.warned:
		d.warned = false
		d.logger.Info("dispatcher drop rate recovered below threshold",
			zap.Float64("drop_rate_ema", d.ema),
			zap.Float64("threshold", d.threshold),
		)
	}
}

// Poll removes up to maxEvents elements from the front of the queue in
// FIFO order and returns them. Consumer-only: must not be called
// concurrently with another Poll.
func (d *Dispatcher) Poll(maxEvents int) ([]event.Event, error) {
	if maxEvents <= 0 {
		return nil, fmt.Errorf("%w: maxEvents must be > 0, got %d", apperr.ErrInvalidArgument, maxEvents)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := maxEvents
	if n > d.count {
		n = d.count
	}

	out := make([]event.Event, n)
	for i := 0; i < n; i++ {
		out[i] = d.buf[(d.head+i)%d.maxLen]
	}
	d.head = (d.head + n) % d.maxLen
	d.count -= n
	d.totalPolled += uint64(n)

	return out, nil
}

// Clear empties the buffer and zeroes all counters and the EMA. Must not
// overlap with concurrent Push/Poll calls.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.head = 0
	d.count = 0
	d.totalPushed = 0
	d.totalPolled = 0
	d.totalDropped = 0
	d.ema = 0
	d.warned = false
}

// Stats returns a frozen snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		TotalPushed:  d.totalPushed,
		TotalPolled:  d.totalPolled,
		TotalDropped: d.totalDropped,
		QueueLen:     d.count,
		MaxLen:       d.maxLen,
	}
}

// Health returns a frozen snapshot of the drop-pressure signal.
func (d *Dispatcher) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Health{
		DropRateEMA: d.ema,
		Utilization: float64(d.count) / float64(d.maxLen),
		QueueLen:    d.count,
		MaxLen:      d.maxLen,
	}
}
