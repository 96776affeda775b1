// Package normalizer implements the hot-path transform from a raw MQTT
// message into an immutable event, delivered synchronously to a single
// consumer callback. Two phases — parse and callback — are isolated by
// separate recover/error-handling regions so a failure in one can never
// be misattributed to the other; a single catch-all around both would
// destroy the exactly-one-counter invariant SPEC_FULL.md §8 requires.
package normalizer

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lumduan/settrade-feed-adapter/internal/config"
	"github.com/lumduan/settrade-feed-adapter/internal/event"
	"github.com/lumduan/settrade-feed-adapter/internal/ratelimit"
	"github.com/lumduan/settrade-feed-adapter/internal/wire"
)

// EpochSource reports the transport's current connection epoch. The
// normalizer reads it once per message rather than owning it, so the
// transport controller remains the sole writer of connection_epoch.
type EpochSource interface {
	ConnectionEpoch() int64
}

// Callback receives one normalized event at a time, synchronously, on the
// calling (IO) goroutine. It must return promptly; a panic inside it is
// recovered and counted as a callback error, never propagated.
type Callback func(event.Event)

// Stats is a frozen snapshot of the normalizer's counters.
type Stats struct {
	MessagesParsed uint64
	ParseErrors    uint64
	CallbackErrors uint64
}

// Normalizer decodes BidOfferV3 payloads and hands events to a single
// consumer callback.
type Normalizer struct {
	cfg      config.NormalizerConfig
	epoch    EpochSource
	callback Callback
	logger   *zap.Logger

	parseGate    ratelimit.Gate
	callbackGate ratelimit.Gate

	messagesParsed atomic.Uint64
	parseErrors    atomic.Uint64
	callbackErrors atomic.Uint64
}

// New constructs a Normalizer. epoch and callback must be non-nil; both
// are fixed, typed collaborators configured once at construction, not a
// runtime event bus.
func New(cfg config.NormalizerConfig, epoch EpochSource, callback Callback, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		cfg:      cfg,
		epoch:    epoch,
		callback: callback,
		logger:   logger,
	}
}

// OnMessage is the two-phase hot-path entry point. recvTs is wall-clock
// nanoseconds (for correlation with external logs only); recvMonoNs is
// monotonic nanoseconds. Both are captured by the caller (the transport
// controller) before invocation, since only it can observe the true
// arrival instant.
func (n *Normalizer) OnMessage(payload []byte, recvTs, recvMonoNs int64) {
	connectionEpoch := n.epoch.ConnectionEpoch()

	evt, ok := n.parse(payload, recvTs, recvMonoNs, connectionEpoch)
	if !ok {
		return
	}

	if !n.invokeCallback(evt) {
		return
	}

	n.messagesParsed.Add(1)
}

// parse is phase 1: decode bytes into a trusted, unvalidated event. Any
// decode failure increments parse_errors and returns ok=false; the hot
// path never re-validates a source it already trusts.
func (n *Normalizer) parse(payload []byte, recvTs, recvMonoNs, connectionEpoch int64) (event.Event, bool) {
	msg, err := wire.Decode(payload)
	if err != nil {
		n.countParseError(err)
		return nil, false
	}

	symbol := strings.ToUpper(msg.Symbol)
	bidFlag := event.SessionFlag(msg.BidFlag)
	askFlag := event.SessionFlag(msg.AskFlag)

	if n.cfg.FullDepth {
		var bidPrices, askPrices [event.DepthLevels]float64
		bidPrices[0] = msg.BidPrices[0].Float64()
		bidPrices[1] = msg.BidPrices[1].Float64()
		bidPrices[2] = msg.BidPrices[2].Float64()
		bidPrices[3] = msg.BidPrices[3].Float64()
		bidPrices[4] = msg.BidPrices[4].Float64()
		bidPrices[5] = msg.BidPrices[5].Float64()
		bidPrices[6] = msg.BidPrices[6].Float64()
		bidPrices[7] = msg.BidPrices[7].Float64()
		bidPrices[8] = msg.BidPrices[8].Float64()
		bidPrices[9] = msg.BidPrices[9].Float64()

		askPrices[0] = msg.AskPrices[0].Float64()
		askPrices[1] = msg.AskPrices[1].Float64()
		askPrices[2] = msg.AskPrices[2].Float64()
		askPrices[3] = msg.AskPrices[3].Float64()
		askPrices[4] = msg.AskPrices[4].Float64()
		askPrices[5] = msg.AskPrices[5].Float64()
		askPrices[6] = msg.AskPrices[6].Float64()
		askPrices[7] = msg.AskPrices[7].Float64()
		askPrices[8] = msg.AskPrices[8].Float64()
		askPrices[9] = msg.AskPrices[9].Float64()

		evt := event.NewFullBidOfferUnchecked(
			symbol, bidPrices, askPrices, msg.BidVolumes, msg.AskVolumes,
			bidFlag, askFlag, recvTs, recvMonoNs, connectionEpoch,
		)
		return evt, true
	}

	evt := event.NewBestBidAskUnchecked(
		symbol,
		msg.BidPrices[0].Float64(), msg.AskPrices[0].Float64(),
		msg.BidVolumes[0], msg.AskVolumes[0],
		bidFlag, askFlag,
		recvTs, recvMonoNs, connectionEpoch,
	)
	return evt, true
}

// invokeCallback is phase 2: deliver evt to the consumer. A panic inside
// the callback is recovered here, isolated from phase 1's error path, and
// counted as a callback error.
func (n *Normalizer) invokeCallback(evt event.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.countCallbackError(r)
			ok = false
		}
	}()
	n.callback(evt)
	return true
}

func (n *Normalizer) countParseError(err error) {
	n.parseErrors.Add(1)
	d := n.parseGate.Observe()
	if !d.ShouldLog {
		return
	}
	if d.Detailed {
		n.logger.Warn("normalizer parse error", zap.Error(err))
	} else {
		n.logger.Warn("normalizer parse errors (summary)", zap.Uint64("count", n.parseGate.Count()))
	}
}

func (n *Normalizer) countCallbackError(r any) {
	n.callbackErrors.Add(1)
	d := n.callbackGate.Observe()
	if !d.ShouldLog {
		return
	}
	if d.Detailed {
		n.logger.Warn("normalizer callback error", zap.Any("panic", r))
	} else {
		n.logger.Warn("normalizer callback errors (summary)", zap.Uint64("count", n.callbackGate.Count()))
	}
}

// Stats returns a frozen snapshot of the normalizer's counters.
func (n *Normalizer) Stats() Stats {
	return Stats{
		MessagesParsed: n.messagesParsed.Load(),
		ParseErrors:    n.parseErrors.Load(),
		CallbackErrors: n.callbackErrors.Load(),
	}
}
