// Package adapter wires the transport controller, normalizer, dispatcher,
// and liveness monitor into a single lifecycle object:
// Connect/Subscribe/Unsubscribe/Shutdown, plus Poll for the consumer to
// drain events. It owns no business logic of its own — every decision
// (reconnect, parse, queue, staleness) lives in the component that makes
// it; the adapter only wires one component's output into the next one's
// input, as an importable type rather than inline code in main().
package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumduan/settrade-feed-adapter/internal/authprovider"
	"github.com/lumduan/settrade-feed-adapter/internal/config"
	"github.com/lumduan/settrade-feed-adapter/internal/dispatcher"
	"github.com/lumduan/settrade-feed-adapter/internal/event"
	"github.com/lumduan/settrade-feed-adapter/internal/liveness"
	"github.com/lumduan/settrade-feed-adapter/internal/normalizer"
	"github.com/lumduan/settrade-feed-adapter/internal/transport"
)

// Config bundles every component's config. Each field is validated by its
// own component constructor; Adapter itself adds no further constraints.
type Config struct {
	Dispatcher config.DispatcherConfig
	Transport  config.TransportConfig
	Normalizer config.NormalizerConfig
	Liveness   config.LivenessConfig
}

// DefaultConfig returns the documented default values for every
// component.
func DefaultConfig() Config {
	return Config{
		Dispatcher: config.DefaultDispatcherConfig(),
		Transport:  config.DefaultTransportConfig(),
		Normalizer: config.DefaultNormalizerConfig(),
		Liveness:   config.DefaultLivenessConfig(),
	}
}

// Adapter is the assembled feed pipeline: Transport delivers raw MQTT
// payloads to the Normalizer, the Normalizer's callback pushes each
// resulting event into the Dispatcher and records it with the Liveness
// monitor, and the consumer drains events by calling Poll.
type Adapter struct {
	transport  *transport.Controller
	normalizer *normalizer.Normalizer
	dispatcher *dispatcher.Dispatcher
	liveness   *liveness.Monitor
	logger     *zap.Logger
}

// New assembles an Adapter from cfg and auth. logger may be nil, in which
// case a no-op logger is handed to every component.
func New(cfg Config, auth authprovider.TokenProvider, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	disp, err := dispatcher.New(cfg.Dispatcher, logger.Named("dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("adapter: dispatcher: %w", err)
	}

	live, err := liveness.New(cfg.Liveness)
	if err != nil {
		return nil, fmt.Errorf("adapter: liveness: %w", err)
	}

	a := &Adapter{
		dispatcher: disp,
		liveness:   live,
		logger:     logger,
	}

	// transport is constructed first so it can serve as the normalizer's
	// EpochSource; a.onMessage is a bound method value that only reads
	// a.normalizer once invoked, by which point construction below has
	// completed, so the forward reference is safe.
	trans, err := transport.New(cfg.Transport, auth, a.onMessage, logger.Named("transport"))
	if err != nil {
		return nil, fmt.Errorf("adapter: transport: %w", err)
	}
	a.transport = trans

	a.normalizer = normalizer.New(cfg.Normalizer, trans, a.onEvent, logger.Named("normalizer"))

	return a, nil
}

// onMessage is the transport's delivery callback: it hands the raw
// payload straight to the normalizer, on the same IO goroutine the
// transport invoked it on.
func (a *Adapter) onMessage(payload []byte, recvTs, recvMonoNs int64) {
	a.normalizer.OnMessage(payload, recvTs, recvMonoNs)
}

// onEvent is the normalizer's delivery callback: it records liveness and
// pushes the event into the dispatcher queue, in that order, so a
// symbol's liveness timestamp is never behind what made it into the
// queue.
func (a *Adapter) onEvent(evt event.Event) {
	a.liveness.OnEvent(evt.Symbol())
	a.dispatcher.Push(evt)
}

// Connect establishes the initial MQTT session. See transport.Controller.Connect.
func (a *Adapter) Connect(ctx context.Context) error {
	return a.transport.Connect(ctx)
}

// Subscribe adds symbol to the live subscription set.
func (a *Adapter) Subscribe(symbol string) {
	a.transport.Subscribe(symbol)
}

// Unsubscribe removes symbol from the live subscription set.
func (a *Adapter) Unsubscribe(symbol string) {
	a.transport.Unsubscribe(symbol)
}

// SubscribedSymbols returns the current subscription set, sorted.
func (a *Adapter) SubscribedSymbols() []string {
	return a.transport.SubscribedSymbols()
}

// Poll drains up to maxEvents queued events in FIFO order. See
// dispatcher.Dispatcher.Poll.
func (a *Adapter) Poll(maxEvents int) ([]event.Event, error) {
	return a.dispatcher.Poll(maxEvents)
}

// Shutdown idempotently tears the session down.
func (a *Adapter) Shutdown() {
	a.transport.Shutdown()
}

// Liveness exposes the staleness monitor directly, for callers that want
// IsFeedDead/IsStale/StaleSymbols without going through Adapter.
func (a *Adapter) Liveness() *liveness.Monitor {
	return a.liveness
}

// DispatcherStats returns a frozen snapshot of the dispatcher's counters.
func (a *Adapter) DispatcherStats() dispatcher.Stats {
	return a.dispatcher.Stats()
}

// DispatcherHealth returns a frozen snapshot of the dispatcher's
// drop-pressure signal.
func (a *Adapter) DispatcherHealth() dispatcher.Health {
	return a.dispatcher.Health()
}

// NormalizerStats returns a frozen snapshot of the normalizer's counters.
func (a *Adapter) NormalizerStats() normalizer.Stats {
	return a.normalizer.Stats()
}

// TransportStats returns a frozen snapshot of the transport controller's
// counters.
func (a *Adapter) TransportStats() transport.Stats {
	return a.transport.Stats()
}

// Dispatcher exposes the underlying dispatcher, e.g. for wiring into
// internal/metrics.NewRegistry.
func (a *Adapter) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Normalizer exposes the underlying normalizer, e.g. for wiring into
// internal/metrics.NewRegistry.
func (a *Adapter) Normalizer() *normalizer.Normalizer {
	return a.normalizer
}

// Transport exposes the underlying transport controller, e.g. for wiring
// into internal/metrics.NewRegistry.
func (a *Adapter) Transport() *transport.Controller {
	return a.transport
}
