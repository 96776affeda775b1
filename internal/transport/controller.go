// Package transport owns the MQTT session lifecycle: connecting over
// WebSocket+TLS, replaying subscriptions, recovering from disconnects
// with exponential backoff and jitter, refreshing credentials ahead of
// expiry, and rejecting callbacks left over from a client generation that
// no longer exists. It wraps github.com/eclipse/paho.mqtt.golang rather
// than talking WebSocket frames directly — the same library two other
// repos in the retrieval pack use for MQTT-over-WebSocket, and the one
// library here that natively dials wss://.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lumduan/settrade-feed-adapter/internal/apperr"
	"github.com/lumduan/settrade-feed-adapter/internal/authprovider"
	"github.com/lumduan/settrade-feed-adapter/internal/config"
	"github.com/lumduan/settrade-feed-adapter/internal/monoclock"
)

// State is a Controller's position in the lifecycle state machine.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// OnMessage is invoked once per inbound MQTT message, on the broker IO
// goroutine, with the raw payload and the timestamps captured at arrival.
// It must return promptly; the controller recovers a panic inside it and
// counts it as a callback error rather than letting it reach the MQTT
// client's internals.
type OnMessage func(payload []byte, recvTs, recvMonoNs int64)

// Stats is a frozen snapshot of the transport controller's counters.
type Stats struct {
	MessagesReceived uint64
	CallbackErrors   uint64
	ReconnectCount   uint64
	CurrentState     State
}

// Controller owns one MQTT session across its full lifecycle.
type Controller struct {
	cfg       config.TransportConfig
	auth      authprovider.TokenProvider
	onMessage OnMessage
	logger    *zap.Logger
	clk       monoclock.Clock

	mu              sync.Mutex
	state           State
	client          mqtt.Client
	generation      int64
	connectionEpoch int64
	everConnected   bool
	subs            map[string]string // symbol -> topic
	tokenExpiryNs   int64

	reconnectMu  sync.Mutex
	reconnecting bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	messagesReceived atomic.Uint64
	callbackErrors   atomic.Uint64
	reconnectCount   atomic.Uint64
}

// New constructs a Controller. auth and onMessage must be non-nil.
func New(cfg config.TransportConfig, auth authprovider.TokenProvider, onMessage OnMessage, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:        cfg,
		auth:       auth,
		onMessage:  onMessage,
		logger:     logger,
		clk:        monoclock.New(),
		state:      StateInit,
		subs:       make(map[string]string),
		shutdownCh: make(chan struct{}),
	}, nil
}

// ConnectionEpoch implements normalizer.EpochSource. Reads are guarded by
// the same mutex that protects the single write site in handleConnect, so
// this never races with the increment.
func (c *Controller) ConnectionEpoch() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionEpoch
}

// Connect performs the initial connection. It is valid only from INIT.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInit {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: connect is only valid from INIT, current state is %s", apperr.ErrInvalidState, state)
	}
	c.state = StateConnecting
	gen := c.generation
	c.mu.Unlock()

	host, token, expiryNs, err := c.auth.FetchHostToken(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateInit
		c.mu.Unlock()
		return fmt.Errorf("%w: initial credential fetch failed: %v", apperr.ErrUnauthenticated, err)
	}

	client := c.buildClient(host, token, gen)

	tok := client.Connect()
	if !tok.WaitTimeout(c.cfg.ConnectTimeout) || tok.Error() != nil {
		c.mu.Lock()
		c.state = StateInit
		c.mu.Unlock()
		return fmt.Errorf("%w: initial connect failed: %v", apperr.ErrUnauthenticated, tok.Error())
	}

	c.mu.Lock()
	c.client = client
	c.tokenExpiryNs = expiryNs
	c.mu.Unlock()

	go c.tokenRefreshLoop(ctx)

	return nil
}

// buildClient constructs a fresh mqtt.Client bound to generation gen: its
// connect/disconnect/message callbacks all capture gen and compare it
// against the controller's current generation before acting, so callbacks
// from a client that has since been replaced are silently ignored.
func (c *Controller) buildClient(host, token string, gen int64) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(host)
	opts.SetClientID(fmt.Sprintf("settrade-feed-adapter-%d", gen))
	opts.SetUsername("settrade-feed-adapter")
	opts.SetPassword(token)
	opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false) // reconnect is owned by Controller, not paho
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetOnConnectHandler(c.handleConnect(gen))
	opts.SetConnectionLostHandler(c.handleDisconnect(gen))

	return mqtt.NewClient(opts)
}

// handleConnect runs on paho's goroutine when the MQTT CONNACK succeeds.
// State only ever moves to CONNECTED here, not in the reconnect worker,
// because TCP/WebSocket success does not imply MQTT-level auth success.
func (c *Controller) handleConnect(gen int64) mqtt.OnConnectHandler {
	return func(client mqtt.Client) {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}

		wasEverConnected := c.everConnected
		c.everConnected = true
		if wasEverConnected {
			c.connectionEpoch++
			c.reconnectCount.Add(1)
		}
		c.state = StateConnected
		subs := make(map[string]string, len(c.subs))
		for symbol, topic := range c.subs {
			subs[symbol] = topic
		}
		c.mu.Unlock()

		for symbol, topic := range subs {
			c.issueSubscribe(client, gen, symbol, topic)
		}

		c.logger.Info("transport connected",
			zap.Int64("generation", gen),
			zap.Int64("connection_epoch", c.ConnectionEpoch()),
			zap.Bool("reconnect", wasEverConnected),
		)
	}
}

// handleDisconnect runs on paho's goroutine when the connection drops. A
// disconnect observed after shutdown is a pure no-op: no new worker is
// spawned and no counters move.
func (c *Controller) handleDisconnect(gen int64) mqtt.ConnectionLostHandler {
	return func(_ mqtt.Client, err error) {
		c.mu.Lock()
		if c.state == StateShutdown {
			c.mu.Unlock()
			return
		}
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state = StateReconnecting
		c.generation++
		c.mu.Unlock()

		c.logger.Warn("transport connection lost", zap.Error(err))
		c.startReconnectWorker()
	}
}

func (c *Controller) issueSubscribe(client mqtt.Client, gen int64, symbol, topic string) {
	handler := c.messageHandler(gen)
	tok := client.Subscribe(topic, 0, handler)
	tok.Wait()
	if tok.Error() != nil {
		c.logger.Warn("subscribe failed", zap.String("symbol", symbol), zap.Error(tok.Error()))
	}
}

// messageHandler binds the client generation captured at subscribe time.
// A message whose generation no longer matches the controller's current
// generation is dropped silently; no counter is incremented for it, per
// SPEC_FULL.md §4.1.
func (c *Controller) messageHandler(gen int64) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.mu.Lock()
		current := c.generation
		c.mu.Unlock()
		if gen != current {
			return
		}

		recvTs := time.Now().UnixNano()
		recvMonoNs := c.clk.NowNs()
		c.messagesReceived.Add(1)
		c.invokeOnMessage(msg.Payload(), recvTs, recvMonoNs)
	}
}

func (c *Controller) invokeOnMessage(payload []byte, recvTs, recvMonoNs int64) {
	defer func() {
		if r := recover(); r != nil {
			c.callbackErrors.Add(1)
			c.logger.Warn("transport callback panic", zap.Any("panic", r))
		}
	}()
	c.onMessage(payload, recvTs, recvMonoNs)
}

// Subscribe adds symbol to the authoritative subscription set and issues
// the MQTT subscribe on the current client, if connected. Duplicate
// subscribes are silently idempotent.
func (c *Controller) Subscribe(symbol string) {
	symbol = strings.ToUpper(symbol)
	topic := topicFor(symbol)

	c.mu.Lock()
	if _, exists := c.subs[symbol]; exists {
		c.mu.Unlock()
		return
	}
	c.subs[symbol] = topic
	client := c.client
	gen := c.generation
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && client != nil {
		c.issueSubscribe(client, gen, symbol, topic)
	}
}

// Unsubscribe removes symbol from the authoritative subscription set and
// issues the MQTT unsubscribe on the current client, if connected.
func (c *Controller) Unsubscribe(symbol string) {
	symbol = strings.ToUpper(symbol)

	c.mu.Lock()
	topic, exists := c.subs[symbol]
	if !exists {
		c.mu.Unlock()
		return
	}
	delete(c.subs, symbol)
	client := c.client
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && client != nil {
		tok := client.Unsubscribe(topic)
		tok.Wait()
	}
}

// SubscribedSymbols returns a sorted, read-only snapshot of the current
// subscription set.
func (c *Controller) SubscribedSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbols := make([]string, 0, len(c.subs))
	for symbol := range c.subs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Shutdown idempotently tears the session down. It is legal from any
// state and safe to call more than once.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.state = StateShutdown
		client := c.client
		c.mu.Unlock()

		close(c.shutdownCh)

		if client != nil && client.IsConnectionOpen() {
			client.Disconnect(250)
		}
	})
}

// Stats returns a frozen snapshot of the controller's counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	return Stats{
		MessagesReceived: c.messagesReceived.Load(),
		CallbackErrors:   c.callbackErrors.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
		CurrentState:     state,
	}
}

func topicFor(symbol string) string {
	return "proto/topic/bidofferv3/" + symbol
}
