package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumduan/settrade-feed-adapter/internal/apperr"
	"github.com/lumduan/settrade-feed-adapter/internal/authprovider"
	"github.com/lumduan/settrade-feed-adapter/internal/config"
)

// fakeMessage is a minimal mqtt.Message stand-in used to drive
// Controller.messageHandler directly, without a real broker connection.
type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "proto/topic/bidofferv3/AOT" }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestController(t *testing.T, onMessage OnMessage) *Controller {
	t.Helper()
	if onMessage == nil {
		onMessage = func([]byte, int64, int64) {}
	}
	c, err := New(config.DefaultTransportConfig(), authprovider.Static{}, onMessage, nil)
	require.NoError(t, err)
	return c
}

func TestState_String(t *testing.T) {
	t.Parallel()
	require.Equal(t, "INIT", StateInit.String())
	require.Equal(t, "CONNECTING", StateConnecting.String())
	require.Equal(t, "CONNECTED", StateConnected.String())
	require.Equal(t, "RECONNECTING", StateReconnecting.String())
	require.Equal(t, "SHUTDOWN", StateShutdown.String())
}

func TestConnect_RejectsNonInitState(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSubscribe_IdempotentAndTracked(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)
	c.Subscribe("aot")
	c.Subscribe("AOT")
	c.Subscribe("ptt")

	require.Equal(t, []string{"AOT", "PTT"}, c.SubscribedSymbols())
}

func TestUnsubscribe_RemovesSymbol(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)
	c.Subscribe("AOT")
	c.Subscribe("PTT")
	c.Unsubscribe("aot")

	require.Equal(t, []string{"PTT"}, c.SubscribedSymbols())
}

func TestTopicFor_Format(t *testing.T) {
	t.Parallel()
	require.Equal(t, "proto/topic/bidofferv3/AOT", topicFor("AOT"))
}

func TestScenarioS6_ReconnectIncrementsEpochAndReconnectCount(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)

	// Initial connect: generation 0, epoch stays 0, reconnect_count stays 0.
	c.handleConnect(0)(nil)
	require.Equal(t, int64(0), c.ConnectionEpoch())
	require.Equal(t, uint64(0), c.Stats().ReconnectCount)
	require.Equal(t, StateConnected, c.Stats().CurrentState)

	// Simulate the generation bump a disconnect would trigger, without
	// spawning the real network-backed reconnect worker.
	c.mu.Lock()
	c.generation = 1
	c.mu.Unlock()

	// Reconnect succeeds on the new generation.
	c.handleConnect(1)(nil)
	require.Equal(t, int64(1), c.ConnectionEpoch())
	require.Equal(t, uint64(1), c.Stats().ReconnectCount)
	require.Equal(t, StateConnected, c.Stats().CurrentState)
}

func TestGenerationInvariance_StaleMessageDropped(t *testing.T) {
	t.Parallel()
	var received []byte
	c := newTestController(t, func(payload []byte, recvTs, recvMonoNs int64) {
		received = payload
	})

	handler := c.messageHandler(0)
	c.mu.Lock()
	c.generation = 1
	c.mu.Unlock()

	handler(nil, fakeMessage{payload: []byte("stale")})
	require.Nil(t, received)
	require.Equal(t, uint64(0), c.Stats().MessagesReceived)
}

func TestMessageHandler_CurrentGenerationDelivers(t *testing.T) {
	t.Parallel()
	var received []byte
	c := newTestController(t, func(payload []byte, recvTs, recvMonoNs int64) {
		received = payload
	})

	handler := c.messageHandler(0)
	handler(nil, fakeMessage{payload: []byte("fresh")})

	require.Equal(t, []byte("fresh"), received)
	require.Equal(t, uint64(1), c.Stats().MessagesReceived)
}

func TestMessageHandler_CallbackPanicCountedNotPropagated(t *testing.T) {
	t.Parallel()
	c := newTestController(t, func([]byte, int64, int64) {
		panic("boom")
	})

	handler := c.messageHandler(0)
	require.NotPanics(t, func() {
		handler(nil, fakeMessage{payload: []byte("x")})
	})
	require.Equal(t, uint64(1), c.Stats().CallbackErrors)
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)
	c.Shutdown()
	c.Shutdown()
	c.Shutdown()
	require.Equal(t, StateShutdown, c.Stats().CurrentState)
}

func TestTokenRefreshLoop_FloorWaitsInsteadOfSpinningWhileReconnecting(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultTransportConfig()
	cfg.ReconnectMinDelay = 5 * time.Millisecond
	c, err := New(cfg, authprovider.Static{}, func([]byte, int64, int64) {}, nil)
	require.NoError(t, err)

	// Stale, already-elapsed expiry: refreshWaitDuration would return 0 on
	// every call if the loop ever reached it while not CONNECTED.
	c.mu.Lock()
	c.state = StateReconnecting
	c.tokenExpiryNs = 1
	generationBefore := c.generation
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.tokenRefreshLoop(context.Background())
		close(done)
	}()

	// Several floor intervals' worth of real time: the loop must not have
	// tried to claim the reconnect itself (it only does that from
	// StateConnected), so generation stays untouched.
	time.Sleep(40 * time.Millisecond)
	c.mu.Lock()
	generationDuring := c.generation
	state := c.state
	c.mu.Unlock()
	require.Equal(t, generationBefore, generationDuring)
	require.Equal(t, StateReconnecting, state)

	c.Shutdown()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("tokenRefreshLoop did not return promptly after shutdown")
	}
}

func TestTokenRefreshLoop_ContextCancellationStopsLoop(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)
	c.mu.Lock()
	c.state = StateReconnecting
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.tokenRefreshLoop(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("tokenRefreshLoop did not return promptly after ctx cancellation")
	}
}

func TestNoReconnectAfterShutdown(t *testing.T) {
	t.Parallel()
	c := newTestController(t, nil)
	c.Shutdown()
	before := c.Stats()

	c.handleDisconnect(0)(nil, errors.New("connection reset"))

	after := c.Stats()
	require.Equal(t, before, after)
	require.Equal(t, StateShutdown, after.CurrentState)
}
