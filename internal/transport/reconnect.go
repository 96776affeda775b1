package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startReconnectWorker spawns the background reconnect loop unless one is
// already running. At most one instance is ever active: the test-and-set
// on the reconnecting flag guards both a lost-connection trigger and a
// proactive token-refresh trigger racing each other.
func (c *Controller) startReconnectWorker() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	go c.reconnectLoop()
}

// reconnectLoop waits, re-fetches credentials, rebuilds the MQTT client
// bound to the new generation, and attempts to connect, backing off on
// every failure. It returns once a connect attempt succeeds (state then
// moves to CONNECTED inside handleConnect) or shutdown interrupts it.
func (c *Controller) reconnectLoop() {
	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	delay := c.cfg.ReconnectMinDelay
	params := backoffParams{
		backoffFactor:  c.cfg.BackoffFactor,
		jitterFraction: c.cfg.JitterFraction,
		maxDelay:       c.cfg.ReconnectMaxDelay,
	}

	for {
		c.mu.Lock()
		stillReconnecting := c.state == StateReconnecting
		c.mu.Unlock()
		if !stillReconnecting {
			return
		}

		if !c.interruptibleWait(delay) {
			return
		}

		c.mu.Lock()
		stillReconnecting = c.state == StateReconnecting
		gen := c.generation
		oldClient := c.client
		c.mu.Unlock()
		if !stillReconnecting {
			return
		}

		if oldClient != nil && oldClient.IsConnectionOpen() {
			oldClient.Disconnect(250)
		}

		host, token, expiryNs, err := c.auth.FetchHostToken(context.Background())
		if err != nil {
			c.logger.Warn("reconnect: credential fetch failed", zap.Error(err))
			delay = nextDelay(delay, params)
			continue
		}

		client := c.buildClient(host, token, gen)
		tok := client.Connect()
		if !tok.WaitTimeout(c.cfg.ConnectTimeout) || tok.Error() != nil {
			c.logger.Warn("reconnect: connect attempt failed", zap.Error(tok.Error()))
			delay = nextDelay(delay, params)
			continue
		}

		c.mu.Lock()
		c.client = client
		c.tokenExpiryNs = expiryNs
		c.mu.Unlock()
		return
	}
}

// interruptibleWait blocks for d, or until shutdown, whichever comes
// first, so shutdown() never has to wait out the remaining backoff delay.
// It reports whether the wait completed normally (false means shutdown
// interrupted it).
func (c *Controller) interruptibleWait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.shutdownCh:
		return false
	}
}

// interruptibleWaitCtx is interruptibleWait plus a caller-supplied ctx, for
// the token-refresh loop, which is handed a ctx at Connect time.
func (c *Controller) interruptibleWaitCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.shutdownCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// tokenRefreshLoop polls the stored token expiry and triggers a controlled
// reconnect when remaining time drops to TokenRefreshLeadTime. It shares
// the same reconnect guard as a lost-connection trigger, so a concurrent
// network disconnect never produces two simultaneous reconnect attempts.
//
// tokenExpiryNs only advances once reconnectLoop succeeds, so while the
// controller is away from CONNECTED (a reconnect already underway, for
// this refresh or for a lost connection) refreshWaitDuration keeps reading
// a stale, already-elapsed expiry and would return 0 on every call. The
// loop waits a floor interval (ReconnectMinDelay) in that state instead of
// re-arming a zero-duration timer, so it doesn't spin at 100% CPU for the
// duration of the reconnect.
func (c *Controller) tokenRefreshLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		expiryNs := c.tokenExpiryNs
		state := c.state
		c.mu.Unlock()

		if state == StateShutdown {
			return
		}

		if state != StateConnected {
			if !c.interruptibleWaitCtx(ctx, c.cfg.ReconnectMinDelay) {
				return
			}
			continue
		}

		if !c.interruptibleWaitCtx(ctx, c.refreshWaitDuration(expiryNs)) {
			return
		}

		c.mu.Lock()
		state = c.state
		c.mu.Unlock()

		if state == StateShutdown {
			return
		}
		if state != StateConnected {
			// lost the connection, or another trigger already claimed the
			// reconnect, while this loop was waiting; the floor wait above
			// picks it up again on the next iteration.
			continue
		}

		c.logger.Info("transport: proactive token refresh due")
		c.mu.Lock()
		c.state = StateReconnecting
		c.generation++
		c.mu.Unlock()
		c.startReconnectWorker()
	}
}

func (c *Controller) refreshWaitDuration(expiryNs int64) time.Duration {
	remaining := time.Duration(expiryNs-time.Now().UnixNano()) - c.cfg.TokenRefreshLeadTime
	if remaining < 0 {
		return 0
	}
	return remaining
}
