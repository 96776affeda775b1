// Package config holds the validated, immutable configuration entities
// for each core component. Values are constructed by the caller, then
// validated once before the owning component starts using them, rather
// than through a framework-driven config loader — loading config from
// env/files/flags is left to the cmd entry point.
package config

import (
	"fmt"
	"time"

	"github.com/lumduan/settrade-feed-adapter/internal/apperr"
)

// DispatcherConfig controls the bounded SPSC queue.
type DispatcherConfig struct {
	// MaxLen is the queue capacity. Must be > 0.
	MaxLen int
	// EMAAlpha smooths the per-push drop signal into drop_rate_ema. Must
	// be in (0, 1].
	EMAAlpha float64
	// DropWarningThreshold is the EMA level above which a single warning
	// is emitted (and below which a single recovery message is emitted).
	// Must be in (0, 1].
	DropWarningThreshold float64
}

// DefaultDispatcherConfig returns the documented default values.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxLen:               100_000,
		EMAAlpha:             0.01,
		DropWarningThreshold: 0.01,
	}
}

func (c DispatcherConfig) Validate() error {
	if c.MaxLen <= 0 {
		return fmt.Errorf("%w: dispatcher maxlen must be > 0, got %d", apperr.ErrInvalidConfig, c.MaxLen)
	}
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("%w: dispatcher ema_alpha must be in (0, 1], got %f", apperr.ErrInvalidConfig, c.EMAAlpha)
	}
	if c.DropWarningThreshold <= 0 || c.DropWarningThreshold > 1 {
		return fmt.Errorf("%w: dispatcher drop_warning_threshold must be in (0, 1], got %f", apperr.ErrInvalidConfig, c.DropWarningThreshold)
	}
	return nil
}

// TransportConfig controls the MQTT transport controller's reconnect and
// token-refresh behavior.
type TransportConfig struct {
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	TokenRefreshLeadTime time.Duration
	KeepAlive            time.Duration
	// BackoffFactor multiplies the reconnect delay after each failed
	// attempt. Fixed at 2 by default; kept configurable for tests.
	BackoffFactor float64
	// JitterFraction is the uniform jitter applied to the backoff delay,
	// e.g. 0.2 means the delay is scaled by a factor in [0.8, 1.2].
	JitterFraction float64
	// ConnectTimeout bounds how long a single connect attempt (initial or
	// reconnect) is allowed to take before being treated as a failure.
	ConnectTimeout time.Duration
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ReconnectMinDelay:    1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		TokenRefreshLeadTime: 100 * time.Second,
		KeepAlive:            30 * time.Second,
		BackoffFactor:        2,
		JitterFraction:       0.2,
		ConnectTimeout:       10 * time.Second,
	}
}

func (c TransportConfig) Validate() error {
	if c.ReconnectMinDelay <= 0 {
		return fmt.Errorf("%w: transport reconnect_min_delay must be > 0, got %s", apperr.ErrInvalidConfig, c.ReconnectMinDelay)
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		return fmt.Errorf("%w: transport reconnect_max_delay (%s) must be >= reconnect_min_delay (%s)", apperr.ErrInvalidConfig, c.ReconnectMaxDelay, c.ReconnectMinDelay)
	}
	if c.BackoffFactor <= 1 {
		return fmt.Errorf("%w: transport backoff_factor must be > 1, got %f", apperr.ErrInvalidConfig, c.BackoffFactor)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return fmt.Errorf("%w: transport jitter_fraction must be in [0, 1], got %f", apperr.ErrInvalidConfig, c.JitterFraction)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: transport connect_timeout must be > 0, got %s", apperr.ErrInvalidConfig, c.ConnectTimeout)
	}
	return nil
}

// NormalizerConfig controls the hot-path decode/normalize stage.
type NormalizerConfig struct {
	// FullDepth selects FullBidOffer (10 levels) instead of BestBidAsk.
	FullDepth bool
}

func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{FullDepth: false}
}

func (c NormalizerConfig) Validate() error {
	return nil
}

// LivenessConfig controls staleness detection.
type LivenessConfig struct {
	// MaxGapSeconds is the global staleness threshold. Must be > 0.
	MaxGapSeconds float64
	// PerSymbolMaxGap overrides MaxGapSeconds for specific symbols. Every
	// value must be > 0.
	PerSymbolMaxGap map[string]float64
}

func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		MaxGapSeconds:   5.0,
		PerSymbolMaxGap: map[string]float64{},
	}
}

func (c LivenessConfig) Validate() error {
	if c.MaxGapSeconds <= 0 {
		return fmt.Errorf("%w: liveness max_gap_seconds must be > 0, got %f", apperr.ErrInvalidConfig, c.MaxGapSeconds)
	}
	for symbol, gap := range c.PerSymbolMaxGap {
		if gap <= 0 {
			return fmt.Errorf("%w: liveness per_symbol_max_gap[%s] must be > 0, got %f", apperr.ErrInvalidConfig, symbol, gap)
		}
	}
	return nil
}
