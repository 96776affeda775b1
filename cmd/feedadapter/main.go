// Command feedadapter runs the settrade-feed-adapter pipeline end to end
// against a configured broker, exposing /health and /metrics on a small
// HTTP mux that runs alongside the transport and is torn down with it on
// signal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lumduan/settrade-feed-adapter/internal/adapter"
	"github.com/lumduan/settrade-feed-adapter/internal/authprovider"
	"github.com/lumduan/settrade-feed-adapter/internal/logging"
	"github.com/lumduan/settrade-feed-adapter/internal/metrics"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	auth := authprovider.Static{
		Host:              cfg.Broker.Host,
		Token:             cfg.Broker.Token,
		ExpiryWallClockNs: time.Now().Add(cfg.Broker.TokenLifetime).UnixNano(),
	}

	a, err := adapter.New(cfg.Adapter, auth, logger)
	if err != nil {
		logger.Fatal("failed to assemble adapter", zap.Error(err))
	}

	registry := metrics.NewRegistry(a.Dispatcher(), a.Normalizer(), a.Transport())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Connect(ctx); err != nil {
		logger.Fatal("initial connect failed", zap.Error(err))
	}
	logger.Info("connected", zap.String("broker", cfg.Broker.Host))

	for _, symbol := range cfg.Symbols {
		a.Subscribe(symbol)
	}
	logger.Info("subscribed", zap.Strings("symbols", a.SubscribedSymbols()))

	go runConsumer(ctx, a, logger)

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runHTTPServer(ctx, cfg.Metrics.ListenAddr, a, registry, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
		stop()
	}

	a.Shutdown()
	logger.Info("adapter stopped")
}

// runConsumer polls the dispatcher on a fixed interval and logs each
// symbol it sees at debug level. A real consumer would replace this with
// whatever downstream sink owns the market-data fanout; this loop only
// demonstrates the Poll contract.
func runConsumer(ctx context.Context, a *adapter.Adapter, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := a.Poll(256)
			if err != nil {
				logger.Warn("poll failed", zap.Error(err))
				continue
			}
			for _, evt := range events {
				logger.Debug("event polled", zap.String("symbol", evt.Symbol()))
			}
		}
	}
}

func runHTTPServer(ctx context.Context, addr string, a *adapter.Adapter, registry *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":           "healthy",
			"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
			"feed_dead":        a.Liveness().IsFeedDead(),
			"stale_symbols":    a.Liveness().StaleSymbols(),
			"subscribed":       a.SubscribedSymbols(),
			"dispatcher":       a.DispatcherStats(),
			"dispatcherHealth": a.DispatcherHealth(),
			"normalizer":       a.NormalizerStats(),
			"transport":        a.TransportStats(),
		})
	})

	mux.Handle("/metrics", registry.Handler())

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics http server starting", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// appConfig is the top-level shape loaded via viper, covering the
// ambient cmd-only concerns (broker credentials, symbol list, HTTP
// listen address, log level) that sit outside the core component configs
// in internal/config. Adapter embeds the real component configs directly
// so a config file's adapter.* keys map onto them with no translation
// layer in between.
type appConfig struct {
	Broker struct {
		Host          string
		Token         string
		TokenLifetime time.Duration
	}
	Symbols []string
	Metrics struct {
		ListenAddr string
	}
	Logging logging.Config
	Adapter adapter.Config
}

func loadConfig() (appConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDADAPTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("broker.host", "wss://broker.example.com:443/mqtt")
	v.SetDefault("broker.token", "")
	v.SetDefault("broker.tokenLifetime", 15*time.Minute)
	v.SetDefault("symbols", []string{"AOT", "PTT"})
	v.SetDefault("metrics.listenAddr", ":9090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("adapter.dispatcher.maxLen", 100_000)
	v.SetDefault("adapter.dispatcher.emaAlpha", 0.01)
	v.SetDefault("adapter.dispatcher.dropWarningThreshold", 0.01)

	v.SetDefault("adapter.transport.reconnectMinDelay", time.Second)
	v.SetDefault("adapter.transport.reconnectMaxDelay", 30*time.Second)
	v.SetDefault("adapter.transport.tokenRefreshLeadTime", 100*time.Second)
	v.SetDefault("adapter.transport.keepAlive", 30*time.Second)
	v.SetDefault("adapter.transport.backoffFactor", 2.0)
	v.SetDefault("adapter.transport.jitterFraction", 0.2)
	v.SetDefault("adapter.transport.connectTimeout", 10*time.Second)

	v.SetDefault("adapter.normalizer.fullDepth", false)

	v.SetDefault("adapter.liveness.maxGapSeconds", 5.0)

	v.SetConfigName("feedadapter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/feedadapter")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return appConfig{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}
