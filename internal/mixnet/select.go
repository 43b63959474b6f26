package mixnet

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// SelectConfig holds the capability probes run once at startup.
type SelectConfig struct {
	WASMPath  string
	BridgeURL string
}

// Select reports which client implementation the process should use. The
// bridge is chosen only when the WASM artifact exists and the bridge answers
// its health endpoint; otherwise the mock is used.
func Select(ctx context.Context, cfg SelectConfig, doer Doer, logger *slog.Logger) Mode {
	if cfg.WASMPath == "" || cfg.BridgeURL == "" {
		logger.InfoContext(ctx, "mixnet bridge not configured, using mock client")
		return ModeMock
	}
	info, err := os.Stat(cfg.WASMPath)
	if err != nil || info.IsDir() || info.Size() == 0 {
		logger.WarnContext(ctx, "mixnet wasm artifact unavailable, using mock client", slog.String("path", cfg.WASMPath))
		return ModeMock
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, strings.TrimRight(cfg.BridgeURL, "/")+"/v1/health", http.NoBody)
	if err != nil {
		return ModeMock
	}
	resp, err := doer.Do(probeCtx, req)
	if err != nil {
		logger.WarnContext(ctx, "mixnet bridge unreachable, using mock client", slog.String("error", err.Error()))
		return ModeMock
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.WarnContext(ctx, "mixnet bridge unhealthy, using mock client", slog.Int("status", resp.StatusCode))
		return ModeMock
	}

	logger.InfoContext(ctx, "mixnet bridge selected", slog.String("url", cfg.BridgeURL))
	return ModeBridge
}

// NewFactory returns the client constructor for mode.
func NewFactory(mode Mode, bridgeURL string, doer Doer, keystore *Keystore, health HealthSource, logger *slog.Logger) Factory {
	if mode == ModeBridge {
		return func(userID string) Client {
			return NewBridgeClient(userID, bridgeURL, doer, keystore, logger)
		}
	}
	return func(userID string) Client {
		return NewMockClient(userID, keystore, health, logger)
	}
}
