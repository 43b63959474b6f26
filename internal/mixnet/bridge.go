package mixnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httpclient"
)

// Doer is satisfied by *httpclient.CircuitBreakerClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// BridgeClient drives a user's session on an xxdk bridge process over HTTP.
type BridgeClient struct {
	userID   string
	baseURL  string
	http     Doer
	keystore *Keystore
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	identity  *Identity
	connected bool
}

func NewBridgeClient(userID, baseURL string, doer Doer, keystore *Keystore, logger *slog.Logger) *BridgeClient {
	return &BridgeClient{
		userID:   userID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     doer,
		keystore: keystore,
		logger:   logger,
		now:      time.Now,
	}
}

type bridgeSessionRequest struct {
	UserID      string `json:"user_id"`
	ReceptionID string `json:"reception_id"`
}

func (c *BridgeClient) Initialize(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.keystore.Unlock(ctx, c.userID, password)
	if err != nil {
		return err
	}
	if err := c.post(ctx, "/v1/sessions", bridgeSessionRequest{UserID: c.userID, ReceptionID: id.ReceptionID()}); err != nil {
		return fmt.Errorf("bridge initialize: %w", err)
	}
	c.identity = &id
	return nil
}

func (c *BridgeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return ErrNotInitialized
	}
	if err := c.post(ctx, "/v1/sessions/"+c.identity.ReceptionID()+"/connect", nil); err != nil {
		return fmt.Errorf("bridge connect: %w", err)
	}
	c.connected = true
	c.logger.InfoContext(ctx, "mixnet client connected", slog.String("user_id", c.userID))
	return nil
}

func (c *BridgeClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil || !c.connected {
		c.connected = false
		return nil
	}
	if err := c.post(ctx, "/v1/sessions/"+c.identity.ReceptionID()+"/disconnect", nil); err != nil {
		return fmt.Errorf("bridge disconnect: %w", err)
	}
	c.connected = false
	return nil
}

func (c *BridgeClient) NetworkHealth(ctx context.Context) domain.NetworkHealth {
	now := c.now().UTC()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", http.NoBody)
	if err != nil {
		return domain.DegradedHealth(now)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.WarnContext(ctx, "bridge health failed", slog.String("error", err.Error()))
		return domain.DegradedHealth(now)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return domain.DegradedHealth(now)
	}

	var h domain.NetworkHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil || (h.Status != domain.NetworkHealthy && h.Status != domain.NetworkDegraded) {
		return domain.DegradedHealth(now)
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = now
	}
	return h
}

func (c *BridgeClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{Mode: ModeBridge, Initialized: c.identity != nil, Connected: c.connected}
	if c.identity != nil {
		s.ReceptionID = c.identity.ReceptionID()
	}
	return s
}

func (c *BridgeClient) Mode() Mode { return ModeBridge }

func (c *BridgeClient) post(ctx context.Context, path string, body any) error {
	var buf []byte
	if body != nil {
		var err error
		if buf, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(buf)), nil }
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return httpclient.ParseResponseError(resp, "mixnet bridge")
	}
	_ = resp.Body.Close()
	return nil
}
