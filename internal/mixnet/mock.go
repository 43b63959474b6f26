package mixnet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
)

// MockClient keeps connection state locally. It is selected when no xxdk
// bridge is available; health still comes from the live NDF.
type MockClient struct {
	userID   string
	keystore *Keystore
	health   HealthSource
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	identity  *Identity
	connected bool
}

func NewMockClient(userID string, keystore *Keystore, health HealthSource, logger *slog.Logger) *MockClient {
	return &MockClient{
		userID:   userID,
		keystore: keystore,
		health:   health,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *MockClient) Initialize(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.keystore.Unlock(ctx, c.userID, password)
	if err != nil {
		return err
	}
	c.identity = &id
	c.logger.InfoContext(ctx, "mock mixnet client initialized",
		slog.String("user_id", c.userID),
		slog.String("reception_id", id.ReceptionID()),
	)
	return nil
}

func (c *MockClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return ErrNotInitialized
	}
	c.connected = true
	c.logger.InfoContext(ctx, "mock mixnet client connected", slog.String("user_id", c.userID))
	return nil
}

func (c *MockClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	return nil
}

func (c *MockClient) NetworkHealth(ctx context.Context) domain.NetworkHealth {
	if c.health == nil {
		return domain.DegradedHealth(c.now().UTC())
	}
	return c.health.Health(ctx)
}

func (c *MockClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{Mode: ModeMock, Initialized: c.identity != nil, Connected: c.connected}
	if c.identity != nil {
		s.ReceptionID = c.identity.ReceptionID()
	}
	return s
}

func (c *MockClient) Mode() Mode { return ModeMock }
