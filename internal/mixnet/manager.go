package mixnet

import (
	"context"
	"sync"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
)

// Manager owns one client per user. A client is kept from its first
// Initialize until Disconnect.
type Manager struct {
	factory Factory

	mu      sync.Mutex
	clients map[string]Client
}

func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory, clients: make(map[string]Client)}
}

func (m *Manager) lookup(userID string) (Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[userID]
	return c, ok
}

func (m *Manager) getOrCreate(userID string) Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[userID]
	if !ok {
		c = m.factory(userID)
		m.clients[userID] = c
	}
	return c
}

func (m *Manager) Initialize(ctx context.Context, userID, password string) (Status, error) {
	c := m.getOrCreate(userID)
	if err := c.Initialize(ctx, password); err != nil {
		return Status{}, err
	}
	return c.Status(), nil
}

func (m *Manager) Connect(ctx context.Context, userID string) (Status, error) {
	c, ok := m.lookup(userID)
	if !ok {
		return Status{}, ErrNotInitialized
	}
	if err := c.Connect(ctx); err != nil {
		return Status{}, err
	}
	return c.Status(), nil
}

// Disconnect ends the user's session and releases its client. Disconnecting
// a user with no client reports the uninitialized status.
func (m *Manager) Disconnect(ctx context.Context, userID string) (Status, error) {
	c, ok := m.lookup(userID)
	if !ok {
		return m.factory(userID).Status(), nil
	}
	if err := c.Disconnect(ctx); err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	if m.clients[userID] == c {
		delete(m.clients, userID)
	}
	m.mu.Unlock()
	return c.Status(), nil
}

// StatusWithHealth is the mixnet status route payload.
type StatusWithHealth struct {
	Status
	Network domain.NetworkHealth `json:"network"`
}

// Status never registers a client; users without one get a throwaway
// client for the uninitialized view and network health.
func (m *Manager) Status(ctx context.Context, userID string) StatusWithHealth {
	c, ok := m.lookup(userID)
	if !ok {
		c = m.factory(userID)
	}
	return StatusWithHealth{Status: c.Status(), Network: c.NetworkHealth(ctx)}
}

// DisconnectAll is called on shutdown.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.Lock()
	clients := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	clear(m.clients)
	m.mu.Unlock()

	for _, c := range clients {
		_ = c.Disconnect(ctx)
	}
}
