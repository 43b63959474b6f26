package mixnet

import (
	"context"
	"net/http"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

type Mode string

const (
	ModeBridge Mode = "bridge"
	ModeMock   Mode = "mock"
)

// ErrNotInitialized is returned by Connect before a successful Initialize.
var ErrNotInitialized = &apperrors.AppError{
	Code:    "NOT_INITIALIZED",
	Message: "mixnet client is not initialized",
	Status:  http.StatusConflict,
	Err:     apperrors.ErrConflict,
}

// Status is a point-in-time view of a client.
type Status struct {
	Mode        Mode   `json:"mode"`
	Initialized bool   `json:"initialized"`
	Connected   bool   `json:"connected"`
	ReceptionID string `json:"reception_id,omitempty"`
}

// Client is one user's connection to the xx network.
type Client interface {
	Initialize(ctx context.Context, password string) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// NetworkHealth never fails; problems are reported as degraded.
	NetworkHealth(ctx context.Context) domain.NetworkHealth
	Status() Status
	Mode() Mode
}

// HealthSource reports network health from the NDF.
type HealthSource interface {
	Health(ctx context.Context) domain.NetworkHealth
}

// Factory builds a client for a user.
type Factory func(userID string) Client
