package domain

import "time"

type NetworkStatus string

const (
	NetworkHealthy  NetworkStatus = "healthy"
	NetworkDegraded NetworkStatus = "degraded"
)

// NetworkHealth is the xx-network-health response body.
type NetworkHealth struct {
	Status             NetworkStatus `json:"status"`
	TotalNodes         int           `json:"totalNodes"`
	ActiveNodes        int           `json:"activeNodes"`
	AverageLatency     int64         `json:"averageLatency"`
	LastRoundCompleted int64         `json:"lastRoundCompleted"`
	Timestamp          time.Time     `json:"timestamp"`
}

// DegradedHealth is reported whenever health cannot be measured.
func DegradedHealth(now time.Time) NetworkHealth {
	return NetworkHealth{Status: NetworkDegraded, Timestamp: now}
}

// SignedNDF is a network definition file as served to clients.
type SignedNDF struct {
	NDF       string    `json:"ndf"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// BetaSignup is a request to join the beta programme.
type BetaSignup struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requested_at"`
}
