package messaging

import (
	"context"
	"time"
)

// HealthStatus is the broker connection state reported by readiness checks.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckClientHealth pings the broker through client.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	var status HealthStatus

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		status.Error = "ping failed: " + err.Error()
	}
	status.Latency = time.Since(start)

	return status
}
