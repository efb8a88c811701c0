package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server with the notifications endpoint.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeExpiry runs the expiry scheduler sweeps.
	ServiceModeExpiry ServiceMode = "expiry"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeExpiry,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeExpiry:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, expiry)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one service must be specified")
	}
	return services, nil
}

// ExpiryConfig contains expiry scheduler configuration.
type ExpiryConfig struct {
	// Interval is how often the archive and wake sweeps run.
	Interval time.Duration `env:"EXPIRY_INTERVAL" envDefault:"60s"`
}

// Sanitize applies guardrails to expiry configuration values.
func (e *ExpiryConfig) Sanitize() {
	if e.Interval < time.Second {
		e.Interval = time.Minute
	}
}

// BrokerConfig contains delivery broker configuration.
type BrokerConfig struct {
	// SessionQueueSize is the per-session send queue depth. A session that
	// falls this far behind is dropped.
	SessionQueueSize int `env:"BROKER_SESSION_QUEUE_SIZE" envDefault:"64"`

	// SnapshotLimit caps the initial alerts_list sent on connect.
	SnapshotLimit int `env:"BROKER_SNAPSHOT_LIMIT" envDefault:"50"`
}

// Sanitize applies guardrails to broker configuration values.
func (b *BrokerConfig) Sanitize() {
	if b.SessionQueueSize < 1 {
		b.SessionQueueSize = 64
	}
	if b.SnapshotLimit < 1 || b.SnapshotLimit > 200 {
		b.SnapshotLimit = 50
	}
}
