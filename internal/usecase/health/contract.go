package health

import "context"

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderStates reports embedding provider availability by breaker state.
type ProviderStates interface {
	Availability() map[string]bool
}
