// Package authprovider defines the credential collaborator the transport
// controller calls on every connect and reconnect. Concrete production
// backends (vault, broker-issued OAuth, etc.) are out of scope; this
// package only holds the interface and a deterministic stub for tests and
// the demonstration binary.
package authprovider

import "context"

// TokenProvider fetches the broker host and a short-lived session token.
// ExpiryWallClockNs is wall-clock nanoseconds at which the token expires;
// the transport controller's refresh worker uses it against
// TokenRefreshLeadTime.
type TokenProvider interface {
	FetchHostToken(ctx context.Context) (host, token string, expiryWallClockNs int64, err error)
}

// Static is a deterministic TokenProvider returning the same host/token on
// every call, with a caller-supplied expiry. It exists for tests and the
// demonstration binary; it is not a production credential backend.
type Static struct {
	Host              string
	Token             string
	ExpiryWallClockNs int64
}

// FetchHostToken returns the configured host, token, and expiry. It never
// fails.
func (s Static) FetchHostToken(ctx context.Context) (string, string, int64, error) {
	return s.Host, s.Token, s.ExpiryWallClockNs, nil
}
