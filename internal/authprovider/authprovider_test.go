package authprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatic_ReturnsConfiguredValues(t *testing.T) {
	t.Parallel()
	s := Static{Host: "wss://broker.example:443", Token: "tok-123", ExpiryWallClockNs: 999}
	host, token, expiry, err := s.FetchHostToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "wss://broker.example:443", host)
	require.Equal(t, "tok-123", token)
	require.Equal(t, int64(999), expiry)
}
