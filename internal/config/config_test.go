package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDispatcherConfig_IsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultDispatcherConfig().Validate())
}

func TestDispatcherConfig_Validate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  DispatcherConfig
		ok   bool
	}{
		{"zero maxlen", DispatcherConfig{MaxLen: 0, EMAAlpha: 0.1, DropWarningThreshold: 0.1}, false},
		{"negative maxlen", DispatcherConfig{MaxLen: -1, EMAAlpha: 0.1, DropWarningThreshold: 0.1}, false},
		{"alpha zero", DispatcherConfig{MaxLen: 10, EMAAlpha: 0, DropWarningThreshold: 0.1}, false},
		{"alpha too big", DispatcherConfig{MaxLen: 10, EMAAlpha: 1.1, DropWarningThreshold: 0.1}, false},
		{"threshold too big", DispatcherConfig{MaxLen: 10, EMAAlpha: 0.1, DropWarningThreshold: 1.1}, false},
		{"valid", DispatcherConfig{MaxLen: 10, EMAAlpha: 0.1, DropWarningThreshold: 0.1}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestDefaultTransportConfig_IsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultTransportConfig().Validate())
}

func TestTransportConfig_Validate_MaxLessThanMin(t *testing.T) {
	t.Parallel()
	cfg := DefaultTransportConfig()
	cfg.ReconnectMaxDelay = cfg.ReconnectMinDelay / 2
	require.Error(t, cfg.Validate())
}

func TestDefaultLivenessConfig_IsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultLivenessConfig().Validate())
}

func TestLivenessConfig_Validate_BadOverride(t *testing.T) {
	t.Parallel()
	cfg := DefaultLivenessConfig()
	cfg.PerSymbolMaxGap["PTT"] = -1
	require.Error(t, cfg.Validate())
}
