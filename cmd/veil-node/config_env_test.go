package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/veil/internal/fec"
)

func TestEnvIntFallsBackOnUnsetOrInvalid(t *testing.T) {
	os.Unsetenv("VEIL_TEST_INT")
	require.Equal(t, 7, envInt("VEIL_TEST_INT", 7))

	os.Setenv("VEIL_TEST_INT", "not-a-number")
	defer os.Unsetenv("VEIL_TEST_INT")
	require.Equal(t, 7, envInt("VEIL_TEST_INT", 7))

	os.Setenv("VEIL_TEST_INT", "42")
	require.Equal(t, 42, envInt("VEIL_TEST_INT", 7))
}

func TestEnvFloatFallsBackOnUnsetOrInvalid(t *testing.T) {
	os.Unsetenv("VEIL_TEST_FLOAT")
	require.InDelta(t, 0.5, envFloat("VEIL_TEST_FLOAT", 0.5), 1e-9)

	os.Setenv("VEIL_TEST_FLOAT", "x")
	defer os.Unsetenv("VEIL_TEST_FLOAT")
	require.InDelta(t, 0.5, envFloat("VEIL_TEST_FLOAT", 0.5), 1e-9)

	os.Setenv("VEIL_TEST_FLOAT", "0.75")
	require.InDelta(t, 0.75, envFloat("VEIL_TEST_FLOAT", 0.5), 1e-9)
}

func TestEnvBoolFallsBackOnUnsetOrInvalid(t *testing.T) {
	os.Unsetenv("VEIL_TEST_BOOL")
	require.True(t, envBool("VEIL_TEST_BOOL", true))

	os.Setenv("VEIL_TEST_BOOL", "maybe")
	defer os.Unsetenv("VEIL_TEST_BOOL")
	require.True(t, envBool("VEIL_TEST_BOOL", true))

	os.Setenv("VEIL_TEST_BOOL", "false")
	require.False(t, envBool("VEIL_TEST_BOOL", true))
}

func TestConfigFromEnvAppliesOverridesAndDefaults(t *testing.T) {
	os.Setenv("VEIL_FAST_FANOUT", "9")
	os.Setenv("VEIL_FEC_MODE", "hardened")
	os.Setenv("VEIL_BLOCKED_PEERS", "peer-a,peer-b")
	os.Setenv("VEIL_DECRYPTION_KEY_HEX", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	defer func() {
		os.Unsetenv("VEIL_FAST_FANOUT")
		os.Unsetenv("VEIL_FEC_MODE")
		os.Unsetenv("VEIL_BLOCKED_PEERS")
		os.Unsetenv("VEIL_DECRYPTION_KEY_HEX")
	}()

	cfg, err := configFromEnv()
	require.NoError(t, err)
	require.Equal(t, 9, cfg.FastFanout)
	require.Equal(t, fec.Hardened, cfg.FECMode)
	require.Equal(t, []string{"peer-a", "peer-b"}, cfg.BlockedPeers)
	require.Len(t, cfg.DecryptionKey, 32)
}

func TestConfigFromEnvRejectsMalformedDecryptionKey(t *testing.T) {
	os.Setenv("VEIL_DECRYPTION_KEY_HEX", "not-hex")
	defer os.Unsetenv("VEIL_DECRYPTION_KEY_HEX")

	_, err := configFromEnv()
	require.Error(t, err)
}
