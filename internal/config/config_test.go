package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range os.Environ() {
		if i := strings.IndexByte(k, '='); i > 0 {
			k = k[:i]
		}
		if len(k) > 3 && k[:3] == "OM_" {
			os.Unsetenv(k)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, TierSmart, cfg.Tier)
	require.Equal(t, 768, cfg.TierProfile.VecDim)
	require.Equal(t, 5, cfg.TierProfile.CacheSegments)
}

func TestLoad_InvalidTier(t *testing.T) {
	clearEnv(t)
	os.Setenv("OM_TIER", "bogus")
	defer os.Unsetenv("OM_TIER")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_EncryptionRequiresKeyAndSalt(t *testing.T) {
	clearEnv(t)
	os.Setenv("OM_ENCRYPTION_ENABLED", "true")
	defer os.Unsetenv("OM_ENCRYPTION_ENABLED")
	_, err := Load("")
	require.Error(t, err)

	os.Setenv("OM_ENCRYPTION_KEY", "k")
	os.Setenv("OM_ENCRYPTION_SALT", "s")
	defer os.Unsetenv("OM_ENCRYPTION_KEY")
	defer os.Unsetenv("OM_ENCRYPTION_SALT")
	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Encryption.Enabled)
}

func TestLoad_InvalidTableName(t *testing.T) {
	clearEnv(t)
	os.Setenv("OM_PG_TABLE", "bad-name; drop table")
	defer os.Unsetenv("OM_PG_TABLE")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_TierProfiles(t *testing.T) {
	clearEnv(t)
	os.Setenv("OM_TIER", "deep")
	defer os.Unsetenv("OM_TIER")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.TierProfile.VecDim)
	require.Equal(t, 10, cfg.TierProfile.CacheSegments)
	require.Equal(t, 128, cfg.TierProfile.MaxActive)
}
