package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	inputs := []string{"", "hello world", "unicode: 你好", strings_repeat("x", 5000)}
	for _, in := range inputs {
		env, err := Envelope("key", "salt", 1, in)
		require.NoError(t, err)
		require.True(t, IsEnvelope(env))
		out, err := Decrypt("key", "salt", env)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func strings_repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	env, err := Envelope("key1", "salt1", 1, "secret")
	require.NoError(t, err)
	_, err = Decrypt("key2", "salt2", env)
	require.Error(t, err)
}

func TestDecrypt_MalformedEnvelope(t *testing.T) {
	_, err := Decrypt("key", "salt", "not-an-envelope")
	require.Error(t, err)
}

func TestIsEnvelope(t *testing.T) {
	require.False(t, IsEnvelope("plain text content"))
	env, _ := Envelope("k", "s", 1, "x")
	require.True(t, IsEnvelope(env))
}

func TestValidateTableName(t *testing.T) {
	require.NoError(t, ValidateTableName("openmemory_memories"))
	require.Error(t, ValidateTableName("bad-name"))
	require.Error(t, ValidateTableName("bad;drop"))
	require.Error(t, ValidateTableName(""))
}
