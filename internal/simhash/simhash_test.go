package simhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	require.Equal(t, Fingerprint("hello world"), Fingerprint("hello world"))
}

func TestFingerprint_NormalizationInsensitive(t *testing.T) {
	require.Equal(t, Fingerprint("hello   world"), Fingerprint("Hello World"))
	require.Equal(t, Fingerprint("  hello world  "), Fingerprint("hello world"))
}

func TestFingerprint_DifferentContentDiffers(t *testing.T) {
	require.NotEqual(t, Fingerprint("hello world"), Fingerprint("goodbye world"))
}

func TestHammingDistance_Self(t *testing.T) {
	fp := Fingerprint("some content here")
	require.Equal(t, 0, HammingDistance(fp, fp))
}

func TestHammingDistance_MismatchedLength(t *testing.T) {
	require.Equal(t, 64, HammingDistance("ab", "abcd"))
}
