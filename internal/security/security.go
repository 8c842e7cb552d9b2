// Package security implements the content encryption envelope and table
// name validation of spec §4.1/§4.4 step 5. Encryption is disabled by
// default; when enabled, key and salt are validated at config load
// (internal/config) and a key is derived here from a single SHA-256 hash
// of (key, salt, version), since the pack carries no dedicated KDF library —
// see DESIGN.md for why this one corner stays on the standard library.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openmemory/core/internal/errs"
)

// envelopeSep separates the parts of an encrypted content string: v<keyVersion>:<iv>:<ciphertext>.
const envelopeSep = ":"

// Envelope encrypts plaintext with AES-GCM using a key derived from
// (key, salt, keyVersion), producing "v<version>:<iv-b64>:<ciphertext-b64>".
func Envelope(key, salt string, keyVersion int, plaintext string) (string, error) {
	block, err := aes.NewCipher(deriveKey(key, salt, keyVersion))
	if err != nil {
		return "", errs.Security("failed to init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Security("failed to init gcm", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.Security("failed to generate nonce", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("v%d%s%s%s%s", keyVersion, envelopeSep,
		base64.RawURLEncoding.EncodeToString(nonce), envelopeSep,
		base64.RawURLEncoding.EncodeToString(ciphertext)), nil
}

// IsEnvelope reports whether s looks like an encryption envelope produced
// by Envelope (i.e. has the "v<N>:...:..." shape).
func IsEnvelope(s string) bool {
	if !strings.HasPrefix(s, "v") {
		return false
	}
	parts := strings.SplitN(s, envelopeSep, 3)
	if len(parts) != 3 {
		return false
	}
	_, err := strconv.Atoi(strings.TrimPrefix(parts[0], "v"))
	return err == nil
}

// Decrypt reverses Envelope. Decryption failure (bad key, tampered
// ciphertext, malformed envelope) is a Security error and is never
// recovered by callers (spec §7).
func Decrypt(key, salt string, envelope string) (string, error) {
	parts := strings.SplitN(envelope, envelopeSep, 3)
	if len(parts) != 3 {
		return "", errs.Security("malformed encryption envelope", nil)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[0], "v"))
	if err != nil {
		return "", errs.Security("malformed envelope version", err)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errs.Security("malformed envelope nonce", err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", errs.Security("malformed envelope ciphertext", err)
	}
	block, err := aes.NewCipher(deriveKey(key, salt, version))
	if err != nil {
		return "", errs.Security("failed to init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Security("failed to init gcm", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errs.Security("invalid nonce size", nil)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errs.Security("decryption failed: key mismatch or tampered ciphertext", err)
	}
	return string(plaintext), nil
}

// deriveKey stretches (key, salt, version) into a 32-byte AES-256 key.
func deriveKey(key, salt string, version int) []byte {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte(salt))
	h.Write([]byte(fmt.Sprintf("v%d", version)))
	return h.Sum(nil)
}

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateTableName enforces spec §4.1: table names may only contain
// [A-Za-z0-9_].
func ValidateTableName(name string) error {
	if name == "" || !identifierRe.MatchString(name) {
		return errs.Config(fmt.Sprintf("invalid table name %q", name), nil)
	}
	return nil
}
