package lnurlsig

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveSecret returns the session secret (k1) for a signed request.
// The same key id and signature always map to the same secret, so a repeated
// info request finds the session it created before.
func DeriveSecret(apiKeyID, signature string) string {
	return sha256Hex(apiKeyID + "-" + signature)
}

// DeriveHash returns the storage lookup key for a session secret.
func DeriveHash(secret string) string {
	return sha256Hex(secret)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
