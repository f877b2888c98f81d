package lnurlsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Key encodings accepted for device secrets.
const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// DecodeKey turns an encoded device secret into raw key bytes.
// Unknown encodings fall back to hex.
func DecodeKey(secret, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase64:
		key, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("decode base64 key: %w", err)
		}
		return key, nil
	default:
		key, err := hex.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		return key, nil
	}
}

// SignPayload returns the hex HMAC-SHA256 of payload under key.
func SignPayload(key []byte, payload string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign canonicalizes query and signs it with the encoded device secret.
func Sign(query map[string]string, secret, encoding string) (string, error) {
	key, err := DecodeKey(secret, encoding)
	if err != nil {
		return "", err
	}
	return SignPayload(key, Canonicalize(query)), nil
}

// Verify reports whether query carries a valid signature for the secret.
// A secret that cannot be decoded never verifies.
func Verify(query map[string]string, secret, encoding string) bool {
	sig, ok := query[SignatureKey]
	if !ok || sig == "" {
		return false
	}
	key, err := DecodeKey(secret, encoding)
	if err != nil {
		return false
	}
	expected := SignPayload(key, Canonicalize(query))
	return hmac.Equal([]byte(expected), []byte(sig))
}
