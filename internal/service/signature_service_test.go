package service

import (
	"testing"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDeviceSecret = "68656c6c6f2d61746d2d7365637265742d6b65792d3332627974657321212121"

func signedQuery(t *testing.T, svc *LNURLSignatureService, query map[string]string, secret string) map[string]string {
	t.Helper()
	sig, err := svc.Sign(query, secret, domain.APIKeyEncodingHex)
	require.NoError(t, err)
	out := map[string]string{"signature": sig}
	for k, v := range query {
		out[k] = v
	}
	return out
}

func TestLNURLSignatureService_SignAndVerify(t *testing.T) {
	svc := NewLNURLSignatureService()
	query := map[string]string{
		"id":                 "a1b2c3",
		"nonce":              "n1",
		"tag":                "withdrawRequest",
		"minWithdrawable":    "1000",
		"maxWithdrawable":    "5000",
		"defaultDescription": "cash out",
	}

	signed := signedQuery(t, svc, query, testDeviceSecret)
	assert.Regexp(t, `^[0-9a-f]{64}$`, signed["signature"])
	assert.True(t, svc.Verify(signed, testDeviceSecret, domain.APIKeyEncodingHex))
}

func TestLNURLSignatureService_VerifyFails_WrongSecret(t *testing.T) {
	svc := NewLNURLSignatureService()
	signed := signedQuery(t, svc, map[string]string{"id": "x", "tag": "withdrawRequest"}, testDeviceSecret)

	other := "00" + testDeviceSecret[2:]
	assert.False(t, svc.Verify(signed, other, domain.APIKeyEncodingHex))
}

func TestLNURLSignatureService_VerifyFails_TamperedQuery(t *testing.T) {
	svc := NewLNURLSignatureService()
	signed := signedQuery(t, svc, map[string]string{"id": "x", "maxWithdrawable": "5000"}, testDeviceSecret)

	signed["maxWithdrawable"] = "5001"
	assert.False(t, svc.Verify(signed, testDeviceSecret, domain.APIKeyEncodingHex))
}

func TestLNURLSignatureService_Base64Key(t *testing.T) {
	svc := NewLNURLSignatureService()
	query := map[string]string{"id": "x", "nonce": "abc"}
	secret := "c2VjcmV0LWtleS1ieXRlcw=="

	sig, err := svc.Sign(query, secret, domain.APIKeyEncodingBase64)
	require.NoError(t, err)
	query["signature"] = sig

	assert.True(t, svc.Verify(query, secret, domain.APIKeyEncodingBase64))
	assert.False(t, svc.Verify(query, secret, domain.APIKeyEncodingHex))
}
