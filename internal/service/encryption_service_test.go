package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestAESEncryptionService_RejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "shortkey", strings.Repeat("zz", 32), testAESKey[:62]} {
		_, err := NewAESEncryptionService(key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestAESEncryptionService_SealsDeviceSecret(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	sealed, err := svc.Encrypt(testDeviceSecret)
	require.NoError(t, err)
	assert.NotContains(t, sealed, testDeviceSecret)

	opened, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, testDeviceSecret, opened)
}

func TestAESEncryptionService_RotatedSecretsNeverRepeatCiphertext(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		sealed, err := svc.Encrypt(testDeviceSecret)
		require.NoError(t, err)
		assert.False(t, seen[sealed], "nonce reuse")
		seen[sealed] = true
	}
}

func TestAESEncryptionService_DecryptFailures(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)
	other, err := NewAESEncryptionService("abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789")
	require.NoError(t, err)

	sealed, err := svc.Encrypt(testDeviceSecret)
	require.NoError(t, err)
	flipped := sealed[:len(sealed)-2] + "00"
	if flipped == sealed {
		flipped = sealed[:len(sealed)-2] + "ff"
	}

	tests := []struct {
		name  string
		input string
		svc   *AESEncryptionService
	}{
		{"tampered", flipped, svc},
		{"other key", sealed, other},
		{"not hex", "not-hex-at-all!!!", svc},
		{"shorter than nonce", "abcdef", svc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Decrypt(tt.input)
			assert.Error(t, err)
		})
	}
}
