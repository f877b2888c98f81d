package cmd

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lnurl-atm-gateway/pkg/lnurlsig"

	"github.com/fiatjaf/go-lnurl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyID  = "a1b2c3d4e5f60718"
	testSecret = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
)

func firstValues(t *testing.T, raw string) map[string]string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	out := map[string]string{}
	for k, v := range u.Query() {
		out[k] = v[0]
	}
	return out
}

func baseOptions() SignOptions {
	return SignOptions{
		APIKeyID:    testKeyID,
		APIKey:      testSecret,
		Encoding:    lnurlsig.EncodingHex,
		CallbackURL: "https://atm.example.com/u",
		Min:         1000000,
		Max:         1000000,
		Description: "ATM withdrawal",
		Nonce:       "deadbeef",
	}
}

func TestSignWithdrawURL_LongFormVerifies(t *testing.T) {
	link, err := SignWithdrawURL(baseOptions())
	require.NoError(t, err)

	query := firstValues(t, link.URL)
	assert.Equal(t, lnurlsig.TagWithdrawRequest, query["tag"])
	assert.Equal(t, "deadbeef", query["nonce"])
	assert.Equal(t, "1000000", query["minWithdrawable"])
	assert.True(t, lnurlsig.Verify(query, testSecret, lnurlsig.EncodingHex))

	decoded, err := lnurl.LNURLDecode(link.LNURL)
	require.NoError(t, err)
	assert.Equal(t, link.URL, decoded)
	assert.True(t, strings.HasPrefix(link.LNURL, "LNURL1"))
}

func TestSignWithdrawURL_ShortFormVerifiesAfterExpand(t *testing.T) {
	opts := baseOptions()
	opts.Shorten = true
	opts.Fiat = "EUR"
	opts.Min, opts.Max = 0.5, 20

	link, err := SignWithdrawURL(opts)
	require.NoError(t, err)

	query := firstValues(t, link.URL)
	assert.Equal(t, "w", query["t"])
	assert.Equal(t, "0.5", query["pn"])
	assert.NotContains(t, query, "signature")

	expanded, err := lnurlsig.Expand(query)
	require.NoError(t, err)
	assert.Equal(t, "EUR", expanded["f"])
	assert.True(t, lnurlsig.Verify(expanded, testSecret, lnurlsig.EncodingHex))
}

func TestSignWithdrawURL_SameNonceSameSignature(t *testing.T) {
	a, err := SignWithdrawURL(baseOptions())
	require.NoError(t, err)
	b, err := SignWithdrawURL(baseOptions())
	require.NoError(t, err)
	assert.Equal(t, a.URL, b.URL)

	opts := baseOptions()
	opts.Nonce = ""
	c, err := SignWithdrawURL(opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.URL, c.URL)
}

func TestSignWithdrawURL_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignOptions)
	}{
		{"missing key id", func(o *SignOptions) { o.APIKeyID = "" }},
		{"relative callback", func(o *SignOptions) { o.CallbackURL = "/u" }},
		{"zero min", func(o *SignOptions) { o.Min = 0 }},
		{"max below min", func(o *SignOptions) { o.Max = 10 }},
		{"bad hex key", func(o *SignOptions) { o.APIKey = "zz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := baseOptions()
			tt.mutate(&opts)
			_, err := SignWithdrawURL(opts)
			assert.Error(t, err)
		})
	}
}

func TestSignCommand_WritesQRCode(t *testing.T) {
	qr := filepath.Join(t.TempDir(), "atm.png")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"sign",
		"--id", testKeyID,
		"--key", testSecret,
		"--callback-url", "https://atm.example.com/u",
		"--min", "1000",
		"--max", "5000",
		"--nonce", "01",
		"--qr", qr,
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "LNURL: lightning:LNURL1")

	info, err := os.Stat(qr)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
