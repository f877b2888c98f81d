package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"lnurl-atm-gateway/pkg/lnurlsig"

	"github.com/fiatjaf/go-lnurl"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

// SignOptions describes one withdraw link as a device would print it.
type SignOptions struct {
	APIKeyID    string
	APIKey      string
	Encoding    string
	CallbackURL string
	Min         float64
	Max         float64
	Description string
	Fiat        string
	Nonce       string
	Shorten     bool
}

// SignedLink is the output of SignWithdrawURL.
type SignedLink struct {
	URL   string
	LNURL string
}

var signOpts SignOptions
var qrPath string

func init() {
	f := signCmd.Flags()
	f.StringVar(&signOpts.APIKeyID, "id", "", "device api key id")
	f.StringVar(&signOpts.APIKey, "key", "", "device api key secret")
	f.StringVar(&signOpts.Encoding, "encoding", lnurlsig.EncodingHex, "api key encoding (hex, base64)")
	f.StringVar(&signOpts.CallbackURL, "callback-url", "", "withdraw endpoint, e.g. https://atm.example.com/u")
	f.Float64Var(&signOpts.Min, "min", 0, "minimum amount (msat, or fiat with --fiat)")
	f.Float64Var(&signOpts.Max, "max", 0, "maximum amount (msat, or fiat with --fiat)")
	f.StringVar(&signOpts.Description, "desc", "", "default invoice description")
	f.StringVar(&signOpts.Fiat, "fiat", "", "fiat currency code the amounts are given in")
	f.StringVar(&signOpts.Nonce, "nonce", "", "nonce to sign (random when empty)")
	f.BoolVar(&signOpts.Shorten, "shorten", false, "emit compact query keys")
	f.StringVar(&qrPath, "qr", "", "write the LNURL as a QR code PNG to this file")
	for _, name := range []string{"id", "key", "callback-url", "min", "max"} {
		_ = signCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(signCmd)
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "signs a withdraw request the way ATM firmware does",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := SignWithdrawURL(signOpts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "URL:   %s\n", link.URL)
		fmt.Fprintf(out, "LNURL: lightning:%s\n", link.LNURL)

		if qrPath != "" {
			if err := qrcode.WriteFile("lightning:"+link.LNURL, qrcode.Medium, 512, qrPath); err != nil {
				return fmt.Errorf("write qr code: %w", err)
			}
			fmt.Fprintf(out, "QR:    %s\n", qrPath)
		}
		return nil
	},
}

// SignWithdrawURL signs the long form of the query and, when asked, shortens
// it afterwards. The server expands before verifying, so both forms verify.
func SignWithdrawURL(opts SignOptions) (*SignedLink, error) {
	if opts.APIKeyID == "" || opts.APIKey == "" {
		return nil, errors.New("api key id and secret are required")
	}
	base, err := url.Parse(opts.CallbackURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid callback url %q", opts.CallbackURL)
	}
	if opts.Min <= 0 || opts.Max < opts.Min {
		return nil, errors.New("amounts must satisfy 0 < min <= max")
	}

	nonce := opts.Nonce
	if nonce == "" {
		if nonce, err = randomNonce(); err != nil {
			return nil, err
		}
	}

	query := map[string]string{
		"id":              opts.APIKeyID,
		"nonce":           nonce,
		"tag":             lnurlsig.TagWithdrawRequest,
		"minWithdrawable": formatAmount(opts.Min),
		"maxWithdrawable": formatAmount(opts.Max),
	}
	if opts.Description != "" {
		query["defaultDescription"] = opts.Description
	}
	if opts.Fiat != "" {
		query["f"] = opts.Fiat
	}

	sig, err := lnurlsig.Sign(query, opts.APIKey, opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("sign query: %w", err)
	}
	query[lnurlsig.SignatureKey] = sig
	if opts.Shorten {
		query = lnurlsig.Shorten(query)
	}

	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}
	base.RawQuery = values.Encode()

	encoded, err := lnurl.LNURLEncode(base.String())
	if err != nil {
		return nil, fmt.Errorf("encode lnurl: %w", err)
	}
	return &SignedLink{URL: base.String(), LNURL: encoded}, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func randomNonce() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
