// Package exchange prices one bitcoin in fiat using public exchange APIs.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lnurl-atm-gateway/internal/adapter/resilience"
)

// ErrNoRate is returned when a response does not carry a usable price.
var ErrNoRate = errors.New("no rate in response")

// HTTPProvider fetches rates from one exchange's public ticker.
type HTTPProvider struct {
	name    string
	baseURL string
	client  *resilience.Client
	path    func(currency string) string
	parse   func(body []byte, currency string) (float64, error)
}

func (p *HTTPProvider) Name() string { return p.name }

// FetchRate returns the price of 1 BTC in currency.
func (p *HTTPProvider) FetchRate(ctx context.Context, currency string) (float64, error) {
	currency = strings.ToUpper(currency)
	body, err := p.client.Get(ctx, p.baseURL+p.path(currency))
	if err != nil {
		return 0, err
	}
	rate, err := p.parse(body, currency)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p.name, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("%s: %w", p.name, ErrNoRate)
	}
	return rate, nil
}

// NewCoinbase prices BTC via the Coinbase exchange-rates endpoint.
func NewCoinbase(baseURL string, client *resilience.Client) *HTTPProvider {
	if baseURL == "" {
		baseURL = "https://api.coinbase.com"
	}
	return &HTTPProvider{
		name:    "coinbase",
		baseURL: baseURL,
		client:  client,
		path:    func(string) string { return "/v2/exchange-rates?currency=BTC" },
		parse: func(body []byte, currency string) (float64, error) {
			var resp struct {
				Data struct {
					Rates map[string]string `json:"rates"`
				} `json:"data"`
			}
			if err := decode(body, &resp); err != nil {
				return 0, err
			}
			v, ok := resp.Data.Rates[currency]
			if !ok {
				return 0, ErrNoRate
			}
			return strconv.ParseFloat(v, 64)
		},
	}
}

// NewBitstamp prices BTC via the Bitstamp ticker.
func NewBitstamp(baseURL string, client *resilience.Client) *HTTPProvider {
	if baseURL == "" {
		baseURL = "https://www.bitstamp.net"
	}
	return &HTTPProvider{
		name:    "bitstamp",
		baseURL: baseURL,
		client:  client,
		path: func(currency string) string {
			return "/api/v2/ticker/btc" + strings.ToLower(currency) + "/"
		},
		parse: func(body []byte, _ string) (float64, error) {
			var resp struct {
				Last string `json:"last"`
			}
			if err := decode(body, &resp); err != nil {
				return 0, err
			}
			if resp.Last == "" {
				return 0, ErrNoRate
			}
			return strconv.ParseFloat(resp.Last, 64)
		},
	}
}

// NewKraken prices BTC via the Kraken public ticker. Kraken calls bitcoin XBT.
func NewKraken(baseURL string, client *resilience.Client) *HTTPProvider {
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}
	return &HTTPProvider{
		name:    "kraken",
		baseURL: baseURL,
		client:  client,
		path:    func(currency string) string { return "/0/public/Ticker?pair=XBT" + currency },
		parse: func(body []byte, _ string) (float64, error) {
			var resp struct {
				Error  []string `json:"error"`
				Result map[string]struct {
					Close []string `json:"c"`
				} `json:"result"`
			}
			if err := decode(body, &resp); err != nil {
				return 0, err
			}
			if len(resp.Error) > 0 {
				return 0, fmt.Errorf("%w: %s", ErrNoRate, strings.Join(resp.Error, "; "))
			}
			for _, pair := range resp.Result {
				if len(pair.Close) > 0 {
					return strconv.ParseFloat(pair.Close[0], 64)
				}
			}
			return 0, ErrNoRate
		},
	}
}

// NewBitfinex prices BTC via the Bitfinex v2 ticker, whose response is a bare array.
func NewBitfinex(baseURL string, client *resilience.Client) *HTTPProvider {
	if baseURL == "" {
		baseURL = "https://api-pub.bitfinex.com"
	}
	const lastPrice = 6
	return &HTTPProvider{
		name:    "bitfinex",
		baseURL: baseURL,
		client:  client,
		path:    func(currency string) string { return "/v2/ticker/tBTC" + currency },
		parse: func(body []byte, _ string) (float64, error) {
			var resp []float64
			if err := decode(body, &resp); err != nil {
				return 0, err
			}
			if len(resp) <= lastPrice {
				return 0, ErrNoRate
			}
			return resp[lastPrice], nil
		},
	}
}

// FixedProvider returns a configured rate for every currency. Meant for
// development and tests.
type FixedProvider struct {
	rate float64
}

func NewFixed(rate float64) *FixedProvider {
	return &FixedProvider{rate: rate}
}

func (p *FixedProvider) Name() string { return "fixed" }

func (p *FixedProvider) FetchRate(ctx context.Context, currency string) (float64, error) {
	if p.rate <= 0 {
		return 0, fmt.Errorf("fixed: %w", ErrNoRate)
	}
	return p.rate, nil
}
