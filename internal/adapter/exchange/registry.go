package exchange

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"lnurl-atm-gateway/internal/adapter/resilience"
	"lnurl-atm-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// Registry holds the rate providers available to devices, by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ports.ExchangeRateProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]ports.ExchangeRateProvider)}
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p ports.ExchangeRateProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider.
func (r *Registry) Get(name string) (ports.ExchangeRateProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry registers the four public exchanges, each behind its own
// breaker, plus the fixed provider when fixedRate is positive.
func DefaultRegistry(timeout time.Duration, maxRetries uint64, fixedRate float64, log zerolog.Logger) *Registry {
	client := func(name string) *resilience.Client {
		cfg := resilience.DefaultClientConfig("rates-" + name)
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		cfg.MaxRetries = maxRetries
		return resilience.NewClient(cfg, nil, log)
	}

	r := NewRegistry()
	r.Register(NewCoinbase("", client("coinbase")))
	r.Register(NewBitstamp("", client("bitstamp")))
	r.Register(NewKraken("", client("kraken")))
	r.Register(NewBitfinex("", client("bitfinex")))
	if fixedRate > 0 {
		r.Register(NewFixed(fixedRate))
	}
	return r
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding ticker: %w", err)
	}
	return nil
}
