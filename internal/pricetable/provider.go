package pricetable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/flyer-quote/internal/remote"
)

// ErrNotLoaded is returned by Wait when the context ends before a table is available.
var ErrNotLoaded = errors.New("pricetable: table not loaded")

// Provider owns the price table of the running process. The first table that
// loads is kept for the lifetime of the provider; later loads are ignored.
type Provider struct {
	source remote.Source
	logger zerolog.Logger

	mu    sync.RWMutex
	table *Table
	ready chan struct{}
}

// NewProvider constructs a provider that loads from source.
func NewProvider(source remote.Source, logger zerolog.Logger) *Provider {
	return &Provider{source: source, logger: logger, ready: make(chan struct{})}
}

// Static returns a provider that already holds t.
func Static(t *Table) *Provider {
	p := &Provider{logger: zerolog.Nop(), ready: make(chan struct{})}
	p.Set(t)
	return p
}

// Current returns the loaded table or nil.
func (p *Provider) Current() *Table {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table
}

// Ready returns a channel closed once a table is available.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Set installs t if no table is loaded yet. It reports whether t was installed.
func (p *Provider) Set(t *Table) bool {
	if t == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table != nil {
		return false
	}
	p.table = t
	close(p.ready)
	return true
}

// Load fetches and decodes the table once.
func (p *Provider) Load(ctx context.Context) (*Table, error) {
	if current := p.Current(); current != nil {
		return current, nil
	}
	if p.source == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrNotLoaded)
	}
	data, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	table, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if p.Set(table) {
		p.logger.Info().
			Str("source", p.source.Name()).
			Str("currency", table.Currency).
			Str("tax_rate", table.TaxRate.String()).
			Int("categories", len(table.Categories())).
			Msg("price table loaded")
	}
	return p.Current(), nil
}

// Wait blocks until a table is available or ctx ends.
func (p *Provider) Wait(ctx context.Context) (*Table, error) {
	select {
	case <-p.ready:
		return p.Current(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, ctx.Err())
	}
}

// Run retries Load until it succeeds or ctx ends. Quotes computed before the
// first success are priced in degraded mode.
func (p *Provider) Run(ctx context.Context, retryEvery time.Duration) {
	if retryEvery <= 0 {
		retryEvery = 5 * time.Second
	}
	for attempt := 1; ; attempt++ {
		_, err := p.Load(ctx)
		if err == nil {
			return
		}
		p.logger.Error().Err(err).Int("attempt", attempt).Msg("load price table")
		timer := time.NewTimer(remote.Backoff(retryEvery, min(attempt, 5), 0.2))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
