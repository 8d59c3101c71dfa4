package listingindex

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
)

const (
	defaultCap         = 100
	defaultMaxFailures = 3
)

// MarketReader reads one marketplace slot.
type MarketReader interface {
	Listing(ctx context.Context, id *big.Int) (domain.Listing, error)
}

// Probe enumerates listings by reading ids upward from 0. The marketplace
// has no enumeration call, so the scan ends after MaxFailures consecutive
// read errors or when the id reaches Cap.
type Probe struct {
	market      MarketReader
	cap         int
	maxFailures int
	logger      *zap.Logger
}

func NewProbe(market MarketReader, cfg config.Probe, logger *zap.Logger) *Probe {
	p := &Probe{market: market, cap: cfg.Cap, maxFailures: cfg.MaxFailures, logger: logger}
	if p.cap <= 0 {
		p.cap = defaultCap
	}
	if p.maxFailures <= 0 {
		p.maxFailures = defaultMaxFailures
	}
	return p
}

func (p *Probe) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	var (
		active   []domain.Listing
		failures int
		reads    int
		lastErr  error
	)
	for i := 0; i < p.cap; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := p.market.Listing(ctx, big.NewInt(int64(i)))
		if err != nil {
			failures++
			lastErr = err
			p.logger.Debug("listing probe failed", zap.Int("token_id", i), zap.Int("failures", failures), zap.Error(err))
			if failures >= p.maxFailures {
				break
			}
			continue
		}
		failures = 0
		reads++

		if l.Active() {
			active = append(active, l)
		}
	}

	// nothing readable means the node is unreachable, not an empty market
	if reads == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: probe listings: %v", domain.ErrUpstream, lastErr)
	}
	p.logger.Debug("listing probe done", zap.Int("active", len(active)))
	return active, nil
}
