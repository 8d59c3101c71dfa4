package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/domain"
)

var errNoResolver = errors.New("no metadata resolver configured")

// Entry is a token enriched with its metadata. When metadata cannot be read
// Unavailable is set and Error holds the reason.
type Entry struct {
	TokenID     *big.Int         `json:"tokenId"`
	Listing     *domain.Listing  `json:"listing,omitempty"`
	Price       string           `json:"price,omitempty"`
	URI         string           `json:"uri,omitempty"`
	Metadata    *domain.Metadata `json:"metadata,omitempty"`
	AudioURL    string           `json:"audioUrl,omitempty"`
	Unavailable bool             `json:"unavailable,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Listings returns every active listing. A token whose metadata fails to
// resolve stays in the result marked unavailable.
func (o *Orchestrator) Listings(ctx context.Context) ([]Entry, error) {
	if o.index == nil {
		return nil, fmt.Errorf("%w: no listing index configured", domain.ErrValidation)
	}
	listings, err := o.index.ActiveListings(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(listings))
	for i := range listings {
		l := listings[i]
		if !l.Active() {
			continue
		}
		e := Entry{TokenID: l.TokenID, Listing: &l, Price: FormatUnits(l.Price, o.session.Decimals)}
		o.enrich(ctx, &e)
		out = append(out, e)
	}
	return out, nil
}

// Collection returns tokens held by account plus the ones it has listed,
// which the marketplace holds in escrow. Tokens whose reads fail are skipped.
func (o *Orchestrator) Collection(ctx context.Context, account string) ([]Entry, error) {
	s := o.session
	if account == "" {
		account = s.Account
	}
	count, err := s.NFT.TokenCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("tokenCounter: %w", err)
	}

	var out []Entry
	for i := new(big.Int); i.Cmp(count) < 0; i.Add(i, big.NewInt(1)) {
		id := new(big.Int).Set(i)
		owner, err := s.NFT.OwnerOf(ctx, id)
		if err != nil {
			o.logger.Debug("skipping token", zap.String("token_id", id.String()), zap.Error(err))
			continue
		}

		var e Entry
		switch {
		case sameAddress(owner, account):
			e = Entry{TokenID: id}
		case sameAddress(owner, s.Marketplace):
			l, err := s.Market.Listing(ctx, id)
			if err != nil || !l.Active() || !sameAddress(l.Seller, account) {
				continue
			}
			e = Entry{TokenID: id, Listing: &l, Price: FormatUnits(l.Price, s.Decimals)}
		default:
			continue
		}
		o.enrich(ctx, &e)
		out = append(out, e)
	}
	return out, nil
}

func (o *Orchestrator) enrich(ctx context.Context, e *Entry) {
	uri, err := o.session.NFT.TokenURI(ctx, e.TokenID)
	if err != nil {
		o.markUnavailable(e, fmt.Errorf("tokenURI: %w", err))
		return
	}
	e.URI = uri
	if o.resolver == nil {
		o.markUnavailable(e, errNoResolver)
		return
	}
	meta, err := o.resolver.Resolve(ctx, domain.CIDFromURI(uri))
	if err != nil {
		o.markUnavailable(e, err)
		return
	}
	e.Metadata = meta
	e.AudioURL = o.resolver.AudioURL(meta.Properties.Audio)
}

func (o *Orchestrator) markUnavailable(e *Entry, err error) {
	e.Unavailable = true
	e.Error = err.Error()
	o.logger.Warn("metadata unavailable", zap.String("token_id", e.TokenID.String()), zap.Error(err))
}
