package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/domain"
)

// Listings applies indexer events to the listing repository and serves the active set.
type Listings struct {
	repo   domain.ListingRepository
	logger *zap.Logger
}

func NewListings(repo domain.ListingRepository, logger *zap.Logger) *Listings {
	return &Listings{repo: repo, logger: logger}
}

func (l *Listings) Apply(ctx context.Context, ev *domain.ListingEvent) error {
	if ev.Listing.TokenID == nil || ev.Listing.TokenID.Sign() < 0 {
		return fmt.Errorf("%w: token id is required", domain.ErrValidation)
	}

	switch ev.Type {
	case domain.EventListed:
		if !ev.Listing.Active() {
			return fmt.Errorf("%w: listed event with zero price", domain.ErrValidation)
		}
		if err := l.repo.UpsertListing(ctx, &ev.Listing); err != nil {
			return err
		}
	case domain.EventDelisted:
		if err := l.repo.DeleteListing(ctx, ev.Listing.TokenID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, ev.Type)
	}

	l.logger.Info("Listing event applied",
		zap.String("type", string(ev.Type)),
		zap.String("token_id", ev.Listing.TokenID.String()),
	)
	return nil
}

func (l *Listings) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	return l.repo.ActiveListings(ctx)
}
