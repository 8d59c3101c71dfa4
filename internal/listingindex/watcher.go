package listingindex

import (
	"context"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/domain"
)

type Source interface {
	ActiveListings(ctx context.Context) ([]domain.Listing, error)
}

type Publisher interface {
	Publish(ctx context.Context, events ...domain.ListingEvent) error
}

// Watcher polls a listing source and publishes the changes between
// consecutive snapshots.
type Watcher struct {
	source    Source
	publisher Publisher
	logger    *zap.Logger
	last      map[string]domain.Listing
	now       func() time.Time
}

func NewWatcher(source Source, publisher Publisher, logger *zap.Logger) *Watcher {
	return &Watcher{
		source:    source,
		publisher: publisher,
		logger:    logger,
		last:      map[string]domain.Listing{},
		now:       time.Now,
	}
}

// Seed replaces the previous snapshot with what src reports as listed, so
// listings that vanished while the watcher was down are delisted on the
// first tick.
func (w *Watcher) Seed(ctx context.Context, src Source) error {
	listings, err := src.ActiveListings(ctx)
	if err != nil {
		return err
	}
	last := make(map[string]domain.Listing, len(listings))
	for _, l := range listings {
		last[l.TokenID.String()] = l
	}
	w.last = last
	w.logger.Info("Listing snapshot seeded", zap.Int("active", len(last)))
	return nil
}

// Run ticks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("Listing snapshot failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick takes one snapshot. The previous snapshot is replaced only after the
// events are published, so a failed publish is retried on the next tick.
func (w *Watcher) Tick(ctx context.Context) error {
	listings, err := w.source.ActiveListings(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]domain.Listing, len(listings))
	for _, l := range listings {
		next[l.TokenID.String()] = l
	}

	events := Diff(w.last, next, w.now().UTC())
	if err := w.publisher.Publish(ctx, events...); err != nil {
		return err
	}
	if len(events) > 0 {
		w.logger.Info("Listing changes published", zap.Int("events", len(events)), zap.Int("active", len(next)))
	}
	w.last = next
	return nil
}

// Diff reports new or changed listings as listed and vanished ones as
// delisted. Events are ordered by token id.
func Diff(prev, next map[string]domain.Listing, at time.Time) []domain.ListingEvent {
	var events []domain.ListingEvent
	for id, l := range next {
		old, ok := prev[id]
		if ok && old.Seller == l.Seller && old.Price.Cmp(l.Price) == 0 {
			continue
		}
		events = append(events, domain.ListingEvent{Type: domain.EventListed, Listing: l, ObservedAt: at})
	}
	for id, l := range prev {
		if _, ok := next[id]; ok {
			continue
		}
		gone := domain.Listing{TokenID: l.TokenID, Seller: l.Seller, Price: new(big.Int)}
		events = append(events, domain.ListingEvent{Type: domain.EventDelisted, Listing: gone, ObservedAt: at})
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Listing.TokenID.Cmp(events[j].Listing.TokenID) < 0
	})
	return events
}
