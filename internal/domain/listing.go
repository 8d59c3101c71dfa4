package domain

import (
	"math/big"
	"time"
)

type Listing struct {
	TokenID *big.Int `json:"token_id"`
	Seller  string   `json:"seller"`
	Price   *big.Int `json:"price"`
}

// Active reports whether the marketplace holds a live offer. Zero price means absent.
func (l *Listing) Active() bool {
	return l != nil && l.Price != nil && l.Price.Sign() > 0
}

type ListingEventType string

const (
	EventListed   ListingEventType = "listed"
	EventDelisted ListingEventType = "delisted"
)

// ListingEvent is published by the indexer whenever the probed listing set changes.
type ListingEvent struct {
	Type       ListingEventType `json:"type"`
	Listing    Listing          `json:"listing"`
	ObservedAt time.Time        `json:"observed_at"`
}
