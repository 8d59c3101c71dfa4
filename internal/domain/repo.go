package domain

import (
	"context"
	"math/big"
)

// DocumentRepository persists pinned metadata documents keyed by CID.
type DocumentRepository interface {
	SaveDocument(ctx context.Context, cid string, body []byte) error
	GetDocument(ctx context.Context, cid string) ([]byte, error)
	RecentDocumentCIDs(ctx context.Context, limit int) ([]string, error)
}

// ListingRepository keeps the off-chain view of active marketplace listings.
type ListingRepository interface {
	UpsertListing(ctx context.Context, l *Listing) error
	DeleteListing(ctx context.Context, tokenID *big.Int) error
	ActiveListings(ctx context.Context) ([]Listing, error)
}
