package listingindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/TemirB/musicnft/internal/domain"
)

// Store reads the listing table the proxy keeps up to date from the
// listings topic.
type Store struct {
	client *resty.Client
}

func NewStore(backendURL string) *Store {
	return &Store{
		client: resty.New().
			SetBaseURL(strings.TrimRight(backendURL, "/")).
			SetTimeout(15 * time.Second),
	}
}

type listingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

func (s *Store) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	var out listingsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/listings")
	if err != nil {
		return nil, fmt.Errorf("%w: listings: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: listings: %s", domain.ErrUpstream, resp.Status())
	}

	active := out.Listings[:0]
	for _, l := range out.Listings {
		if l.Active() {
			active = append(active, l)
		}
	}
	return active, nil
}
