package orchestrator

import (
	"context"
	"math/big"
	"strings"

	"github.com/TemirB/musicnft/internal/domain"
)

// Write methods block until the transaction is mined and return its hash.

type NFT interface {
	Mint(ctx context.Context, uri string) (tokenID *big.Int, txHash string, err error)
	OwnerOf(ctx context.Context, id *big.Int) (string, error)
	GetApproved(ctx context.Context, id *big.Int) (string, error)
	Approve(ctx context.Context, spender string, id *big.Int) (string, error)
	TokenURI(ctx context.Context, id *big.Int) (string, error)
	TokenCounter(ctx context.Context) (*big.Int, error)
}

type Market interface {
	Listing(ctx context.Context, id *big.Int) (domain.Listing, error)
	List(ctx context.Context, id, price *big.Int) (string, error)
	Buy(ctx context.Context, id *big.Int) (string, error)
}

type PaymentToken interface {
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	Approve(ctx context.Context, spender string, amount *big.Int) (string, error)
	BalanceOf(ctx context.Context, owner string) (*big.Int, error)
}

// Session is built once after connecting and carries the caller's account
// together with the contract handles.
type Session struct {
	Account     string
	Marketplace string
	Decimals    int32

	NFT    NFT
	Market Market
	Token  PaymentToken
}

// ListingIndex enumerates active marketplace listings.
type ListingIndex interface {
	ActiveListings(ctx context.Context) ([]domain.Listing, error)
}

// MetadataResolver fetches token metadata through the proxy.
type MetadataResolver interface {
	Resolve(ctx context.Context, cid string) (*domain.Metadata, error)
	AudioURL(uri string) string
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
