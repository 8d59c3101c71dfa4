package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
	"github.com/TemirB/musicnft/internal/orchestrator"
)

var (
	fnMint         = mustFunction(musicNFTABI, "mintMusicNFT")
	fnTokenCounter = mustFunction(musicNFTABI, "tokenCounter")
	fnOwnerOf      = mustFunction(musicNFTABI, "ownerOf")
	fnGetApproved  = mustFunction(musicNFTABI, "getApproved")
	fnApproveNFT   = mustFunction(musicNFTABI, "approve")
	fnTokenURI     = mustFunction(musicNFTABI, "tokenURI")
	evTransfer     = mustEvent(musicNFTABI, "Transfer")

	fnListings = mustFunction(marketplaceABI, "listings")
	fnListNFT  = mustFunction(marketplaceABI, "listNFT")
	fnBuyNFT   = mustFunction(marketplaceABI, "buyNFT")

	fnAllowance    = mustFunction(erc20ABI, "allowance")
	fnApproveToken = mustFunction(erc20ABI, "approve")
	fnBalanceOf    = mustFunction(erc20ABI, "balanceOf")
)

// Connect dials the node and binds the three contracts into a session.
func Connect(cfg config.Client, logger *zap.Logger) (*orchestrator.Session, error) {
	c, err := Dial(cfg.Chain, logger)
	if err != nil {
		return nil, err
	}
	return NewSession(c, cfg.Contracts)
}

func NewSession(c *Client, cfg config.Contracts) (*orchestrator.Session, error) {
	nft, err := NewNFT(c, cfg.NFT)
	if err != nil {
		return nil, err
	}
	market, err := NewMarket(c, cfg.Market)
	if err != nil {
		return nil, err
	}
	token, err := NewToken(c, cfg.Token)
	if err != nil {
		return nil, err
	}
	return &orchestrator.Session{
		Account:     c.Account(),
		Marketplace: market.addr.String(),
		Decimals:    cfg.Decimals,
		NFT:         nft,
		Market:      market,
		Token:       token,
	}, nil
}

func parseAddress(field, s string) (*ethtypes.Address0xHex, error) {
	a, err := ethtypes.NewAddress(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", domain.ErrValidation, field, s, err)
	}
	return a, nil
}

func normalizeAddress(s string) string {
	if a, err := ethtypes.NewAddress(s); err == nil {
		return a.String()
	}
	return strings.ToLower(s)
}

func parseUint(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an integer: %q", domain.ErrUpstream, field, s)
	}
	return v, nil
}

const zeroAddress = "0x0000000000000000000000000000000000000000"

type NFT struct {
	c    *Client
	addr *ethtypes.Address0xHex
}

func NewNFT(c *Client, address string) (*NFT, error) {
	a, err := parseAddress("NFT_ADDRESS", address)
	if err != nil {
		return nil, err
	}
	return &NFT{c: c, addr: a}, nil
}

// Mint submits mintMusicNFT and reads the new token id from the Transfer
// event minted to the sender.
func (n *NFT) Mint(ctx context.Context, uri string) (*big.Int, string, error) {
	receipt, err := n.c.Transact(ctx, n.addr, fnMint, map[string]any{"tokenURI": uri})
	if err != nil {
		return nil, "", err
	}
	id, err := mintedTokenID(ctx, receipt, n.addr, n.c.Account())
	if err != nil {
		return nil, receipt.TransactionHash.String(), err
	}
	return id, receipt.TransactionHash.String(), nil
}

type transferEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"tokenId"`
}

func mintedTokenID(ctx context.Context, receipt *Receipt, contract *ethtypes.Address0xHex, account string) (*big.Int, error) {
	sig := evTransfer.SignatureHashBytes()
	for _, l := range receipt.Logs {
		if l == nil || l.Address == nil || l.Address.String() != contract.String() {
			continue
		}
		if len(l.Topics) != 4 || !bytes.Equal(l.Topics[0], sig) {
			continue
		}
		ev, err := decodeEvent(ctx, evTransfer, l)
		if err != nil {
			return nil, err
		}
		var t transferEvent
		if err := json.Unmarshal(ev, &t); err != nil {
			return nil, err
		}
		if normalizeAddress(t.From) != zeroAddress || normalizeAddress(t.To) != account {
			continue
		}
		return parseUint("tokenId", t.TokenID)
	}
	return nil, fmt.Errorf("%w: no mint Transfer event in receipt %s", domain.ErrUpstream, receipt.TransactionHash.String())
}

func decodeEvent(ctx context.Context, ev *abi.Entry, l *Log) ([]byte, error) {
	cv, err := ev.DecodeEventDataCtx(ctx, l.Topics, l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrUpstream, ev.Name, err)
	}
	return serializer().SerializeJSONCtx(ctx, cv)
}

func (n *NFT) OwnerOf(ctx context.Context, id *big.Int) (string, error) {
	var out struct {
		Owner string `json:"owner"`
	}
	if err := n.c.Call(ctx, n.addr, fnOwnerOf, map[string]any{"tokenId": id.String()}, &out); err != nil {
		return "", err
	}
	return normalizeAddress(out.Owner), nil
}

func (n *NFT) GetApproved(ctx context.Context, id *big.Int) (string, error) {
	var out struct {
		Operator string `json:"operator"`
	}
	if err := n.c.Call(ctx, n.addr, fnGetApproved, map[string]any{"tokenId": id.String()}, &out); err != nil {
		return "", err
	}
	return normalizeAddress(out.Operator), nil
}

func (n *NFT) Approve(ctx context.Context, spender string, id *big.Int) (string, error) {
	receipt, err := n.c.Transact(ctx, n.addr, fnApproveNFT, map[string]any{"to": spender, "tokenId": id.String()})
	if err != nil {
		return "", err
	}
	return receipt.TransactionHash.String(), nil
}

func (n *NFT) TokenURI(ctx context.Context, id *big.Int) (string, error) {
	var out struct {
		URI string `json:"uri"`
	}
	if err := n.c.Call(ctx, n.addr, fnTokenURI, map[string]any{"tokenId": id.String()}, &out); err != nil {
		return "", err
	}
	return out.URI, nil
}

func (n *NFT) TokenCounter(ctx context.Context) (*big.Int, error) {
	var out struct {
		Count string `json:"count"`
	}
	if err := n.c.Call(ctx, n.addr, fnTokenCounter, nil, &out); err != nil {
		return nil, err
	}
	return parseUint("count", out.Count)
}

type Market struct {
	c    *Client
	addr *ethtypes.Address0xHex
}

func NewMarket(c *Client, address string) (*Market, error) {
	a, err := parseAddress("MARKET_ADDRESS", address)
	if err != nil {
		return nil, err
	}
	return &Market{c: c, addr: a}, nil
}

func (m *Market) Listing(ctx context.Context, id *big.Int) (domain.Listing, error) {
	var out struct {
		Seller string `json:"seller"`
		Price  string `json:"price"`
	}
	if err := m.c.Call(ctx, m.addr, fnListings, map[string]any{"tokenId": id.String()}, &out); err != nil {
		return domain.Listing{}, err
	}
	price, err := parseUint("price", out.Price)
	if err != nil {
		return domain.Listing{}, err
	}
	return domain.Listing{TokenID: new(big.Int).Set(id), Seller: normalizeAddress(out.Seller), Price: price}, nil
}

func (m *Market) List(ctx context.Context, id, price *big.Int) (string, error) {
	receipt, err := m.c.Transact(ctx, m.addr, fnListNFT, map[string]any{"tokenId": id.String(), "price": price.String()})
	if err != nil {
		return "", err
	}
	return receipt.TransactionHash.String(), nil
}

func (m *Market) Buy(ctx context.Context, id *big.Int) (string, error) {
	receipt, err := m.c.Transact(ctx, m.addr, fnBuyNFT, map[string]any{"tokenId": id.String()})
	if err != nil {
		return "", err
	}
	return receipt.TransactionHash.String(), nil
}

type Token struct {
	c    *Client
	addr *ethtypes.Address0xHex
}

func NewToken(c *Client, address string) (*Token, error) {
	a, err := parseAddress("TOKEN_ADDRESS", address)
	if err != nil {
		return nil, err
	}
	return &Token{c: c, addr: a}, nil
}

func (t *Token) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	var out struct {
		Remaining string `json:"remaining"`
	}
	if err := t.c.Call(ctx, t.addr, fnAllowance, map[string]any{"owner": owner, "spender": spender}, &out); err != nil {
		return nil, err
	}
	return parseUint("remaining", out.Remaining)
}

func (t *Token) Approve(ctx context.Context, spender string, amount *big.Int) (string, error) {
	receipt, err := t.c.Transact(ctx, t.addr, fnApproveToken, map[string]any{"spender": spender, "amount": amount.String()})
	if err != nil {
		return "", err
	}
	return receipt.TransactionHash.String(), nil
}

func (t *Token) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	if err := t.c.Call(ctx, t.addr, fnBalanceOf, map[string]any{"account": owner}, &out); err != nil {
		return nil, err
	}
	return parseUint("balance", out.Balance)
}
