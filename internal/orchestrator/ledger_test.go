package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/TemirB/musicnft/internal/domain"
)

const (
	alice  = "0x00000000000000000000000000000000000a11ce"
	bob    = "0x0000000000000000000000000000000000000b0b"
	market = "0x000000000000000000000000000000000000aa00"
)

var errReverted = errors.New("execution reverted")

// ledger is an in-memory stand-in for the three contracts. Every state
// change is appended to txs.
type ledger struct {
	counter    int64
	owners     map[int64]string
	approved   map[int64]string
	uris       map[int64]string
	listings   map[int64]domain.Listing
	allowances map[string]*big.Int
	balances   map[string]*big.Int

	txs []string

	mintTo      string
	failList    error
	failOwnerOf map[int64]bool

	// staleApprovals mines approve txs without changing state.
	staleApprovals bool
	// rereadErr fails approval reads once an approve tx has been mined.
	rereadErr error
	approveMined bool
}

func newLedger() *ledger {
	return &ledger{
		owners:      map[int64]string{},
		approved:    map[int64]string{},
		uris:        map[int64]string{},
		listings:    map[int64]domain.Listing{},
		allowances:  map[string]*big.Int{},
		balances:    map[string]*big.Int{},
		failOwnerOf: map[int64]bool{},
	}
}

func (l *ledger) session(account string) *Session {
	return &Session{
		Account:     account,
		Marketplace: market,
		Decimals:    2,
		NFT:         &nftView{l: l, sender: account},
		Market:      &marketView{l: l, sender: account},
		Token:       &tokenView{l: l, sender: account},
	}
}

func (l *ledger) submit(tx string) string {
	l.txs = append(l.txs, tx)
	return fmt.Sprintf("0x%064x", len(l.txs))
}

func (l *ledger) allowance(owner, spender string) *big.Int {
	if v, ok := l.allowances[owner+"|"+spender]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// seed puts a token straight into state without recording a transaction.
func (l *ledger) seed(owner, uri string) int64 {
	id := l.counter
	l.counter++
	l.owners[id] = owner
	l.uris[id] = uri
	return id
}

type nftView struct {
	l      *ledger
	sender string
}

func (n *nftView) Mint(_ context.Context, uri string) (*big.Int, string, error) {
	owner := n.sender
	if n.l.mintTo != "" {
		owner = n.l.mintTo
	}
	id := n.l.seed(owner, uri)
	return big.NewInt(id), n.l.submit("mint"), nil
}

func (n *nftView) OwnerOf(_ context.Context, id *big.Int) (string, error) {
	if n.l.failOwnerOf[id.Int64()] {
		return "", errReverted
	}
	owner, ok := n.l.owners[id.Int64()]
	if !ok {
		return "", errReverted
	}
	return owner, nil
}

func (n *nftView) GetApproved(_ context.Context, id *big.Int) (string, error) {
	if n.l.approveMined && n.l.rereadErr != nil {
		return "", n.l.rereadErr
	}
	return n.l.approved[id.Int64()], nil
}

func (n *nftView) Approve(_ context.Context, spender string, id *big.Int) (string, error) {
	if n.l.owners[id.Int64()] != n.sender {
		return "", errReverted
	}
	n.l.approveMined = true
	if !n.l.staleApprovals {
		n.l.approved[id.Int64()] = strings.ToLower(spender)
	}
	return n.l.submit("approve-transfer"), nil
}

func (n *nftView) TokenURI(_ context.Context, id *big.Int) (string, error) {
	uri, ok := n.l.uris[id.Int64()]
	if !ok {
		return "", errReverted
	}
	return uri, nil
}

func (n *nftView) TokenCounter(context.Context) (*big.Int, error) {
	return big.NewInt(n.l.counter), nil
}

type marketView struct {
	l      *ledger
	sender string
}

func (m *marketView) Listing(_ context.Context, id *big.Int) (domain.Listing, error) {
	if l, ok := m.l.listings[id.Int64()]; ok {
		return l, nil
	}
	return domain.Listing{TokenID: id, Price: new(big.Int)}, nil
}

func (m *marketView) List(_ context.Context, id, price *big.Int) (string, error) {
	if m.l.failList != nil {
		return "", m.l.failList
	}
	k := id.Int64()
	if m.l.approved[k] != market || m.l.allowance(m.sender, market).Cmp(price) < 0 {
		return "", errReverted
	}
	m.l.listings[k] = domain.Listing{TokenID: id, Seller: m.sender, Price: new(big.Int).Set(price)}
	m.l.owners[k] = market
	delete(m.l.approved, k)
	return m.l.submit(fmt.Sprintf("list:%d:%s", k, price)), nil
}

func (m *marketView) Buy(_ context.Context, id *big.Int) (string, error) {
	k := id.Int64()
	l, ok := m.l.listings[k]
	if !ok || !l.Active() {
		return "", errReverted
	}
	allowance := m.l.allowance(m.sender, market)
	if allowance.Cmp(l.Price) < 0 {
		return "", errReverted
	}
	m.l.allowances[m.sender+"|"+market] = allowance.Sub(allowance, l.Price)
	m.l.owners[k] = m.sender
	delete(m.l.listings, k)
	return m.l.submit(fmt.Sprintf("buy:%d", k)), nil
}

type tokenView struct {
	l      *ledger
	sender string
}

func (t *tokenView) Allowance(_ context.Context, owner, spender string) (*big.Int, error) {
	if t.l.approveMined && t.l.rereadErr != nil {
		return nil, t.l.rereadErr
	}
	return t.l.allowance(owner, spender), nil
}

func (t *tokenView) Approve(_ context.Context, spender string, amount *big.Int) (string, error) {
	t.l.approveMined = true
	if !t.l.staleApprovals {
		t.l.allowances[t.sender+"|"+spender] = new(big.Int).Set(amount)
	}
	return t.l.submit("approve-allowance:" + amount.String()), nil
}

func (t *tokenView) BalanceOf(_ context.Context, owner string) (*big.Int, error) {
	if v, ok := t.l.balances[owner]; ok {
		return v, nil
	}
	return new(big.Int), nil
}
