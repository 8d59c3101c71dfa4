package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/domain"
)

type Action string

const (
	ActionMint             Action = "mint"
	ActionApproveTransfer  Action = "approve-transfer"
	ActionApproveAllowance Action = "approve-allowance"
	ActionList             Action = "list"
	ActionBuy              Action = "buy"
)

type Step struct {
	Action  Action `json:"action"`
	Skipped bool   `json:"skipped"`
	TxHash  string `json:"txHash,omitempty"`
}

type Result struct {
	TokenID *big.Int `json:"tokenId"`
	Price   *big.Int `json:"price"`
	Steps   []Step   `json:"steps"`
}

// Transactions returns the steps that actually submitted a transaction.
func (r *Result) Transactions() []Step {
	var out []Step
	for _, s := range r.Steps {
		if !s.Skipped {
			out = append(out, s)
		}
	}
	return out
}

type ProgressFunc func(Step)

// Orchestrator runs the marketplace workflows one step at a time. A step is
// submitted only after the previous one is mined.
type Orchestrator struct {
	session  *Session
	index    ListingIndex
	resolver MetadataResolver
	logger   *zap.Logger
	progress ProgressFunc
}

func New(s *Session, index ListingIndex, resolver MetadataResolver, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		session:  s,
		index:    index,
		resolver: resolver,
		logger:   logger,
		progress: func(Step) {},
	}
}

func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	if fn != nil {
		o.progress = fn
	}
}

func (o *Orchestrator) record(res *Result, st Step) {
	res.Steps = append(res.Steps, st)
	o.logger.Info("step done",
		zap.String("action", string(st.Action)),
		zap.Bool("skipped", st.Skipped),
		zap.String("tx", st.TxHash),
	)
	o.progress(st)
}

// MintAndList mints uri, then approves and lists the new token at price.
// Completed steps are not rolled back when a later one fails.
func (o *Orchestrator) MintAndList(ctx context.Context, uri, price string) (*Result, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%w: token uri is required", domain.ErrValidation)
	}
	amount, err := ParsePrice(price, o.session.Decimals)
	if err != nil {
		return nil, err
	}

	res := &Result{Price: amount}
	id, hash, err := o.session.NFT.Mint(ctx, uri)
	if err != nil {
		return res, fmt.Errorf("mint: %w", err)
	}
	res.TokenID = id
	o.record(res, Step{Action: ActionMint, TxHash: hash})

	return res, o.approveAndList(ctx, res)
}

// ListExisting lists a token the caller already owns.
func (o *Orchestrator) ListExisting(ctx context.Context, id *big.Int, price string) (*Result, error) {
	if id == nil || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: token id is required", domain.ErrValidation)
	}
	amount, err := ParsePrice(price, o.session.Decimals)
	if err != nil {
		return nil, err
	}
	res := &Result{TokenID: id, Price: amount}
	return res, o.approveAndList(ctx, res)
}

func (o *Orchestrator) approveAndList(ctx context.Context, res *Result) error {
	s := o.session

	owner, err := s.NFT.OwnerOf(ctx, res.TokenID)
	if err != nil {
		return fmt.Errorf("ownerOf %s: %w", res.TokenID, err)
	}
	if !sameAddress(owner, s.Account) {
		return fmt.Errorf("%w: token %s is owned by %s", domain.ErrOwnershipMismatch, res.TokenID, owner)
	}

	if err := o.ensureTransferApproval(ctx, res); err != nil {
		return err
	}
	if err := o.ensureAllowance(ctx, res, res.Price); err != nil {
		return err
	}

	hash, err := s.Market.List(ctx, res.TokenID, res.Price)
	if err != nil {
		return fmt.Errorf("listNFT: %w", err)
	}
	o.record(res, Step{Action: ActionList, TxHash: hash})
	return nil
}

func (o *Orchestrator) ensureTransferApproval(ctx context.Context, res *Result) error {
	s := o.session
	approved, err := s.NFT.GetApproved(ctx, res.TokenID)
	if err != nil {
		return fmt.Errorf("getApproved %s: %w", res.TokenID, err)
	}
	if sameAddress(approved, s.Marketplace) {
		o.record(res, Step{Action: ActionApproveTransfer, Skipped: true})
		return nil
	}

	hash, err := s.NFT.Approve(ctx, s.Marketplace, res.TokenID)
	if err != nil {
		return fmt.Errorf("approve transfer: %w", err)
	}
	// The tx is mined at this point, so it is reported even if the re-read fails.
	o.record(res, Step{Action: ActionApproveTransfer, TxHash: hash})

	approved, err = s.NFT.GetApproved(ctx, res.TokenID)
	if err != nil {
		return fmt.Errorf("getApproved %s: %w", res.TokenID, err)
	}
	if !sameAddress(approved, s.Marketplace) {
		return fmt.Errorf("%w: marketplace approval for token %s not visible after %s", domain.ErrUpstream, res.TokenID, hash)
	}
	return nil
}

// ensureAllowance approves exactly amount when the current allowance is short.
func (o *Orchestrator) ensureAllowance(ctx context.Context, res *Result, amount *big.Int) error {
	s := o.session
	allowance, err := s.Token.Allowance(ctx, s.Account, s.Marketplace)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		o.record(res, Step{Action: ActionApproveAllowance, Skipped: true})
		return nil
	}

	hash, err := s.Token.Approve(ctx, s.Marketplace, amount)
	if err != nil {
		return fmt.Errorf("approve allowance: %w", err)
	}
	o.record(res, Step{Action: ActionApproveAllowance, TxHash: hash})

	allowance, err = s.Token.Allowance(ctx, s.Account, s.Marketplace)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s on tx %s", domain.ErrInsufficientAllowance, allowance, amount, hash)
	}
	return nil
}

// Buy pays for a listed token through the payment token allowance.
// The purchase call carries no value.
func (o *Orchestrator) Buy(ctx context.Context, id *big.Int) (*Result, error) {
	if id == nil || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: token id is required", domain.ErrValidation)
	}
	s := o.session

	l, err := s.Market.Listing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listings %s: %w", id, err)
	}
	if !l.Active() {
		return nil, fmt.Errorf("%w: token %s", domain.ErrNotListed, id)
	}

	res := &Result{TokenID: id, Price: l.Price}
	if err := o.ensureAllowance(ctx, res, l.Price); err != nil {
		return res, err
	}

	hash, err := s.Market.Buy(ctx, id)
	if err != nil {
		return res, fmt.Errorf("buyNFT: %w", err)
	}
	o.record(res, Step{Action: ActionBuy, TxHash: hash})
	return res, nil
}

func (o *Orchestrator) Balance(ctx context.Context, account string) (string, error) {
	if account == "" {
		account = o.session.Account
	}
	v, err := o.session.Token.BalanceOf(ctx, account)
	if err != nil {
		return "", fmt.Errorf("balanceOf: %w", err)
	}
	return FormatUnits(v, o.session.Decimals), nil
}
