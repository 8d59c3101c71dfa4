package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	// ErrUpstream covers pinning and ledger RPC failures.
	ErrUpstream = errors.New("upstream error")
	// ErrResolution means every configured gateway failed.
	ErrResolution            = errors.New("all gateways failed")
	ErrOwnershipMismatch     = errors.New("you are not the owner of the NFT")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotListed             = errors.New("token is not listed")
)
