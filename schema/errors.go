package schema

import (
	"errors"
)

var (
	ErrNotExist     = errors.New("not_exist_record")
	ErrNotImplement = errors.New("method not implement")

	// access control
	ErrUnauthorized = errors.New("unauthorized")

	// registry
	ErrDuplicateDomain = errors.New("duplicate_domain")
	ErrInvalidDomain   = errors.New("invalid_domain")
	ErrUnknownToken    = errors.New("unknown_token")
	ErrInvalidRoyalty  = errors.New("invalid_royalty_bps")
	ErrNotReceiver     = errors.New("erc721_receiver_rejected")

	// marketplace
	ErrUnknownListing      = errors.New("unknown_listing")
	ErrListingInactive     = errors.New("listing_inactive")
	ErrNotSeller           = errors.New("not_seller")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInsufficientPayment = errors.New("insufficient_payment")
	ErrExcessPayment       = errors.New("excess_payment")
	ErrInvalidFee          = errors.New("invalid_fee_bps")

	// splitter
	ErrAlreadyInitialized = errors.New("already_initialized")
	ErrNotInitialized     = errors.New("not_initialized")
	ErrInvalidSplit       = errors.New("invalid_split_bps")

	// asset movement
	ErrTransferFailed        = errors.New("transfer_failed")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrInsufficientAllowance = errors.New("insufficient_allowance")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrZeroAddress           = errors.New("zero_address")

	// execution
	ErrReentrantCall = errors.New("reentrant_call")
	ErrNoCode        = errors.New("no_contract_code")
	ErrUnknownKind   = errors.New("unknown_contract_kind")
)
