// =================================
// File: internal/engine/errors.go
// =================================
package engine

import (
	"errors"

	"github.com/uponlylabs/uponly-engine/internal/ledger"
)

// Operation failures wrap exactly one of these sentinels; callers classify
// with errors.Is. Ledger-level failures surface through the same set.
var (
	ErrNotInitialized     = errors.New("engine is not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidAccount     = ledger.ErrInvalidAccount
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds

	ErrNoPass          = errors.New("user does not have a pass")
	ErrAlreadyHasPass  = errors.New("user already has a pass")
	ErrInvalidReferral = errors.New("invalid referral")

	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidLockPeriod = errors.New("invalid lock period")

	ErrVaultNotInitialized = errors.New("user vault is not initialized")
	ErrLockNotFound        = errors.New("no locked tokens for user")
	ErrNotYetUnlocked      = errors.New("lock period has not ended")
	ErrAlreadyClaimed      = errors.New("locked tokens already claimed")

	ErrCapacityExceeded = errors.New("founder list is full")
	ErrDuplicateFounder = errors.New("founder already listed")
	ErrNotFounder       = errors.New("caller is not a listed founder")
	ErrNothingToClaim   = errors.New("nothing to claim")
)
