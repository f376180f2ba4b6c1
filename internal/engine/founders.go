// =================================
// File: internal/engine/founders.go
// =================================
package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/ledger"
)

// AddFounder appends an identity to the founders list. Deployer only, bounded
// by the configured capacity, duplicates rejected.
func (e *Engine) AddFounder(ctx context.Context, caller, founder solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return fmt.Errorf("add founder: %w", err)
	}
	if !caller.Equals(e.meta.Deployer) {
		return fmt.Errorf("add founder: %w", ErrUnauthorized)
	}
	if err := e.requireFoundersPool(); err != nil {
		return fmt.Errorf("add founder: %w", err)
	}
	if len(e.pool.Founders) >= e.pool.Capacity {
		return fmt.Errorf("add founder: %w", ErrCapacityExceeded)
	}
	if e.pool.indexOf(founder) >= 0 {
		return fmt.Errorf("add founder: %s: %w", founder, ErrDuplicateFounder)
	}

	e.pool.Founders = append(e.pool.Founders, founder)
	e.pool.Claimed = append(e.pool.Claimed, 0)

	e.logger.Info("Founder added",
		zap.String("founder", founder.String()),
		zap.Int("count", len(e.pool.Founders)))
	e.journalOp(ctx, "add_founder", caller, founder, 0, 0)
	return nil
}

// ClaimFounderShare pays the calling founder the delta between their
// proportional entitlement (pool total collected divided by capacity, not by
// current membership) and what they already claimed.
func (e *Engine) ClaimFounderShare(ctx context.Context, founder solana.PublicKey) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return 0, fmt.Errorf("claim founder share: %w", err)
	}
	if err := e.requireFoundersPool(); err != nil {
		return 0, fmt.Errorf("claim founder share: %w", err)
	}

	idx := e.pool.indexOf(founder)
	if idx < 0 {
		return 0, fmt.Errorf("claim founder share: %w", ErrNotFounder)
	}

	perFounder := e.pool.TotalCollected / uint64(e.pool.Capacity)
	already := e.pool.Claimed[idx]
	if perFounder <= already {
		return 0, fmt.Errorf("claim founder share: %w", ErrNothingToClaim)
	}
	claimable := perFounder - already

	err := e.ledger.Execute(ctx, []solana.PublicKey{founder}, func(tx *ledger.Tx) error {
		return tx.Transfer(e.meta.FounderAuthority, founder, e.meta.PaymentMint, claimable, e.meta.FounderAuthority)
	})
	if err != nil {
		return 0, fmt.Errorf("claim founder share: %w", err)
	}

	e.pool.Claimed[idx] = perFounder
	e.logger.Info("Founder share claimed",
		zap.String("founder", founder.String()),
		zap.Uint64("amount", claimable))
	e.journalOp(ctx, "claim_founder_share", founder, founder, 0, claimable)
	return claimable, nil
}
