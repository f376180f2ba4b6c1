// =================================
// File: internal/engine/pass.go
// =================================
package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/ledger"
)

// GivePass marks a user as pass holder with no payment. Deployer only.
func (e *Engine) GivePass(ctx context.Context, caller, user solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return fmt.Errorf("give pass: %w", err)
	}
	if !caller.Equals(e.meta.Deployer) {
		return fmt.Errorf("give pass: %w", ErrUnauthorized)
	}

	us := e.userState(user)
	if us.HasPass {
		return fmt.Errorf("give pass: %w", ErrAlreadyHasPass)
	}
	us.HasPass = true

	e.logger.Info("Pass granted", zap.String("user", user.String()))
	e.journalOp(ctx, "give_pass", caller, user, 0, 0)
	return nil
}

// BuyPass sells the one-time pass at the fixed configured price. With a
// referral the price splits 50/50 between referral and deployer, and the
// referral is permanently recorded on the buyer's state; without one the
// deployer keeps the full price.
func (e *Engine) BuyPass(ctx context.Context, user solana.PublicKey, referral *solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return fmt.Errorf("buy pass: %w", err)
	}

	us := e.userState(user)
	if us.HasPass {
		return fmt.Errorf("buy pass: %w", ErrAlreadyHasPass)
	}

	referralRecorded := false
	if referral != nil && !us.ReferralSet {
		if referral.Equals(user) {
			return fmt.Errorf("buy pass: self-referral: %w", ErrInvalidReferral)
		}
		us.Referral = *referral
		us.ReferralSet = true
		referralRecorded = true
	}

	price := e.cfg.PassPrice
	err := e.ledger.Execute(ctx, []solana.PublicKey{user}, func(tx *ledger.Tx) error {
		if us.ReferralSet {
			referralShare := price / 2
			if err := tx.Transfer(user, us.Referral, e.meta.PaymentMint, referralShare, user); err != nil {
				return err
			}
			return tx.Transfer(user, e.meta.Deployer, e.meta.PaymentMint, price-referralShare, user)
		}
		return tx.Transfer(user, e.meta.Deployer, e.meta.PaymentMint, price, user)
	})
	if err != nil {
		// A referral recorded by this call must not survive a failed purchase.
		if referralRecorded {
			us.Referral = solana.PublicKey{}
			us.ReferralSet = false
		}
		return fmt.Errorf("buy pass: %w", err)
	}

	us.HasPass = true
	e.logger.Info("Pass purchased",
		zap.String("user", user.String()),
		zap.Uint64("price", price),
		zap.Bool("referred", us.ReferralSet))
	e.journalOp(ctx, "buy_pass", user, user, price, 0)
	return nil
}
