// =================================
// File: internal/engine/vault.go
// =================================
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/ledger"
)

// InitializeUserVault creates the caller's vault: a derived authority and a
// dedicated sale-token holding account owned by it. Tokens in the vault can
// only move through vault operations, never on the user's own signature.
// A second initialization for the same user fails.
func (e *Engine) InitializeUserVault(ctx context.Context, user solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return fmt.Errorf("initialize vault: %w", err)
	}
	if _, ok := e.vaults[user]; ok {
		return fmt.Errorf("initialize vault: %w", ErrAlreadyInitialized)
	}

	vaultAuth, err := e.ledger.DeriveAuthority(vaultSeeds(user)...)
	if err != nil {
		return fmt.Errorf("initialize vault: %w", err)
	}
	if _, err := e.ledger.CreateAccount(vaultAuth, e.meta.SaleMint); err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			return fmt.Errorf("initialize vault: %w", ErrAlreadyInitialized)
		}
		return fmt.Errorf("initialize vault: %w", err)
	}
	e.vaults[user] = vaultAuth

	e.logger.Info("User vault initialized",
		zap.String("user", user.String()),
		zap.String("vault_authority", vaultAuth.String()))
	e.journalOp(ctx, "initialize_user_vault", user, user, 0, 0)
	return nil
}

// BuyAndLockToken performs a curve buy whose minted tokens land in the
// caller's vault instead of their own account, locked for lockDays. The lock
// is a single-shot vesting grant: one LockedTokenState per user, ever.
func (e *Engine) BuyAndLockToken(ctx context.Context, user solana.PublicKey, paymentAmount, lockDays uint64, referral *solana.PublicKey) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tradePreflight(paymentAmount); err != nil {
		return 0, fmt.Errorf("buy and lock: %w", err)
	}
	vaultAuth, ok := e.vaults[user]
	if !ok {
		return 0, fmt.Errorf("buy and lock: %w", ErrVaultNotInitialized)
	}
	if _, ok := e.locks[user]; ok {
		return 0, fmt.Errorf("buy and lock: %w", ErrAlreadyInitialized)
	}
	if !e.cfg.LockDayAllowed(lockDays) {
		return 0, fmt.Errorf("buy and lock: %d days: %w", lockDays, ErrInvalidLockPeriod)
	}

	split := splitAmount(paymentAmount, lockRates(lockDays))
	minted, err := e.executeBuy(ctx, user, e.users[user], split, vaultAuth, referral)
	if err != nil {
		return 0, fmt.Errorf("buy and lock: %w", err)
	}

	e.locks[user] = &LockedTokenState{
		User:       user,
		Amount:     minted,
		LockDays:   lockDays,
		UnlockTime: e.now().Add(time.Duration(lockDays) * 24 * time.Hour),
	}
	e.meta.TotalMinted += minted
	e.meta.TotalCollected += paymentAmount
	e.pool.TotalCollected += split.founder

	e.logger.Info("Tokens bought and locked",
		zap.String("user", user.String()),
		zap.Uint64("payment_in", paymentAmount),
		zap.Uint64("locked", minted),
		zap.Uint64("lock_days", lockDays))
	e.journalOp(ctx, "buy_and_lock_token", user, user, paymentAmount, minted)
	return minted, nil
}

// EarlyUnlockTokens lets the locked user exit before maturity. The vault's
// tokens are burned and the sell-side payout is applied with the early-exit
// penalty added to the team share, so the payout is strictly below what a
// matured claim of the same principal yields.
func (e *Engine) EarlyUnlockTokens(ctx context.Context, user solana.PublicKey) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, vaultAuth, err := e.lockPreflight(user)
	if err != nil {
		return 0, fmt.Errorf("early unlock: %w", err)
	}

	rates := lockRates(lock.LockDays)
	rates.teamBps += e.cfg.EarlyUnlockPenaltyBps

	payout, err := e.settleLock(ctx, user, user, lock, vaultAuth, rates, 0)
	if err != nil {
		return 0, fmt.Errorf("early unlock: %w", err)
	}

	e.logger.Info("Early unlock settled",
		zap.String("user", user.String()),
		zap.Uint64("burned", lock.Amount),
		zap.Uint64("payout", payout))
	e.journalOp(ctx, "early_unlock_tokens", user, user, lock.Amount, payout)
	return payout, nil
}

// ClaimLockedTokens settles one matured lock. Any caller may crank it: the
// locked user receives the net payout, the caller a fixed reward from the
// reserve. Exactly one competing cranker succeeds; the rest fail with
// AlreadyClaimed and no side effects.
func (e *Engine) ClaimLockedTokens(ctx context.Context, cranker, user solana.PublicKey) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, vaultAuth, err := e.lockPreflight(user)
	if err != nil {
		return 0, fmt.Errorf("claim locked: %w", err)
	}
	if e.now().Before(lock.UnlockTime) {
		return 0, fmt.Errorf("claim locked: %w", ErrNotYetUnlocked)
	}

	payout, err := e.settleLock(ctx, cranker, user, lock, vaultAuth, lockRates(lock.LockDays), e.cfg.CrankerReward)
	if err != nil {
		return 0, fmt.Errorf("claim locked: %w", err)
	}

	e.logger.Info("Matured lock claimed",
		zap.String("user", user.String()),
		zap.String("cranker", cranker.String()),
		zap.Uint64("burned", lock.Amount),
		zap.Uint64("payout", payout))
	e.journalOp(ctx, "claim_locked_tokens", cranker, user, lock.Amount, payout)
	return payout, nil
}

func (e *Engine) lockPreflight(user solana.PublicKey) (*LockedTokenState, solana.PublicKey, error) {
	if err := e.requireInitialized(); err != nil {
		return nil, solana.PublicKey{}, err
	}
	if err := e.requireFoundersPool(); err != nil {
		return nil, solana.PublicKey{}, err
	}
	lock, ok := e.locks[user]
	if !ok {
		return nil, solana.PublicKey{}, ErrLockNotFound
	}
	if lock.Claimed {
		return nil, solana.PublicKey{}, ErrAlreadyClaimed
	}
	vaultAuth, ok := e.vaults[user]
	if !ok {
		return nil, solana.PublicKey{}, ErrVaultNotInitialized
	}
	return lock, vaultAuth, nil
}

// settleLock burns the vault's locked tokens and distributes the sell-side
// payout, plus an optional cranker reward capped by what the reserve still
// holds after the payout. Marks the lock claimed only after the ledger
// transaction commits.
func (e *Engine) settleLock(ctx context.Context, caller, user solana.PublicKey, lock *LockedTokenState, vaultAuth solana.PublicKey, rates feeRates, reward uint64) (uint64, error) {
	reserve := e.reserveBalance()
	gross, err := e.quoter.SellQuote(reserve, e.ledger.Supply(e.meta.SaleMint), lock.Amount)
	if err != nil {
		return 0, err
	}
	split := splitAmount(gross, rates)

	// Reward comes out of the reserve remainder; never let it starve the
	// user payout.
	paidOut := split.team + split.founder + split.net
	if reserve < paidOut {
		return 0, fmt.Errorf("reserve %d cannot cover payout %d: %w", reserve, paidOut, ErrInsufficientFunds)
	}
	if remainder := reserve - paidOut; reward > remainder {
		reward = remainder
	}

	us := e.users[user]
	err = e.ledger.Execute(ctx, []solana.PublicKey{caller}, func(tx *ledger.Tx) error {
		if err := tx.Burn(e.meta.SaleMint, vaultAuth, lock.Amount, vaultAuth); err != nil {
			return err
		}
		if err := e.payoutFromReserve(tx, us, user, split); err != nil {
			return err
		}
		if reward > 0 && !caller.Equals(user) {
			return tx.Transfer(e.meta.PoolAuthority, caller, e.meta.PaymentMint, reward, e.meta.PoolAuthority)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	lock.Claimed = true
	e.pool.TotalCollected += split.founder
	return split.net, nil
}
