// =================================
// File: internal/engine/trade.go
// =================================
package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/ledger"
)

// BuyToken spends paymentAmount of the payment token on the curve and mints
// the quoted sale tokens into the caller's holding account. The payment is
// split in the same transaction: team share (halved with the referral when
// one applies), founders fee, and the liquidity share plus net purchase into
// the program reserve. Returns the minted sale-token base units.
func (e *Engine) BuyToken(ctx context.Context, user solana.PublicKey, paymentAmount uint64, referral *solana.PublicKey) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tradePreflight(paymentAmount); err != nil {
		return 0, fmt.Errorf("buy token: %w", err)
	}
	us, ok := e.users[user]
	if !ok || !us.HasPass {
		return 0, fmt.Errorf("buy token: %w", ErrNoPass)
	}

	split := splitAmount(paymentAmount, e.buyRates())
	minted, err := e.executeBuy(ctx, user, us, split, user, referral)
	if err != nil {
		return 0, fmt.Errorf("buy token: %w", err)
	}

	e.meta.TotalMinted += minted
	e.meta.TotalCollected += paymentAmount
	e.pool.TotalCollected += split.founder
	us.TotalBought += paymentAmount

	e.logger.Info("Curve buy",
		zap.String("user", user.String()),
		zap.Uint64("payment_in", paymentAmount),
		zap.Uint64("minted", minted))
	e.journalOp(ctx, "buy_token", user, user, paymentAmount, minted)
	return minted, nil
}

// SellToken burns saleAmount of the caller's sale tokens and pays out the
// curve value at the pre-burn spot price, net of the sell-side fee split.
// Returns the net payment-token payout to the caller.
func (e *Engine) SellToken(ctx context.Context, user solana.PublicKey, saleAmount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tradePreflight(saleAmount); err != nil {
		return 0, fmt.Errorf("sell token: %w", err)
	}
	us, ok := e.users[user]
	if !ok || !us.HasPass {
		return 0, fmt.Errorf("sell token: %w", ErrNoPass)
	}

	gross, err := e.quoter.SellQuote(e.reserveBalance(), e.ledger.Supply(e.meta.SaleMint), saleAmount)
	if err != nil {
		return 0, fmt.Errorf("sell token: %w", err)
	}
	split := splitAmount(gross, e.sellRates())

	err = e.ledger.Execute(ctx, []solana.PublicKey{user}, func(tx *ledger.Tx) error {
		if err := tx.Burn(e.meta.SaleMint, user, saleAmount, user); err != nil {
			return err
		}
		return e.payoutFromReserve(tx, us, user, split)
	})
	if err != nil {
		return 0, fmt.Errorf("sell token: %w", err)
	}

	e.pool.TotalCollected += split.founder
	us.TotalSold += saleAmount

	e.logger.Info("Curve sell",
		zap.String("user", user.String()),
		zap.Uint64("burned", saleAmount),
		zap.Uint64("payout", split.net))
	e.journalOp(ctx, "sell_token", user, user, saleAmount, split.net)
	return split.net, nil
}

func (e *Engine) tradePreflight(amount uint64) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireFoundersPool(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) reserveBalance() uint64 {
	return e.ledger.Balance(e.meta.PoolAuthority, e.meta.PaymentMint)
}

// executeBuy runs the shared buy leg: fee transfers out of the user's payment
// account, reserve in-flow, and the mint to mintTo's holding account. The
// curve is quoted at the reserve state before any of this transaction's
// transfers land.
func (e *Engine) executeBuy(ctx context.Context, user solana.PublicKey, us *UserState, split feeSplit, mintTo solana.PublicKey, referral *solana.PublicKey) (uint64, error) {
	minted, err := e.quoter.BuyQuote(e.reserveBalance(), e.ledger.Supply(e.meta.SaleMint), split.net)
	if err != nil {
		return 0, err
	}

	pay := e.meta.PaymentMint
	err = e.ledger.Execute(ctx, []solana.PublicKey{user}, func(tx *ledger.Tx) error {
		if recipient, ok := e.referralRecipient(us, user, referral); ok {
			refShare, deployerShare := split.referralCut()
			if err := tx.Transfer(user, recipient, pay, refShare, user); err != nil {
				return err
			}
			if err := tx.Transfer(user, e.meta.Deployer, pay, deployerShare, user); err != nil {
				return err
			}
		} else if err := tx.Transfer(user, e.meta.Deployer, pay, split.team, user); err != nil {
			return err
		}
		if err := tx.Transfer(user, e.meta.FounderAuthority, pay, split.founder, user); err != nil {
			return err
		}
		// Liquidity share and the purchase itself back the reserve together.
		if err := tx.Transfer(user, e.meta.PoolAuthority, pay, split.liquidity+split.net, user); err != nil {
			return err
		}
		return tx.MintTo(e.meta.SaleMint, mintTo, minted, e.meta.MintAuthority)
	})
	if err != nil {
		return 0, err
	}
	return minted, nil
}

// payoutFromReserve distributes one sell-side split out of the program
// reserve under the pool authority: team (halved with a recorded referral),
// founders fee, and the net to the beneficiary. The liquidity share simply
// stays in the reserve.
func (e *Engine) payoutFromReserve(tx *ledger.Tx, us *UserState, beneficiary solana.PublicKey, split feeSplit) error {
	pay := e.meta.PaymentMint
	poolAuth := e.meta.PoolAuthority

	if us != nil && us.ReferralSet {
		refShare, deployerShare := split.referralCut()
		if err := tx.Transfer(poolAuth, us.Referral, pay, refShare, poolAuth); err != nil {
			return err
		}
		if err := tx.Transfer(poolAuth, e.meta.Deployer, pay, deployerShare, poolAuth); err != nil {
			return err
		}
	} else if err := tx.Transfer(poolAuth, e.meta.Deployer, pay, split.team, poolAuth); err != nil {
		return err
	}
	if err := tx.Transfer(poolAuth, e.meta.FounderAuthority, pay, split.founder, poolAuth); err != nil {
		return err
	}
	return tx.Transfer(poolAuth, beneficiary, pay, split.net, poolAuth)
}
