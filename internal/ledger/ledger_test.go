package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLedger(t *testing.T) (*Ledger, solana.PublicKey, solana.PublicKey) {
	t.Helper()

	l := New(solana.NewWallet().PublicKey(), zap.NewNop())
	issuer := solana.NewWallet().PublicKey()
	mint, err := l.CreateMint(issuer, 6)
	require.NoError(t, err)
	return l, issuer, mint
}

func fund(t *testing.T, l *Ledger, issuer, owner, mint solana.PublicKey, amount uint64) {
	t.Helper()

	_, err := l.GetOrCreateAccount(owner, mint)
	require.NoError(t, err)
	err = l.Execute(context.Background(), []solana.PublicKey{issuer}, func(tx *Tx) error {
		return tx.MintTo(mint, owner, amount, issuer)
	})
	require.NoError(t, err)
}

func TestTransferMovesBalance(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	fund(t, l, issuer, alice, mint, 1_000)

	err := l.Execute(context.Background(), []solana.PublicKey{alice}, func(tx *Tx) error {
		return tx.Transfer(alice, bob, mint, 400, alice)
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(600), l.Balance(alice, mint))
	assert.Equal(t, uint64(400), l.Balance(bob, mint))
}

func TestTransferRequiresSignature(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	alice := solana.NewWallet().PublicKey()
	mallory := solana.NewWallet().PublicKey()
	fund(t, l, issuer, alice, mint, 1_000)

	// Mallory signs, but alice's account only moves on alice's authority.
	err := l.Execute(context.Background(), []solana.PublicKey{mallory}, func(tx *Tx) error {
		return tx.Transfer(alice, mallory, mint, 400, mallory)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Claiming alice's authority without her signature fails too.
	err = l.Execute(context.Background(), []solana.PublicKey{mallory}, func(tx *Tx) error {
		return tx.Transfer(alice, mallory, mint, 400, alice)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint64(1_000), l.Balance(alice, mint))
}

func TestDerivedAuthorityTransfersWithoutSignature(t *testing.T) {
	l, issuer, mint := newTestLedger(t)

	vault, err := l.DeriveAuthority([]byte("vault"), []byte("user-1"))
	require.NoError(t, err)
	fund(t, l, issuer, vault, mint, 1_000)

	bob := solana.NewWallet().PublicKey()
	err = l.Execute(context.Background(), nil, func(tx *Tx) error {
		return tx.Transfer(vault, bob, mint, 250, vault)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(250), l.Balance(bob, mint))
}

func TestExecuteRollsBackOnError(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	fund(t, l, issuer, alice, mint, 1_000)

	err := l.Execute(context.Background(), []solana.PublicKey{alice}, func(tx *Tx) error {
		if err := tx.Transfer(alice, bob, mint, 900, alice); err != nil {
			return err
		}
		// Second leg overdraws: the staged first leg must vanish with it.
		return tx.Transfer(alice, bob, mint, 900, alice)
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(1_000), l.Balance(alice, mint))
	assert.Equal(t, uint64(0), l.Balance(bob, mint))
}

func TestBurnShrinksSupply(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	alice := solana.NewWallet().PublicKey()
	fund(t, l, issuer, alice, mint, 1_000)
	require.Equal(t, uint64(1_000), l.Supply(mint))

	err := l.Execute(context.Background(), []solana.PublicKey{alice}, func(tx *Tx) error {
		return tx.Burn(mint, alice, 300, alice)
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(700), l.Balance(alice, mint))
	assert.Equal(t, uint64(700), l.Supply(mint))
}

func TestMintAuthorityHandover(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	alice := solana.NewWallet().PublicKey()
	_, err := l.GetOrCreateAccount(alice, mint)
	require.NoError(t, err)

	programAuth, err := l.DeriveAuthority([]byte("mint_authority"))
	require.NoError(t, err)

	err = l.Execute(context.Background(), []solana.PublicKey{issuer}, func(tx *Tx) error {
		return tx.SetMintAuthority(mint, programAuth, issuer)
	})
	require.NoError(t, err)

	// The old authority can no longer issue.
	err = l.Execute(context.Background(), []solana.PublicKey{issuer}, func(tx *Tx) error {
		return tx.MintTo(mint, alice, 1, issuer)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The derived authority can, without any external signature.
	err = l.Execute(context.Background(), nil, func(tx *Tx) error {
		return tx.MintTo(mint, alice, 1, programAuth)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l.Balance(alice, mint))
}

func TestStagedAuthorityHandoverIsAtomic(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	programAuth, err := l.DeriveAuthority([]byte("mint_authority"))
	require.NoError(t, err)

	err = l.Execute(context.Background(), []solana.PublicKey{issuer}, func(tx *Tx) error {
		if err := tx.SetMintAuthority(mint, programAuth, issuer); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	info, err := l.MintInfo(mint)
	require.NoError(t, err)
	assert.True(t, info.Authority.Equals(issuer), "handover must roll back with the transaction")
}

func TestAccountMintMismatch(t *testing.T) {
	l, issuer, mint := newTestLedger(t)
	otherMint, err := l.CreateMint(issuer, 9)
	require.NoError(t, err)

	alice := solana.NewWallet().PublicKey()
	fund(t, l, issuer, alice, mint, 100)

	// No account exists for (alice, otherMint); transfers out of it fail.
	bob := solana.NewWallet().PublicKey()
	err = l.Execute(context.Background(), []solana.PublicKey{alice}, func(tx *Tx) error {
		return tx.Transfer(alice, bob, otherMint, 10, alice)
	})
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestCreateAccountTwiceFails(t *testing.T) {
	l, _, mint := newTestLedger(t)
	alice := solana.NewWallet().PublicKey()

	_, err := l.CreateAccount(alice, mint)
	require.NoError(t, err)
	_, err = l.CreateAccount(alice, mint)
	assert.ErrorIs(t, err, ErrAccountExists)
}
