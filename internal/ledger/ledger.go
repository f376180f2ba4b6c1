// =================================
// File: internal/ledger/ledger.go
// =================================
// Package ledger models the token ledger the engine settles against:
// fungible mints, holding accounts keyed by (owner, mint), and atomic
// multi-account transactions authenticated by the owner's signature or a
// program-derived authority.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	ErrUnknownMint       = errors.New("unknown mint")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidAccount    = errors.New("invalid account")
)

// Mint is a fungible token kind. Supply tracks cumulative minted minus burned.
type Mint struct {
	Address   solana.PublicKey
	Decimals  uint8
	Authority solana.PublicKey
	Supply    uint64
}

// Account is a holding account for one (owner, mint) pair. Its address is the
// associated token address, so lookups by owner and mint are deterministic.
type Account struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Balance uint64
}

// Ledger is the in-process account provider. All mutation goes through
// Execute, which gives every operation single-writer, all-or-nothing
// semantics: either the whole staged transaction commits or none of it does.
type Ledger struct {
	mu        sync.RWMutex
	programID solana.PublicKey
	mints     map[solana.PublicKey]*Mint
	accounts  map[solana.PublicKey]*Account
	derived   map[solana.PublicKey]struct{}
	logger    *zap.Logger
}

// New creates an empty ledger scoped to the given program identity. Derived
// authorities are computed against this identity and can never be presented
// as external signers.
func New(programID solana.PublicKey, log *zap.Logger) *Ledger {
	return &Ledger{
		programID: programID,
		mints:     make(map[solana.PublicKey]*Mint),
		accounts:  make(map[solana.PublicKey]*Account),
		derived:   make(map[solana.PublicKey]struct{}),
		logger:    log.Named("ledger"),
	}
}

// CreateMint registers a new mint under the given authority.
func (l *Ledger) CreateMint(authority solana.PublicKey, decimals uint8) (solana.PublicKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr := solana.NewWallet().PublicKey()
	if _, ok := l.mints[addr]; ok {
		return solana.PublicKey{}, fmt.Errorf("mint address collision at %s", addr)
	}
	l.mints[addr] = &Mint{
		Address:   addr,
		Decimals:  decimals,
		Authority: authority,
	}
	l.logger.Debug("Mint created",
		zap.String("mint", addr.String()),
		zap.Uint8("decimals", decimals))
	return addr, nil
}

// DeriveAuthority computes the program-scoped authority for the given seeds
// and registers it as a key-less identity the program may sign for.
func (l *Ledger) DeriveAuthority(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, l.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive authority: %w", err)
	}

	l.mu.Lock()
	l.derived[addr] = struct{}{}
	l.mu.Unlock()
	return addr, nil
}

// AccountAddress returns the deterministic holding-account address for an
// (owner, mint) pair.
func AccountAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive account address: %w", err)
	}
	return addr, nil
}

// CreateAccount creates an empty holding account for (owner, mint).
func (l *Ledger) CreateAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createAccountLocked(owner, mint)
}

// GetOrCreateAccount returns the holding account address for (owner, mint),
// creating it when missing.
func (l *Ledger) GetOrCreateAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr, err := AccountAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if _, ok := l.accounts[addr]; ok {
		return addr, nil
	}
	return l.createAccountLocked(owner, mint)
}

func (l *Ledger) createAccountLocked(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if _, ok := l.mints[mint]; !ok {
		return solana.PublicKey{}, fmt.Errorf("create account for mint %s: %w", mint, ErrUnknownMint)
	}
	addr, err := AccountAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if _, ok := l.accounts[addr]; ok {
		return solana.PublicKey{}, fmt.Errorf("account %s: %w", addr, ErrAccountExists)
	}
	l.accounts[addr] = &Account{
		Address: addr,
		Owner:   owner,
		Mint:    mint,
	}
	return addr, nil
}

// Balance returns the committed balance of (owner, mint). Missing accounts
// read as zero.
func (l *Ledger) Balance(owner, mint solana.PublicKey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	addr, err := AccountAddress(owner, mint)
	if err != nil {
		return 0
	}
	acc, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return acc.Balance
}

// Supply returns the cumulative outstanding supply of a mint.
func (l *Ledger) Supply(mint solana.PublicKey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.mints[mint]
	if !ok {
		return 0
	}
	return m.Supply
}

// MintInfo returns a copy of the mint record.
func (l *Ledger) MintInfo(mint solana.PublicKey) (Mint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.mints[mint]
	if !ok {
		return Mint{}, fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	return *m, nil
}

// Execute runs fn against a staged transaction holding the ledger's write
// lock. If fn returns nil the staged mutations commit as one unit; any error
// discards them all. The signer set authenticates account-owner authorities
// for the duration of the transaction.
func (l *Ledger) Execute(ctx context.Context, signers []solana.PublicKey, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := newTx(l, signers)
	if err := fn(tx); err != nil {
		l.logger.Debug("Transaction rolled back", zap.Error(err))
		return err
	}
	tx.commit()
	return nil
}

func (l *Ledger) isDerivedLocked(key solana.PublicKey) bool {
	_, ok := l.derived[key]
	return ok
}
