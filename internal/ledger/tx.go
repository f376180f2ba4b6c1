// =================================
// File: internal/ledger/tx.go
// =================================
package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Tx stages balance and supply mutations for one atomic operation. Nothing
// touches committed state until commit; discarding the Tx discards every
// staged write.
type Tx struct {
	ledger   *Ledger
	signers  map[solana.PublicKey]struct{}
	balances map[solana.PublicKey]uint64 // staged balance by account address
	supplies map[solana.PublicKey]uint64 // staged supply by mint address
	created  []*Account
	mintAuth map[solana.PublicKey]solana.PublicKey // staged authority handover
}

func newTx(l *Ledger, signers []solana.PublicKey) *Tx {
	set := make(map[solana.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	return &Tx{
		ledger:   l,
		signers:  set,
		balances: make(map[solana.PublicKey]uint64),
		supplies: make(map[solana.PublicKey]uint64),
		mintAuth: make(map[solana.PublicKey]solana.PublicKey),
	}
}

// authorize checks that authority may act for the given account owner:
// it must be the owner itself, presented either as a transaction signer or as
// a program-derived authority.
func (tx *Tx) authorize(owner, authority solana.PublicKey) error {
	if !authority.Equals(owner) {
		return fmt.Errorf("authority %s does not own source account: %w", authority, ErrUnauthorized)
	}
	if _, signed := tx.signers[authority]; signed {
		return nil
	}
	if tx.ledger.isDerivedLocked(authority) {
		return nil
	}
	return fmt.Errorf("authority %s neither signed nor program-derived: %w", authority, ErrUnauthorized)
}

func (tx *Tx) account(owner, mint solana.PublicKey) (*Account, error) {
	addr, err := AccountAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	acc, ok := tx.ledger.accounts[addr]
	if !ok {
		for _, c := range tx.created {
			if c.Address.Equals(addr) {
				return c, nil
			}
		}
		return nil, fmt.Errorf("account for owner %s mint %s: %w", owner, mint, ErrUnknownAccount)
	}
	if !acc.Mint.Equals(mint) || !acc.Owner.Equals(owner) {
		return nil, fmt.Errorf("account %s owner/mint mismatch: %w", addr, ErrInvalidAccount)
	}
	return acc, nil
}

func (tx *Tx) getOrCreate(owner, mint solana.PublicKey) (*Account, error) {
	acc, err := tx.account(owner, mint)
	if err == nil {
		return acc, nil
	}
	if _, ok := tx.ledger.mints[mint]; !ok {
		return nil, fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	addr, err := AccountAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	created := &Account{Address: addr, Owner: owner, Mint: mint}
	tx.created = append(tx.created, created)
	return created, nil
}

func (tx *Tx) balanceOf(acc *Account) uint64 {
	if staged, ok := tx.balances[acc.Address]; ok {
		return staged
	}
	return acc.Balance
}

func (tx *Tx) supplyOf(mint *Mint) uint64 {
	if staged, ok := tx.supplies[mint.Address]; ok {
		return staged
	}
	return mint.Supply
}

// Balance reads the staged-or-committed balance of (owner, mint) inside the
// transaction.
func (tx *Tx) Balance(owner, mint solana.PublicKey) uint64 {
	acc, err := tx.account(owner, mint)
	if err != nil {
		return 0
	}
	return tx.balanceOf(acc)
}

// Supply reads the staged-or-committed supply of a mint inside the transaction.
func (tx *Tx) Supply(mint solana.PublicKey) uint64 {
	m, ok := tx.ledger.mints[mint]
	if !ok {
		return 0
	}
	return tx.supplyOf(m)
}

// Transfer moves amount between the holding accounts of two owners.
// A zero amount is a no-op, so bps splits that floor to nothing stay legal.
func (tx *Tx) Transfer(fromOwner, toOwner, mint solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	if amount == 0 {
		return nil
	}
	from, err := tx.account(fromOwner, mint)
	if err != nil {
		return err
	}
	if err := tx.authorize(from.Owner, authority); err != nil {
		return err
	}
	to, err := tx.getOrCreate(toOwner, mint)
	if err != nil {
		return err
	}

	fromBal := tx.balanceOf(from)
	if fromBal < amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", amount, from.Address, fromBal, ErrInsufficientFunds)
	}
	tx.balances[from.Address] = fromBal - amount
	tx.balances[to.Address] = tx.balanceOf(to) + amount
	return nil
}

// MintTo issues new supply into an owner's holding account. Only the mint's
// current authority may issue.
func (tx *Tx) MintTo(mint, toOwner solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	m, ok := tx.ledger.mints[mint]
	if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	current := m.Authority
	if staged, ok := tx.mintAuth[mint]; ok {
		current = staged
	}
	if !authority.Equals(current) {
		return fmt.Errorf("mint authority mismatch for %s: %w", mint, ErrUnauthorized)
	}
	if _, signed := tx.signers[authority]; !signed && !tx.ledger.isDerivedLocked(authority) {
		return fmt.Errorf("mint authority %s neither signed nor program-derived: %w", authority, ErrUnauthorized)
	}
	to, err := tx.getOrCreate(toOwner, mint)
	if err != nil {
		return err
	}
	tx.balances[to.Address] = tx.balanceOf(to) + amount
	tx.supplies[mint] = tx.supplyOf(m) + amount
	return nil
}

// Burn destroys amount from an owner's holding account and shrinks supply.
func (tx *Tx) Burn(mint, fromOwner solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	m, ok := tx.ledger.mints[mint]
	if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	from, err := tx.account(fromOwner, mint)
	if err != nil {
		return err
	}
	if err := tx.authorize(from.Owner, authority); err != nil {
		return err
	}
	fromBal := tx.balanceOf(from)
	if fromBal < amount {
		return fmt.Errorf("burn %d from %s (balance %d): %w", amount, from.Address, fromBal, ErrInsufficientFunds)
	}
	supply := tx.supplyOf(m)
	if supply < amount {
		return fmt.Errorf("burn %d exceeds supply %d of %s: %w", amount, supply, mint, ErrInvalidAccount)
	}
	tx.balances[from.Address] = fromBal - amount
	tx.supplies[mint] = supply - amount
	return nil
}

// SetMintAuthority hands a mint's issuance right to a new authority. Only the
// current authority may hand it over.
func (tx *Tx) SetMintAuthority(mint, newAuthority solana.PublicKey, authority solana.PublicKey) error {
	m, ok := tx.ledger.mints[mint]
	if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	current := m.Authority
	if staged, ok := tx.mintAuth[mint]; ok {
		current = staged
	}
	if !authority.Equals(current) {
		return fmt.Errorf("set authority on %s: %w", mint, ErrUnauthorized)
	}
	if _, signed := tx.signers[authority]; !signed && !tx.ledger.isDerivedLocked(authority) {
		return fmt.Errorf("set authority on %s: %w", mint, ErrUnauthorized)
	}
	tx.mintAuth[mint] = newAuthority
	return nil
}

func (tx *Tx) commit() {
	for _, acc := range tx.created {
		tx.ledger.accounts[acc.Address] = acc
	}
	for addr, bal := range tx.balances {
		tx.ledger.accounts[addr].Balance = bal
	}
	for mint, supply := range tx.supplies {
		tx.ledger.mints[mint].Supply = supply
	}
	for mint, auth := range tx.mintAuth {
		tx.ledger.mints[mint].Authority = auth
	}
}
