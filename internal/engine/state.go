// =================================
// File: internal/engine/state.go
// =================================
package engine

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// GlobalMetadata is the singleton sale record: mints, derived authorities and
// cumulative counters. Created once by Initialize, mutated by every trade.
type GlobalMetadata struct {
	Name   string
	Symbol string

	SaleMint    solana.PublicKey
	PaymentMint solana.PublicKey

	// MintAuthority holds sale-token issuance after Initialize; no external
	// key can mint once the handover is done.
	MintAuthority    solana.PublicKey
	PoolAuthority    solana.PublicKey
	FounderAuthority solana.PublicKey

	Deployer solana.PublicKey

	TotalMinted    uint64 // cumulative sale-token base units ever minted
	TotalCollected uint64 // cumulative payment-token base units ever taken in

	Initialized bool
}

// UserState exists per buying user from the first pass purchase or grant on.
// The referral is immutable once recorded.
type UserState struct {
	HasPass     bool
	Referral    solana.PublicKey
	ReferralSet bool
	TotalBought uint64 // payment base units spent on curve buys
	TotalSold   uint64 // sale base units sold back
}

// FoundersPool shares a percentage of every trade among a bounded list of
// founders. Claimed runs parallel to Founders.
type FoundersPool struct {
	Capacity       int
	Founders       []solana.PublicKey
	Claimed        []uint64
	TotalCollected uint64
	Initialized    bool
}

func (p *FoundersPool) indexOf(key solana.PublicKey) int {
	for i, f := range p.Founders {
		if f.Equals(key) {
			return i
		}
	}
	return -1
}

// LockedTokenState is the single-shot vesting grant of one user. The Claimed
// flag is the only guard between the two terminal transitions (early unlock
// and cranker claim); once set the record is dead.
type LockedTokenState struct {
	User       solana.PublicKey
	Amount     uint64 // sale base units held by the vault
	LockDays   uint64
	UnlockTime time.Time
	Claimed    bool
}
