// =================================
// File: internal/engine/engine.go
// =================================
// Package engine implements the token-sale and vesting state machine: the
// bonding-curve exchange, the pass gate, the founders pool and the per-user
// locked vaults. Every operation runs as one atomic ledger transaction under
// the engine mutex, so concurrent callers against the same record serialize
// and the loser observes the record's final state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/config"
	"github.com/uponlylabs/uponly-engine/internal/curve"
	"github.com/uponlylabs/uponly-engine/internal/ledger"
	"github.com/uponlylabs/uponly-engine/internal/storage"
	"github.com/uponlylabs/uponly-engine/internal/storage/models"
)

// Derived-authority seeds. Stable across restarts for a given program id.
var (
	seedMintAuthority    = []byte("mint_authority")
	seedPoolAuthority    = []byte("token_account")
	seedFounderAuthority = []byte("founder_authority")
	seedVault            = []byte("vault")
)

// Initialize seeds the reserves with a deployer deposit so the curve opens at
// a defined price (3k payment base units against 1 whole sale token).
const (
	bootstrapPaymentDeposit uint64 = 3_000
	bootstrapSaleDeposit    uint64 = 1_000_000_000
)

// Options wires the engine's collaborators. Journal and Clock are optional.
type Options struct {
	Config  *config.Config
	Ledger  *ledger.Ledger
	Logger  *zap.Logger
	Journal storage.Storage
	Clock   func() time.Time
}

// Engine carries the singleton sale state and all per-user records.
type Engine struct {
	mu      sync.Mutex
	cfg     *config.Config
	logger  *zap.Logger
	ledger  *ledger.Ledger
	journal storage.Storage
	now     func() time.Time
	quoter  *curve.Curve

	meta   GlobalMetadata
	users  map[solana.PublicKey]*UserState
	pool   FoundersPool
	locks  map[solana.PublicKey]*LockedTokenState
	vaults map[solana.PublicKey]solana.PublicKey // user -> vault authority
}

// New creates an engine over the given ledger. Initialize must run before any
// trading operation.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine options: config is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("engine options: ledger is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		cfg:     opts.Config,
		logger:  opts.Logger.Named("engine"),
		ledger:  opts.Ledger,
		journal: opts.Journal,
		now:     opts.Clock,
		users:   make(map[solana.PublicKey]*UserState),
		locks:   make(map[solana.PublicKey]*LockedTokenState),
		vaults:  make(map[solana.PublicKey]solana.PublicKey),
	}, nil
}

// Initialize performs the one-time singleton setup: records the mints, seeds
// the program reserves from the deployer's accounts and hands the sale-token
// mint authority to the program-derived authority. The deployer must hold the
// bootstrap deposits and the sale mint's current issuance right.
func (e *Engine) Initialize(ctx context.Context, deployer, saleMint, paymentMint solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.meta.Initialized {
		return fmt.Errorf("initialize: %w", ErrAlreadyInitialized)
	}

	saleInfo, err := e.ledger.MintInfo(saleMint)
	if err != nil {
		return fmt.Errorf("initialize: sale mint: %w", ErrInvalidAccount)
	}
	payInfo, err := e.ledger.MintInfo(paymentMint)
	if err != nil {
		return fmt.Errorf("initialize: payment mint: %w", ErrInvalidAccount)
	}
	if !saleInfo.Authority.Equals(deployer) {
		return fmt.Errorf("initialize: deployer does not hold sale mint authority: %w", ErrUnauthorized)
	}

	mintAuth, err := e.ledger.DeriveAuthority(seedMintAuthority)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	poolAuth, err := e.ledger.DeriveAuthority(seedPoolAuthority, paymentMint.Bytes())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	founderAuth, err := e.ledger.DeriveAuthority(seedFounderAuthority)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if _, err := e.ledger.GetOrCreateAccount(poolAuth, paymentMint); err != nil {
		return fmt.Errorf("initialize: payment reserve: %w", err)
	}
	if _, err := e.ledger.GetOrCreateAccount(poolAuth, saleMint); err != nil {
		return fmt.Errorf("initialize: sale reserve: %w", err)
	}

	err = e.ledger.Execute(ctx, []solana.PublicKey{deployer}, func(tx *ledger.Tx) error {
		if err := tx.Transfer(deployer, poolAuth, paymentMint, bootstrapPaymentDeposit, deployer); err != nil {
			return fmt.Errorf("bootstrap payment deposit: %w", err)
		}
		if err := tx.Transfer(deployer, poolAuth, saleMint, bootstrapSaleDeposit, deployer); err != nil {
			return fmt.Errorf("bootstrap sale deposit: %w", err)
		}
		return tx.SetMintAuthority(saleMint, mintAuth, deployer)
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	e.meta = GlobalMetadata{
		Name:             "UpOnly",
		Symbol:           "UP",
		SaleMint:         saleMint,
		PaymentMint:      paymentMint,
		MintAuthority:    mintAuth,
		PoolAuthority:    poolAuth,
		FounderAuthority: founderAuth,
		Deployer:         deployer,
		Initialized:      true,
	}
	e.quoter = curve.New(payInfo.Decimals, saleInfo.Decimals)

	e.logger.Info("Sale initialized",
		zap.String("sale_mint", saleMint.String()),
		zap.String("payment_mint", paymentMint.String()),
		zap.String("mint_authority", mintAuth.String()),
		zap.String("deployer", deployer.String()))

	e.journalOp(ctx, "initialize", deployer, deployer, bootstrapPaymentDeposit, bootstrapSaleDeposit)
	return nil
}

// InitializeFoundersPool performs the one-time founders-pool setup.
// Deployer only; re-invocation fails.
func (e *Engine) InitializeFoundersPool(ctx context.Context, caller solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return fmt.Errorf("initialize founders pool: %w", err)
	}
	if !caller.Equals(e.meta.Deployer) {
		return fmt.Errorf("initialize founders pool: %w", ErrUnauthorized)
	}
	if e.pool.Initialized {
		return fmt.Errorf("initialize founders pool: %w", ErrAlreadyInitialized)
	}

	if _, err := e.ledger.GetOrCreateAccount(e.meta.FounderAuthority, e.meta.PaymentMint); err != nil {
		return fmt.Errorf("initialize founders pool: %w", err)
	}

	e.pool = FoundersPool{
		Capacity:    e.cfg.FoundersCapacity,
		Founders:    make([]solana.PublicKey, 0, e.cfg.FoundersCapacity),
		Claimed:     make([]uint64, 0, e.cfg.FoundersCapacity),
		Initialized: true,
	}
	e.logger.Info("Founders pool initialized", zap.Int("capacity", e.pool.Capacity))
	e.journalOp(ctx, "initialize_founders_pool", caller, caller, 0, 0)
	return nil
}

func (e *Engine) requireInitialized() error {
	if !e.meta.Initialized {
		return ErrNotInitialized
	}
	return nil
}

func (e *Engine) requireFoundersPool() error {
	if !e.pool.Initialized {
		return fmt.Errorf("founders pool: %w", ErrNotInitialized)
	}
	return nil
}

func (e *Engine) userState(user solana.PublicKey) *UserState {
	if us, ok := e.users[user]; ok {
		return us
	}
	us := &UserState{}
	e.users[user] = us
	return us
}

// referralRecipient resolves where the referral share of a trade goes: the
// recorded referral if one is set, otherwise a supplied referral that itself
// holds a pass. Anything else folds the share back to the deployer.
func (e *Engine) referralRecipient(us *UserState, user solana.PublicKey, referral *solana.PublicKey) (solana.PublicKey, bool) {
	if us != nil && us.ReferralSet {
		return us.Referral, true
	}
	if referral == nil || referral.Equals(user) {
		return solana.PublicKey{}, false
	}
	if ref, ok := e.users[*referral]; ok && ref.HasPass {
		return *referral, true
	}
	return solana.PublicKey{}, false
}

// vaultSigner recomputes the derived vault authority of a user without
// registering anything new.
func vaultSeeds(user solana.PublicKey) [][]byte {
	return [][]byte{seedVault, user.Bytes()}
}

func (e *Engine) journalOp(ctx context.Context, kind string, caller, user solana.PublicKey, amountIn, amountOut uint64) {
	if e.journal == nil {
		return
	}
	op := &models.Operation{
		Kind:      kind,
		Caller:    caller.String(),
		User:      user.String(),
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Status:    models.StatusConfirmed,
	}
	// Best effort: a journal failure never unwinds a committed operation.
	if err := e.journal.SaveOperation(ctx, op); err != nil {
		e.logger.Warn("Failed to journal operation",
			zap.String("kind", kind),
			zap.Error(err))
	}
}

// Metadata returns a copy of the global sale record.
func (e *Engine) Metadata() GlobalMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// User returns a copy of a user's state record.
func (e *Engine) User(user solana.PublicKey) (UserState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	us, ok := e.users[user]
	if !ok {
		return UserState{}, false
	}
	return *us, true
}

// Lock returns a copy of a user's vesting record.
func (e *Engine) Lock(user solana.PublicKey) (LockedTokenState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[user]
	if !ok {
		return LockedTokenState{}, false
	}
	return *l, true
}

// VaultAuthority returns the derived authority scoping a user's vault.
func (e *Engine) VaultAuthority(user solana.PublicKey) (solana.PublicKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	auth, ok := e.vaults[user]
	return auth, ok
}

// MaturedLocks lists users whose locks have matured and are still unclaimed.
// Crankers poll this to find settlement work.
func (e *Engine) MaturedLocks() []solana.PublicKey {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var out []solana.PublicKey
	for user, lock := range e.locks {
		if !lock.Claimed && !now.Before(lock.UnlockTime) {
			out = append(out, user)
		}
	}
	return out
}

// FoundersPoolInfo returns a copy of the founders pool record.
func (e *Engine) FoundersPoolInfo() FoundersPool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := e.pool
	cp.Founders = append([]solana.PublicKey(nil), e.pool.Founders...)
	cp.Claimed = append([]uint64(nil), e.pool.Claimed...)
	return cp
}
