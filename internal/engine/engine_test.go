package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/config"
	"github.com/uponlylabs/uponly-engine/internal/curve"
	"github.com/uponlylabs/uponly-engine/internal/ledger"
)

const (
	paymentUnit = uint64(1_000_000)     // 6 decimals
	saleUnit    = uint64(1_000_000_000) // 9 decimals
	userFloat   = 2_000_000 * 1_000_000 // 2M payment tokens per test user
)

// fakeClock lets tests move the engine through the vesting timeline.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	cfg   *config.Config
	lgr   *ledger.Ledger
	eng   *Engine
	clock *fakeClock

	deployer solana.PublicKey
	alice    solana.PublicKey
	bob      solana.PublicKey
	carol    solana.PublicKey

	paymentMint solana.PublicKey
	saleMint    solana.PublicKey
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	if cfg == nil {
		cfg = config.Default()
	}

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		cfg:      cfg,
		clock:    newFakeClock(),
		deployer: solana.NewWallet().PublicKey(),
		alice:    solana.NewWallet().PublicKey(),
		bob:      solana.NewWallet().PublicKey(),
		carol:    solana.NewWallet().PublicKey(),
	}

	f.lgr = ledger.New(solana.NewWallet().PublicKey(), zap.NewNop())

	var err error
	f.paymentMint, err = f.lgr.CreateMint(f.deployer, 6)
	require.NoError(t, err)
	f.saleMint, err = f.lgr.CreateMint(f.deployer, 9)
	require.NoError(t, err)

	f.fundPayment(f.deployer, userFloat)
	f.fundPayment(f.alice, userFloat)
	f.fundPayment(f.bob, userFloat)
	f.fundPayment(f.carol, userFloat)

	// Bootstrap sale deposit, minted while the deployer still holds the
	// sale mint authority.
	_, err = f.lgr.GetOrCreateAccount(f.deployer, f.saleMint)
	require.NoError(t, err)
	err = f.lgr.Execute(f.ctx, []solana.PublicKey{f.deployer}, func(tx *ledger.Tx) error {
		return tx.MintTo(f.saleMint, f.deployer, saleUnit, f.deployer)
	})
	require.NoError(t, err)

	f.eng, err = New(Options{
		Config: cfg,
		Ledger: f.lgr,
		Logger: zap.NewNop(),
		Clock:  f.clock.Now,
	})
	require.NoError(t, err)

	require.NoError(t, f.eng.Initialize(f.ctx, f.deployer, f.saleMint, f.paymentMint))
	require.NoError(t, f.eng.InitializeFoundersPool(f.ctx, f.deployer))
	return f
}

func (f *fixture) fundPayment(owner solana.PublicKey, amount uint64) {
	f.t.Helper()

	_, err := f.lgr.GetOrCreateAccount(owner, f.paymentMint)
	require.NoError(f.t, err)
	err = f.lgr.Execute(f.ctx, []solana.PublicKey{f.deployer}, func(tx *ledger.Tx) error {
		return tx.MintTo(f.paymentMint, owner, amount, f.deployer)
	})
	require.NoError(f.t, err)
}

func (f *fixture) paymentBalance(owner solana.PublicKey) uint64 {
	return f.lgr.Balance(owner, f.paymentMint)
}

func (f *fixture) saleBalance(owner solana.PublicKey) uint64 {
	return f.lgr.Balance(owner, f.saleMint)
}

func (f *fixture) buyPass(user solana.PublicKey, referral *solana.PublicKey) {
	f.t.Helper()
	require.NoError(f.t, f.eng.BuyPass(f.ctx, user, referral))
}

func TestInitializeTwiceFails(t *testing.T) {
	f := newFixture(t, nil)

	err := f.eng.Initialize(f.ctx, f.deployer, f.saleMint, f.paymentMint)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	err = f.eng.InitializeFoundersPool(f.ctx, f.deployer)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeHandsOverMintAuthority(t *testing.T) {
	f := newFixture(t, nil)

	meta := f.eng.Metadata()
	info, err := f.lgr.MintInfo(f.saleMint)
	require.NoError(t, err)
	assert.True(t, info.Authority.Equals(meta.MintAuthority))

	// The deployer's own key can no longer issue sale tokens.
	err = f.lgr.Execute(f.ctx, []solana.PublicKey{f.deployer}, func(tx *ledger.Tx) error {
		return tx.MintTo(f.saleMint, f.deployer, 1, f.deployer)
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestInitializeSeedsReserves(t *testing.T) {
	f := newFixture(t, nil)

	meta := f.eng.Metadata()
	assert.Equal(t, bootstrapPaymentDeposit, f.paymentBalance(meta.PoolAuthority))
	assert.Equal(t, bootstrapSaleDeposit, f.saleBalance(meta.PoolAuthority))
}

func TestBuyPassWithoutReferral(t *testing.T) {
	f := newFixture(t, nil)

	deployerBefore := f.paymentBalance(f.deployer)
	aliceBefore := f.paymentBalance(f.alice)

	f.buyPass(f.alice, nil)

	us, ok := f.eng.User(f.alice)
	require.True(t, ok)
	assert.True(t, us.HasPass)
	assert.False(t, us.ReferralSet)

	assert.Equal(t, aliceBefore-f.cfg.PassPrice, f.paymentBalance(f.alice))
	assert.Equal(t, deployerBefore+f.cfg.PassPrice, f.paymentBalance(f.deployer))
}

func TestBuyPassWithReferralSplitsHalf(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.bob, nil)

	deployerBefore := f.paymentBalance(f.deployer)
	bobBefore := f.paymentBalance(f.bob)

	f.buyPass(f.alice, &f.bob)

	half := f.cfg.PassPrice / 2
	assert.Equal(t, bobBefore+half, f.paymentBalance(f.bob))
	assert.Equal(t, deployerBefore+half, f.paymentBalance(f.deployer))

	us, _ := f.eng.User(f.alice)
	assert.True(t, us.ReferralSet)
	assert.True(t, us.Referral.Equals(f.bob))
}

func TestBuyPassTwiceFails(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	err := f.eng.BuyPass(f.ctx, f.alice, nil)
	assert.ErrorIs(t, err, ErrAlreadyHasPass)
}

func TestBuyPassSelfReferralFails(t *testing.T) {
	f := newFixture(t, nil)

	err := f.eng.BuyPass(f.ctx, f.alice, &f.alice)
	assert.ErrorIs(t, err, ErrInvalidReferral)
}

func TestBuyPassInsufficientFundsRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	pauper := solana.NewWallet().PublicKey()
	f.fundPayment(pauper, f.cfg.PassPrice-1)

	err := f.eng.BuyPass(f.ctx, pauper, &f.bob)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Neither the pass nor the referral may survive the failed purchase.
	us, ok := f.eng.User(pauper)
	if ok {
		assert.False(t, us.HasPass)
		assert.False(t, us.ReferralSet)
	}
	assert.Equal(t, f.cfg.PassPrice-1, f.paymentBalance(pauper))
}

func TestGivePass(t *testing.T) {
	f := newFixture(t, nil)

	err := f.eng.GivePass(f.ctx, f.bob, f.alice)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.eng.GivePass(f.ctx, f.deployer, f.alice))
	us, _ := f.eng.User(f.alice)
	assert.True(t, us.HasPass)

	err = f.eng.GivePass(f.ctx, f.deployer, f.alice)
	assert.ErrorIs(t, err, ErrAlreadyHasPass)
}

func TestBuyTokenRequiresPass(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.eng.BuyToken(f.ctx, f.alice, 100*paymentUnit, nil)
	assert.ErrorIs(t, err, ErrNoPass)
}

func TestBuyTokenRejectsZeroAmount(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	_, err := f.eng.BuyToken(f.ctx, f.alice, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBuyTokenSplitsExactly(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	meta := f.eng.Metadata()
	amount := 1_000 * paymentUnit

	aliceBefore := f.paymentBalance(f.alice)
	deployerBefore := f.paymentBalance(f.deployer)
	foundersBefore := f.paymentBalance(meta.FounderAuthority)
	reserveBefore := f.paymentBalance(meta.PoolAuthority)

	minted, err := f.eng.BuyToken(f.ctx, f.alice, amount, nil)
	require.NoError(t, err)
	require.NotZero(t, minted)
	assert.Equal(t, minted, f.saleBalance(f.alice))

	// Exact debit, and the destinations absorb exactly the source amount.
	assert.Equal(t, aliceBefore-amount, f.paymentBalance(f.alice))
	inflows := (f.paymentBalance(f.deployer) - deployerBefore) +
		(f.paymentBalance(meta.FounderAuthority) - foundersBefore) +
		(f.paymentBalance(meta.PoolAuthority) - reserveBefore)
	assert.Equal(t, amount, inflows)

	// Counters moved with the trade.
	meta = f.eng.Metadata()
	assert.Equal(t, minted, meta.TotalMinted)
	assert.Equal(t, amount, meta.TotalCollected)
	pool := f.eng.FoundersPoolInfo()
	assert.Equal(t, curve.BpsShare(amount, f.cfg.FounderFeeBps), pool.TotalCollected)
}

func TestBuyTokenReferralGetsHalfTeamShare(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.bob, nil)
	f.buyPass(f.alice, &f.bob)

	amount := 1_000 * paymentUnit
	bobBefore := f.paymentBalance(f.bob)

	_, err := f.eng.BuyToken(f.ctx, f.alice, amount, nil)
	require.NoError(t, err)

	teamShare := curve.BpsShare(amount, f.cfg.BuyTeamFeeBps)
	assert.Equal(t, bobBefore+teamShare/2, f.paymentBalance(f.bob))
}

func TestBuyTokenSuppliedReferralNeedsPass(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	amount := 1_000 * paymentUnit
	deployerBefore := f.paymentBalance(f.deployer)

	// Carol has no pass: her referral share folds back to the deployer.
	_, err := f.eng.BuyToken(f.ctx, f.alice, amount, &f.carol)
	require.NoError(t, err)

	teamShare := curve.BpsShare(amount, f.cfg.BuyTeamFeeBps)
	assert.Equal(t, deployerBefore+teamShare, f.paymentBalance(f.deployer))
	assert.Equal(t, uint64(0), f.paymentBalance(f.carol)-userFloat)
}

func TestBuyTokenPriceNeverDecreases(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	amount := 500 * paymentUnit
	var prev uint64
	for i := 0; i < 8; i++ {
		minted, err := f.eng.BuyToken(f.ctx, f.alice, amount, nil)
		require.NoError(t, err)
		require.NotZero(t, minted)
		if i > 0 {
			assert.LessOrEqual(t, minted, prev,
				"equal spend minted more tokens on round %d: price decreased", i)
		}
		prev = minted
	}
}

func TestSellTokenPaysNetOfFees(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	minted, err := f.eng.BuyToken(f.ctx, f.alice, 1_000*paymentUnit, nil)
	require.NoError(t, err)

	meta := f.eng.Metadata()
	reserve := f.paymentBalance(meta.PoolAuthority)
	supply := f.lgr.Supply(f.saleMint)

	gross, err := f.eng.quoter.SellQuote(reserve, supply, minted)
	require.NoError(t, err)
	expected := splitAmount(gross, f.eng.sellRates())

	aliceBefore := f.paymentBalance(f.alice)
	payout, err := f.eng.SellToken(f.ctx, f.alice, minted)
	require.NoError(t, err)

	assert.Equal(t, expected.net, payout)
	assert.Equal(t, aliceBefore+payout, f.paymentBalance(f.alice))
	assert.Equal(t, uint64(0), f.saleBalance(f.alice))

	// The liquidity share never leaves the reserve.
	assert.Equal(t, reserve-expected.team-expected.founder-expected.net,
		f.paymentBalance(meta.PoolAuthority))
}

func TestSellTokenReferralObserves250Bps(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.bob, nil)
	f.buyPass(f.alice, &f.bob)

	minted, err := f.eng.BuyToken(f.ctx, f.alice, 1_000*paymentUnit, nil)
	require.NoError(t, err)

	meta := f.eng.Metadata()
	gross, err := f.eng.quoter.SellQuote(f.paymentBalance(meta.PoolAuthority), f.lgr.Supply(f.saleMint), minted)
	require.NoError(t, err)

	bobBefore := f.paymentBalance(f.bob)
	_, err = f.eng.SellToken(f.ctx, f.alice, minted)
	require.NoError(t, err)

	// Half of the 5% sell-side team fee: 2.5% of the payout.
	expectedReferral := curve.BpsShare(gross, f.cfg.SellTeamFeeBps) / 2
	assert.Equal(t, bobBefore+expectedReferral, f.paymentBalance(f.bob))
}

func TestSellTokenInsufficientBalance(t *testing.T) {
	f := newFixture(t, nil)
	f.buyPass(f.alice, nil)

	minted, err := f.eng.BuyToken(f.ctx, f.alice, 100*paymentUnit, nil)
	require.NoError(t, err)

	_, err = f.eng.SellToken(f.ctx, f.alice, minted+1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, minted, f.saleBalance(f.alice))
}

func TestSellTokenRequiresPass(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.eng.SellToken(f.ctx, f.alice, saleUnit)
	assert.ErrorIs(t, err, ErrNoPass)
}
