// =================================
// File: internal/engine/fees.go
// =================================
package engine

import "github.com/uponlylabs/uponly-engine/internal/curve"

// feeRates is a bps triple applied to one side of a trade.
type feeRates struct {
	teamBps      uint64
	founderBps   uint64
	liquidityBps uint64
}

// feeSplit is one fee decomposition of a source amount. The four parts always
// sum to the source exactly: team, founder and liquidity are floored bps
// shares and net carries the remainder, so integer rounding never leaks value
// to an unaccounted party.
type feeSplit struct {
	team      uint64
	founder   uint64
	liquidity uint64
	net       uint64
}

func splitAmount(amount uint64, rates feeRates) feeSplit {
	team := curve.BpsShare(amount, rates.teamBps)
	founder := curve.BpsShare(amount, rates.founderBps)
	liquidity := curve.BpsShare(amount, rates.liquidityBps)
	return feeSplit{
		team:      team,
		founder:   founder,
		liquidity: liquidity,
		net:       amount - team - founder - liquidity,
	}
}

// referralCut halves the team share between referral and deployer.
// The deployer side keeps the odd unit.
func (s feeSplit) referralCut() (referral, deployer uint64) {
	referral = s.team / 2
	return referral, s.team - referral
}

func (e *Engine) buyRates() feeRates {
	return feeRates{
		teamBps:      e.cfg.BuyTeamFeeBps,
		founderBps:   e.cfg.FounderFeeBps,
		liquidityBps: e.cfg.LockedLiquidityBps,
	}
}

func (e *Engine) sellRates() feeRates {
	return feeRates{
		teamBps:      e.cfg.SellTeamFeeBps,
		founderBps:   e.cfg.FounderFeeBps,
		liquidityBps: e.cfg.LockedLiquidityBps,
	}
}

// lockRates scales fees with the vesting commitment: longer locks route more
// of the purchase into locked liquidity and the team share.
func lockRates(lockDays uint64) feeRates {
	switch {
	case lockDays <= 3:
		return feeRates{teamBps: 100, founderBps: 25, liquidityBps: 400}
	case lockDays <= 7:
		return feeRates{teamBps: 150, founderBps: 25, liquidityBps: 500}
	case lockDays <= 14:
		return feeRates{teamBps: 200, founderBps: 25, liquidityBps: 600}
	case lockDays <= 31:
		return feeRates{teamBps: 250, founderBps: 25, liquidityBps: 1000}
	case lockDays <= 60:
		return feeRates{teamBps: 300, founderBps: 25, liquidityBps: 1000}
	case lockDays <= 90:
		return feeRates{teamBps: 400, founderBps: 25, liquidityBps: 1500}
	default:
		return feeRates{teamBps: 500, founderBps: 25, liquidityBps: 2000}
	}
}
