// =================================
// File: internal/curve/curve.go
// =================================
// Package curve prices the sale token against the payment reserve.
//
// The price of one sale token is the reserve-to-supply ratio: spot = R / S,
// with R the payment-token reserve and S the outstanding sale supply, both in
// whole-token units. A buy is charged the trapezoid average of the spot price
// before and after the purchase; a sell pays the spot price of the pre-burn
// state. Every buy grows R strictly faster than the tokens it mints would
// grow S at the old price (fees stay in the reserve), so spot never
// decreases across buys.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrZeroAmount   = errors.New("amount must be positive")
	ErrEmptyReserve = errors.New("curve has no reserve or supply")
)

// Curve converts between integer base units of the two tokens. It is
// stateless: reserve and supply are passed per quote, so the caller decides
// which snapshot the quote is evaluated at.
type Curve struct {
	paymentScale decimal.Decimal // 10^payment decimals
	saleScale    decimal.Decimal // 10^sale decimals
}

// New builds a curve for the given token precisions.
func New(paymentDecimals, saleDecimals uint8) *Curve {
	return &Curve{
		paymentScale: decimal.New(1, int32(paymentDecimals)),
		saleScale:    decimal.New(1, int32(saleDecimals)),
	}
}

func fromUint(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toUintFloor(d decimal.Decimal) uint64 {
	f := d.Floor()
	if f.Sign() <= 0 {
		return 0
	}
	return f.BigInt().Uint64()
}

// SpotPrice returns the current price of one whole sale token in whole
// payment tokens.
func (c *Curve) SpotPrice(reserve, supply uint64) (decimal.Decimal, error) {
	if reserve == 0 || supply == 0 {
		return decimal.Zero, ErrEmptyReserve
	}
	r := fromUint(reserve).Div(c.paymentScale)
	s := fromUint(supply).Div(c.saleScale)
	return r.Div(s), nil
}

// BuyQuote returns the sale-token base units minted for netPayment base units
// flowing into the reserve, using the average of the spot price before and
// after the purchase.
func (c *Curve) BuyQuote(reserve, supply, netPayment uint64) (uint64, error) {
	if netPayment == 0 {
		return 0, ErrZeroAmount
	}
	priceStart, err := c.SpotPrice(reserve, supply)
	if err != nil {
		return 0, fmt.Errorf("buy quote: %w", err)
	}

	payIn := fromUint(netPayment).Div(c.paymentScale)
	estimated := payIn.Div(priceStart)

	reserveAfter := fromUint(reserve).Div(c.paymentScale).Add(payIn)
	supplyAfter := fromUint(supply).Div(c.saleScale).Add(estimated)
	priceEnd := reserveAfter.Div(supplyAfter)

	avgPrice := priceStart.Add(priceEnd).Div(decimal.NewFromInt(2))
	tokens := payIn.Div(avgPrice).Mul(c.saleScale)

	out := toUintFloor(tokens)
	if out == 0 {
		return 0, fmt.Errorf("buy quote of %d payment units floors to zero tokens: %w", netPayment, ErrZeroAmount)
	}
	return out, nil
}

// SellQuote returns the gross payment base units a sale of saleAmount base
// units is worth at the current (pre-burn) spot price.
func (c *Curve) SellQuote(reserve, supply, saleAmount uint64) (uint64, error) {
	if saleAmount == 0 {
		return 0, ErrZeroAmount
	}
	price, err := c.SpotPrice(reserve, supply)
	if err != nil {
		return 0, fmt.Errorf("sell quote: %w", err)
	}
	value := fromUint(saleAmount).Div(c.saleScale).Mul(price).Mul(c.paymentScale)
	return toUintFloor(value), nil
}

// BpsShare returns floor(amount * bps / 10_000) without intermediate
// overflow. Splits computed this way always sum below the source amount; the
// caller assigns the remainder, never drops it.
func BpsShare(amount, bps uint64) uint64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	share := fromUint(amount).Mul(fromUint(bps)).Div(decimal.NewFromInt(10_000))
	return toUintFloor(share)
}
