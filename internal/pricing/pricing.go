package pricing

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrPriceUnavailable = errors.New("price unavailable")

// Rates holds the current price per gram keyed by lowercase material.
type Rates map[string]float64

type Config struct {
	FreeShippingThreshold float64
	ShippingFee           float64
	TaxRate               float64
}

func DefaultConfig() Config {
	return Config{
		FreeShippingThreshold: 5000,
		ShippingFee:           99,
		TaxRate:               0.03,
	}
}

type Line struct {
	Key       string          `json:"key"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Available bool            `json:"available"`
}

type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountRate   decimal.Decimal `json:"discountRate"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	Lines          []Line          `json:"lines"`
	// PricePending is set when at least one line has no current price.
	// Such lines are left out of every amount and listed in Pending.
	PricePending bool     `json:"pricePending"`
	Pending      []string `json:"pending,omitempty"`
}

// UnitPrice returns the price of one unit of item at the given rates.
func UnitPrice(item domain.CartItem, rates Rates) (decimal.Decimal, error) {
	if item.Unpriced {
		return decimal.Zero, fmt.Errorf("%s: %w", item.Key, ErrPriceUnavailable)
	}
	if item.PriceType.Normalize() == domain.PriceFixed {
		return decimal.NewFromFloat(item.Price), nil
	}
	rate, ok := rates[item.Material]
	if !ok || rate <= 0 {
		return decimal.Zero, fmt.Errorf("%s: no rate for material %q: %w", item.Key, item.Material, ErrPriceUnavailable)
	}
	return decimal.NewFromFloat(item.Weight).Mul(decimal.NewFromFloat(rate)), nil
}

type Calculator struct {
	threshold decimal.Decimal
	fee       decimal.Decimal
	taxRate   decimal.Decimal
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		threshold: decimal.NewFromFloat(cfg.FreeShippingThreshold),
		fee:       decimal.NewFromFloat(cfg.ShippingFee),
		taxRate:   decimal.NewFromFloat(cfg.TaxRate),
	}
}

// Calculate prices the cart. Amounts are accumulated exactly and rounded to two
// decimal places only once, on the way out.
func (c *Calculator) Calculate(items []domain.CartItem, discountPercent float64, rates Rates) Totals {
	var totals Totals
	subtotal := decimal.Zero
	priced := 0

	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		unit, err := UnitPrice(item, rates)
		if err != nil {
			totals.PricePending = true
			totals.Pending = append(totals.Pending, item.Key)
			totals.Lines = append(totals.Lines, Line{Key: item.Key})
			continue
		}
		priced++
		lineTotal := unit.Mul(qty)
		subtotal = subtotal.Add(lineTotal)
		totals.Lines = append(totals.Lines, Line{
			Key:       item.Key,
			UnitPrice: unit.Round(2),
			LineTotal: lineTotal.Round(2),
			Available: true,
		})
	}

	rate := clampPercent(discountPercent).Div(decimal.NewFromInt(100))
	discount := subtotal.Mul(rate)
	net := subtotal.Sub(discount)

	// no shipping until at least one line is priced
	shipping := decimal.Zero
	if priced > 0 && !net.GreaterThan(c.threshold) {
		shipping = c.fee
	}
	tax := net.Mul(c.taxRate)
	total := net.Add(shipping).Add(tax)

	totals.Subtotal = subtotal.Round(2)
	totals.DiscountRate = rate
	totals.DiscountAmount = discount.Round(2)
	totals.Shipping = shipping.Round(2)
	totals.Tax = tax.Round(2)
	totals.Total = total.Round(2)
	return totals
}

func clampPercent(p float64) decimal.Decimal {
	switch {
	case p < 0:
		return decimal.Zero
	case p > 100:
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromFloat(p)
}
