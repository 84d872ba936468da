// Package finance derives committed amounts from order lines and plans
// percentage-based partial payments against them.
//
// All money values are rounded half-up to 2 decimals at the point of
// computation. Intermediate ratios are rounded only for presentation,
// never before clamping.
package finance

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPercentage rejects a non-positive payment percentage.
	ErrPercentage = errors.New("finance: percentage must be greater than zero")
	// ErrNoAuthorized rejects a payment when neither committed amount nor
	// invoice totals authorize anything.
	ErrNoAuthorized = errors.New("finance: no authorized amount for this order")
	// ErrFullyPaid rejects a payment when the authorized amount has been
	// consumed entirely.
	ErrFullyPaid = errors.New("finance: order is already fully paid")
	// ErrNothingPayable rejects a payment whose clamped effective amount is
	// not positive.
	ErrNothingPayable = errors.New("finance: effective amount is not payable")
)

var hundred = decimal.NewFromInt(100)

// Line carries the priced fields of an order or request line. VATRate is
// optional; a line without one inherits the order default.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	VATRate   decimal.NullDecimal
	Surcharge decimal.NullDecimal
}

// Round2 rounds a money value half-up to 2 decimals.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CommittedAmount computes an order's committed amount from its lines:
// Σ (quantity × unit_price + vat + surcharge), rounded half-up to 2
// decimals. Lines without a VAT rate fall back to the order default; a zero
// default means no VAT.
func CommittedAmount(lines []Line, defaultVAT decimal.NullDecimal) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		base := line.Quantity.Mul(line.UnitPrice)
		rate := line.VATRate
		if !rate.Valid {
			rate = defaultVAT
		}
		vat := decimal.Zero
		if rate.Valid {
			vat = base.Mul(rate.Decimal).Div(hundred)
		}
		surcharge := decimal.Zero
		if line.Surcharge.Valid {
			surcharge = line.Surcharge.Decimal
		}
		total = total.Add(base).Add(vat).Add(surcharge)
	}
	return Round2(total)
}

// Totals holds the payment position of one order.
type Totals struct {
	// Authorized is the order's committed amount, or the sum of its invoice
	// totals when no committed amount exists.
	Authorized decimal.Decimal
	// Paid is the sum of all payment amounts across the order's invoices.
	Paid decimal.Decimal
}

// Remaining returns the unpaid balance.
func (t Totals) Remaining() decimal.Decimal {
	return t.Authorized.Sub(t.Paid)
}

// PaymentTotals derives an order's payment position. Committed wins over
// invoice totals whenever it is positive.
func PaymentTotals(committed decimal.Decimal, invoiceTotals, payments []decimal.Decimal) Totals {
	authorized := committed
	if !authorized.IsPositive() {
		authorized = decimal.Zero
		for _, amount := range invoiceTotals {
			authorized = authorized.Add(amount)
		}
	}
	paid := decimal.Zero
	for _, amount := range payments {
		paid = paid.Add(amount)
	}
	return Totals{Authorized: authorized, Paid: paid}
}

// PaymentPlan is the outcome of planning one partial payment.
type PaymentPlan struct {
	// Effective is the amount the payment will carry, clamped to the
	// remaining balance.
	Effective decimal.Decimal
	// Remaining is the balance left after this payment executes.
	Remaining decimal.Decimal
	// PaidPercent and RemainingPercent relate the post-payment position to
	// the authorized amount, rounded to 2 decimals for presentation.
	PaidPercent      decimal.Decimal
	RemainingPercent decimal.Decimal
}

// PlanPartialPayment validates and sizes a percentage-based payment against
// the order's position. The requested amount is a percentage of the full
// authorized amount, then clamped to the remaining balance, never above it.
func PlanPartialPayment(totals Totals, percentage decimal.Decimal) (PaymentPlan, error) {
	if !percentage.IsPositive() {
		return PaymentPlan{}, ErrPercentage
	}
	if !totals.Authorized.IsPositive() {
		return PaymentPlan{}, ErrNoAuthorized
	}
	remaining := totals.Remaining()
	if !remaining.IsPositive() {
		return PaymentPlan{}, ErrFullyPaid
	}

	requested := Round2(totals.Authorized.Mul(percentage).Div(hundred))
	effective := requested
	if effective.GreaterThan(remaining) {
		effective = remaining
	}
	if !effective.IsPositive() {
		return PaymentPlan{}, ErrNothingPayable
	}

	paidAfter := totals.Paid.Add(effective)
	remainingAfter := totals.Authorized.Sub(paidAfter)
	return PaymentPlan{
		Effective:        effective,
		Remaining:        remainingAfter,
		PaidPercent:      Round2(paidAfter.Mul(hundred).Div(totals.Authorized)),
		RemainingPercent: Round2(remainingAfter.Mul(hundred).Div(totals.Authorized)),
	}, nil
}
