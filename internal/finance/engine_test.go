package finance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func requireEqualDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if len(msgAndArgs) > 0 {
		require.True(t, dec(want).Equal(got), msgAndArgs...)
		return
	}
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestCommittedAmountWithLineVAT(t *testing.T) {
	lines := []Line{{
		Quantity:  dec("10"),
		UnitPrice: dec("350000"),
		VATRate:   nullDec("19.25"),
	}}
	requireEqualDec(t, "4173750.00", CommittedAmount(lines, decimal.NullDecimal{}))
}

func TestCommittedAmountFallsBackToOrderVAT(t *testing.T) {
	lines := []Line{{Quantity: dec("2"), UnitPrice: dec("100")}}
	requireEqualDec(t, "238.00", CommittedAmount(lines, nullDec("19")))
}

func TestCommittedAmountNoVAT(t *testing.T) {
	lines := []Line{{Quantity: dec("3"), UnitPrice: dec("50")}}
	requireEqualDec(t, "150.00", CommittedAmount(lines, decimal.NullDecimal{}))
}

func TestCommittedAmountIncludesSurcharge(t *testing.T) {
	lines := []Line{
		{Quantity: dec("1"), UnitPrice: dec("1000"), VATRate: nullDec("19"), Surcharge: nullDec("25.50")},
		{Quantity: dec("4"), UnitPrice: dec("250")},
	}
	// 1000 + 190 + 25.50 + 1000
	requireEqualDec(t, "2215.50", CommittedAmount(lines, decimal.NullDecimal{}))
}

func TestCommittedAmountRoundsHalfUp(t *testing.T) {
	lines := []Line{{Quantity: dec("1"), UnitPrice: dec("10.01"), VATRate: nullDec("2.5")}}
	// 10.01 + 0.250250 = 10.260250 -> 10.26
	requireEqualDec(t, "10.26", CommittedAmount(lines, decimal.NullDecimal{}))

	lines = []Line{{Quantity: dec("1"), UnitPrice: dec("10"), VATRate: nullDec("0.05")}}
	// 10 + 0.005 -> 10.01, half rounds up
	requireEqualDec(t, "10.01", CommittedAmount(lines, decimal.NullDecimal{}))
}

func TestPaymentTotalsPrefersCommitted(t *testing.T) {
	totals := PaymentTotals(dec("5000"), []decimal.Decimal{dec("9999")}, []decimal.Decimal{dec("100"), dec("150")})
	requireEqualDec(t, "5000", totals.Authorized)
	requireEqualDec(t, "250", totals.Paid)
	requireEqualDec(t, "4750", totals.Remaining())
}

func TestPaymentTotalsFallsBackToInvoices(t *testing.T) {
	totals := PaymentTotals(decimal.Zero, []decimal.Decimal{dec("300"), dec("200")}, nil)
	requireEqualDec(t, "500", totals.Authorized)
	requireEqualDec(t, "0", totals.Paid)
}

func TestPlanPartialPaymentHalfThenFullClamps(t *testing.T) {
	totals := Totals{Authorized: dec("4173750.00"), Paid: decimal.Zero}

	plan, err := PlanPartialPayment(totals, dec("50"))
	require.NoError(t, err)
	requireEqualDec(t, "2086875.00", plan.Effective)
	requireEqualDec(t, "2086875.00", plan.Remaining)
	requireEqualDec(t, "50.00", plan.PaidPercent)
	requireEqualDec(t, "50.00", plan.RemainingPercent)

	totals.Paid = totals.Paid.Add(plan.Effective)
	plan, err = PlanPartialPayment(totals, dec("100"))
	require.NoError(t, err)
	requireEqualDec(t, "2086875.00", plan.Effective, "clamped to remaining, not the naive full amount")
	requireEqualDec(t, "0.00", plan.Remaining)
	requireEqualDec(t, "100.00", plan.PaidPercent)
	requireEqualDec(t, "0.00", plan.RemainingPercent)
}

func TestPlanPartialPaymentRejections(t *testing.T) {
	healthy := Totals{Authorized: dec("1000"), Paid: decimal.Zero}

	_, err := PlanPartialPayment(healthy, decimal.Zero)
	require.ErrorIs(t, err, ErrPercentage)

	_, err = PlanPartialPayment(healthy, dec("-10"))
	require.ErrorIs(t, err, ErrPercentage)

	_, err = PlanPartialPayment(Totals{Authorized: decimal.Zero}, dec("50"))
	require.ErrorIs(t, err, ErrNoAuthorized)

	_, err = PlanPartialPayment(Totals{Authorized: dec("1000"), Paid: dec("1000")}, dec("50"))
	require.ErrorIs(t, err, ErrFullyPaid)

	_, err = PlanPartialPayment(Totals{Authorized: dec("1000"), Paid: dec("1200")}, dec("50"))
	require.ErrorIs(t, err, ErrFullyPaid)
}

func TestPlanPartialPaymentSmallPercentage(t *testing.T) {
	totals := Totals{Authorized: dec("333.33"), Paid: decimal.Zero}
	plan, err := PlanPartialPayment(totals, dec("33.333"))
	require.NoError(t, err)
	// 333.33 * 0.33333 = 111.10877... -> 111.11
	requireEqualDec(t, "111.11", plan.Effective)
	requireEqualDec(t, "222.22", plan.Remaining)
}
