package feeledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Report is the economic outcome of a session. Percentages are shares of
// PayerCost.
type Report struct {
	PayerCost       *big.Int
	SubmitterProfit *big.Int
	L2Fees          *big.Int
	L1Fees          *big.Int
	Residual        *big.Int

	ProfitPercent decimal.Decimal
	L2Percent     decimal.Decimal
	L1Percent     decimal.Decimal

	// AccountingGap is set when |Residual| exceeds the ledger tolerance
	AccountingGap bool
}

func percentOf(part, whole *big.Int) decimal.Decimal {
	if whole.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(part, 0).Mul(hundred).Div(decimal.NewFromBigInt(whole, 0))
}

// Summarize computes the report from the balance deltas observed over the
// session: payer cost = -payerDelta, submitter profit = submitterDelta and
// residual = payerCost - (profit + L2 + L1).
func (l *Ledger) Summarize(payerDelta, submitterDelta *big.Int) Report {
	totals := l.Totals()

	payerCost := new(big.Int).Neg(orZero(payerDelta))
	profit := new(big.Int).Set(orZero(submitterDelta))

	residual := new(big.Int).Sub(payerCost, profit)
	residual.Sub(residual, totals.L2Fees)
	residual.Sub(residual, totals.L1Fees)

	tolerance := orZero(l.Tolerance)
	report := Report{
		PayerCost:       payerCost,
		SubmitterProfit: profit,
		L2Fees:          totals.L2Fees,
		L1Fees:          totals.L1Fees,
		Residual:        residual,
		ProfitPercent:   percentOf(profit, payerCost),
		L2Percent:       percentOf(totals.L2Fees, payerCost),
		L1Percent:       percentOf(totals.L1Fees, payerCost),
		AccountingGap:   new(big.Int).Abs(residual).Cmp(tolerance) > 0,
	}

	if report.AccountingGap {
		l.logger.Warn("fee accounting gap",
			"session", l.session,
			"residual", residual.String(),
			"tolerance", tolerance.String())
	}

	return report
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// String renders the report the way the CLI prints it
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "User account paid: %s\n", r.PayerCost)
	fmt.Fprintf(&b, "   Bundler profit: %s %s%%\n", r.SubmitterProfit, r.ProfitPercent.StringFixed(2))
	fmt.Fprintf(&b, "           L2 gas: %s %s%%\n", r.L2Fees, r.L2Percent.StringFixed(2))
	fmt.Fprintf(&b, "           L1 fee: %s %s%%\n", r.L1Fees, r.L1Percent.StringFixed(2))
	fmt.Fprintf(&b, "         Residual: %s", r.Residual)
	if r.AccountingGap {
		b.WriteString(" (accounting gap)")
	}
	return b.String()
}
