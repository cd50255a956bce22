package core

import "math"

// ComputeFinancials turns a ledger snapshot into the company summary and one
// statement per roster partner, in roster order.
//
// The computation is pure. Sums accumulate in ledger iteration order, and per
// partner figures are derived in roster order, so identical inputs give
// bit-identical outputs.
//
// Company totals come from the parent records (payment.TotalAmount,
// expense.Amount), never from their distributions. Per-partner figures come
// only from distributions, so the two views need not reconcile: distributions
// may under- or over-allocate, may name partners missing from the roster
// (accumulated but never reported), and may repeat a partner (summed).
// An expense with no distributions is split equally across the roster.
//
// Non-finite amounts are not detected; they propagate into the results.
// The only error is an empty roster.
func ComputeFinancials(ledger Ledger, roster Roster, tax TaxConfig) (Financials, error) {
	if roster.Len() == 0 {
		return Financials{}, ErrEmptyRoster
	}
	partners := roster.Partners()

	var summary CompanySummary
	for _, p := range ledger.Payments {
		summary.TotalRevenue += p.TotalAmount
	}
	for _, e := range ledger.Expenses {
		summary.TotalExpenses += e.Amount
	}
	summary.TaxableProfit = math.Max(0, summary.TotalRevenue-summary.TotalExpenses)
	summary.CorporateTax = summary.TaxableProfit * tax.CorporateRate
	summary.NetProfit = summary.TotalRevenue - summary.TotalExpenses - summary.CorporateTax

	expenseShare := make(map[string]float64, len(partners))
	equalShare := make(map[string]float64, len(partners))
	for _, p := range partners {
		expenseShare[p.ID] = 0
	}
	n := float64(len(partners))
	for _, e := range ledger.Expenses {
		if e.EqualSplit() {
			share := e.Amount / n
			for _, p := range partners {
				expenseShare[p.ID] += share
				equalShare[p.ID] += share
			}
			continue
		}
		for _, d := range e.Distributions {
			expenseShare[d.PartnerID] += d.Amount
		}
	}

	statements := make([]PartnerStatement, 0, len(partners))
	for _, p := range partners {
		st := PartnerStatement{
			PartnerID:         p.ID,
			Name:              p.Name,
			ExpenseShare:      expenseShare[p.ID],
			EqualSplitExpense: equalShare[p.ID],
		}
		for _, pay := range ledger.Payments {
			for _, d := range pay.Distributions {
				if d.PartnerID == p.ID {
					st.Revenue += d.Amount
				}
			}
		}

		st.TaxableBase = st.Revenue - st.ExpenseShare
		if st.TaxableBase > 0 {
			st.CorporateTaxShare = st.TaxableBase * tax.CorporateRate
		}
		st.NetProfitShare = st.TaxableBase - st.CorporateTaxShare

		for _, d := range ledger.Dividends {
			if d.PartnerID == p.ID {
				st.DividendsTakenGross += d.GrossAmount
				st.DividendTaxPaid += d.TaxAmount
			}
		}
		st.Balance = st.NetProfitShare - st.DividendsTakenGross
		statements = append(statements, st)
	}

	return Financials{Summary: summary, Partners: statements}, nil
}

// AvailableBalance is the amount a partner may still withdraw; zero when
// the partner is unknown to the roster.
func AvailableBalance(f Financials, partnerID string) float64 {
	st, ok := f.Statement(partnerID)
	if !ok {
		return 0
	}
	return st.Balance
}
