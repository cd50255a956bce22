package google

import (
	"math"
	"strconv"
	"time"

	"soci/internal/core"
)

// lastColumn is the widest column the statement layout uses (11 columns).
const lastColumn = "K"

var partnerHeader = []any{
	"Partner", "Name", "Revenue", "Expense share", "Equal split part",
	"Taxable base", "Corporate tax share", "Net profit share",
	"Dividends (gross)", "Dividend tax", "Balance",
}

// StatementRows lays out the financials as a values matrix: a title row, the
// company summary, a blank row, then a header and one row per partner in
// roster order.
func StatementRows(f core.Financials, asOf time.Time, currency string) [][]any {
	if currency == "" {
		currency = core.DefaultCurrency
	}
	s := f.Summary
	rows := [][]any{
		{"Statements as of", asOf.UTC().Format(time.RFC3339), "Currency", currency},
		{"Total revenue", "Total expenses", "Taxable profit", "Corporate tax", "Net profit"},
		{cell(s.TotalRevenue), cell(s.TotalExpenses), cell(s.TaxableProfit), cell(s.CorporateTax), cell(s.NetProfit)},
		{},
		partnerHeader,
	}
	for _, p := range f.Partners {
		rows = append(rows, []any{
			p.PartnerID, p.Name,
			cell(p.Revenue), cell(p.ExpenseShare), cell(p.EqualSplitExpense),
			cell(p.TaxableBase), cell(p.CorporateTaxShare), cell(p.NetProfitShare),
			cell(p.DividendsTakenGross), cell(p.DividendTaxPaid), cell(p.Balance),
		})
	}
	return rows
}

// cell rounds to cents; non-finite values are written as text since the
// API cannot carry them as numbers.
func cell(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return core.RoundCents(v)
}
