package core

import "fmt"

// TaxConfig holds the two rates, as fractions.
type TaxConfig struct {
	CorporateRate float64 `json:"corporateRate"`
	DividendRate  float64 `json:"dividendRate"`
}

// Validate reports rates outside [0,1). The engine itself does not guard them.
func (t TaxConfig) Validate() error {
	if t.CorporateRate < 0 || t.CorporateRate >= 1 {
		return fmt.Errorf("%w: corporate tax rate %v outside [0,1)", ErrConfiguration, t.CorporateRate)
	}
	if t.DividendRate < 0 || t.DividendRate >= 1 {
		return fmt.Errorf("%w: dividend tax rate %v outside [0,1)", ErrConfiguration, t.DividendRate)
	}
	return nil
}

// CompanySummary is computed from parent totals only.
type CompanySummary struct {
	TotalRevenue  float64 `json:"totalRevenue"`
	TotalExpenses float64 `json:"totalExpenses"`
	TaxableProfit float64 `json:"taxableProfit"`
	CorporateTax  float64 `json:"corporateTax"`
	NetProfit     float64 `json:"netProfit"`
}

// PartnerStatement is one partner's view. TaxableBase and Balance may be negative.
type PartnerStatement struct {
	PartnerID           string  `json:"partnerId"`
	Name                string  `json:"name"`
	Revenue             float64 `json:"revenue"`
	ExpenseShare        float64 `json:"expenseShare"`
	EqualSplitExpense   float64 `json:"equalSplitExpense"`
	TaxableBase         float64 `json:"taxableBase"`
	CorporateTaxShare   float64 `json:"corporateTaxShare"`
	NetProfitShare      float64 `json:"netProfitShare"`
	DividendsTakenGross float64 `json:"dividendsTakenGross"`
	DividendTaxPaid     float64 `json:"dividendTaxPaid"`
	Balance             float64 `json:"balance"`
}

// Financials is the engine output.
type Financials struct {
	Summary  CompanySummary     `json:"summary"`
	Partners []PartnerStatement `json:"partners"`
}

// Statement returns the statement for a partner id.
func (f Financials) Statement(partnerID string) (PartnerStatement, bool) {
	for _, s := range f.Partners {
		if s.PartnerID == partnerID {
			return s, true
		}
	}
	return PartnerStatement{}, false
}
