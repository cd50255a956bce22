// Package report produces a narrative commentary on the partnership's
// figures. It only reads engine output and never feeds back into it.
package report

import "soci/internal/core"

// DefaultRecent is how many trailing payments and expenses go into a projection.
const DefaultRecent = 10

// Projection is the condensed view of the ledger handed to a generator.
type Projection struct {
	Summary        core.CompanySummary `json:"summary"`
	Partners       []PartnerLine       `json:"partners"`
	Projects       int                 `json:"projects"`
	ActiveProjects int                 `json:"activeProjects"`
	RecentPayments []Movement          `json:"recentPayments"`
	RecentExpenses []Movement          `json:"recentExpenses"`
	Question       string              `json:"question,omitempty"`
}

type PartnerLine struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Revenue             float64 `json:"revenue"`
	ExpenseShare        float64 `json:"expenseShare"`
	NetProfitShare      float64 `json:"netProfitShare"`
	DividendsTakenGross float64 `json:"dividendsTakenGross"`
	Balance             float64 `json:"balance"`
}

// Movement is one payment or expense without its distributions.
type Movement struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Label       string  `json:"label,omitempty"`
}

// BuildProjection condenses financials and the ledger. The last recent
// payments and expenses are kept in ledger order; recent <= 0 means DefaultRecent.
func BuildProjection(f core.Financials, l core.Ledger, question string, recent int) Projection {
	if recent <= 0 {
		recent = DefaultRecent
	}
	p := Projection{
		Summary:        f.Summary,
		Partners:       make([]PartnerLine, 0, len(f.Partners)),
		Projects:       len(l.Projects),
		RecentPayments: []Movement{},
		RecentExpenses: []Movement{},
		Question:       question,
	}
	for _, st := range f.Partners {
		p.Partners = append(p.Partners, PartnerLine{
			ID:                  st.PartnerID,
			Name:                st.Name,
			Revenue:             core.RoundCents(st.Revenue),
			ExpenseShare:        core.RoundCents(st.ExpenseShare),
			NetProfitShare:      core.RoundCents(st.NetProfitShare),
			DividendsTakenGross: core.RoundCents(st.DividendsTakenGross),
			Balance:             core.RoundCents(st.Balance),
		})
	}

	names := make(map[string]string, len(l.Projects))
	for _, pr := range l.Projects {
		names[pr.ID] = pr.Name
		if pr.Status == core.StatusActive {
			p.ActiveProjects++
		}
	}
	for _, pay := range tail(l.Payments, recent) {
		p.RecentPayments = append(p.RecentPayments, Movement{
			Date: pay.Date.String(), Description: pay.Description, Amount: pay.TotalAmount, Label: names[pay.ProjectID],
		})
	}
	for _, e := range tail(l.Expenses, recent) {
		p.RecentExpenses = append(p.RecentExpenses, Movement{
			Date: e.Date.String(), Description: e.Description, Amount: e.Amount, Label: e.Category,
		})
	}
	return p
}

func tail[T any](in []T, n int) []T {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}
