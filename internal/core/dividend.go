package core

import "github.com/shopspring/decimal"

// NewDividendPayout stamps tax and net onto a withdrawal at the given rate.
// Stamped values are rounded to cents and are never recomputed later, so a
// rate change does not rewrite history.
func NewDividendPayout(id, partnerID string, date Date, gross, rate float64) DividendPayout {
	tax, net := StampDividend(gross, rate)
	return DividendPayout{
		ID:          id,
		PartnerID:   partnerID,
		Date:        date,
		GrossAmount: gross,
		TaxAmount:   tax,
		NetReceived: net,
	}
}

// StampDividend returns tax = gross*rate and net = gross-tax. The tax is
// rounded half away from zero to cents before net is derived, so the stored
// record holds 16.67 for 333.33 at 5%, never 16.6665, and tax+net is exactly
// gross in cents.
func StampDividend(gross, rate float64) (tax, net float64) {
	g := decimal.NewFromFloat(gross)
	t := g.Mul(decimal.NewFromFloat(rate)).Round(2)
	return t.InexactFloat64(), g.Sub(t).Round(2).InexactFloat64()
}
