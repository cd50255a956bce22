package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDividendPayout(t *testing.T) {
	d := NewDividendPayout("d1", "p1", NewDate(2024, 3, 1), 1000, 0.05)
	assert.Equal(t, 1000.0, d.GrossAmount)
	assert.Equal(t, 50.0, d.TaxAmount)
	assert.Equal(t, 950.0, d.NetReceived)
	assert.Equal(t, "2024-03-01", d.Date.String())
	assert.NoError(t, d.Validate())
}

func TestStampDividendRounding(t *testing.T) {
	cases := []struct {
		gross, rate, tax, net float64
	}{
		{0, 0.05, 0, 0},
		{100, 0, 0, 100},
		{333.33, 0.05, 16.67, 316.66},
		{10.01, 0.26, 2.6, 7.41},
	}
	for _, tc := range cases {
		tax, net := StampDividend(tc.gross, tc.rate)
		assert.Equal(t, tc.tax, tax, "gross %v rate %v", tc.gross, tc.rate)
		assert.Equal(t, tc.net, net, "gross %v rate %v", tc.gross, tc.rate)
		assert.Equal(t, Cents(tc.gross), Cents(tax)+Cents(net))
	}
}
