package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"soci/internal/core"
)

type financialsCmd struct {
	raw    bool
	asJSON bool
}

func (*financialsCmd) Name() string     { return "financials" }
func (*financialsCmd) Synopsis() string { return "display the company summary and partner statements" }
func (*financialsCmd) Usage() string {
	return `socictl [-ledger <file>] financials [-raw] [-json]

  Computes the financials of the ledger file with the roster and tax rates
  from the environment (PARTNERS, CORPORATE_TAX_RATE, DIVIDEND_TAX_RATE).
`
}

func (c *financialsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "Print the markdown without terminal rendering.")
	f.BoolVar(&c.asJSON, "json", false, "Print the financials as JSON.")
}

func (c *financialsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitUsageError
	}
	l, err := decodeLedgerFile(*ledgerFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding ledger %q: %v\n", *ledgerFile, err)
		return subcommands.ExitFailure
	}
	fin, err := core.ComputeFinancials(l, s.roster, s.cfg.Tax())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing financials: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fin); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding financials: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	md := renderFinancials(fin, s.cfg.Currency)
	if c.raw {
		fmt.Print(md)
	} else {
		printMarkdown(md)
	}
	return subcommands.ExitSuccess
}

// renderFinancials formats the financials as two markdown tables.
func renderFinancials(f core.Financials, currency string) string {
	m := func(v float64) string { return core.FormatMoney(v, currency) }
	var b strings.Builder

	b.WriteString("# Company\n\n")
	b.WriteString("| | Amount |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Revenue | %s |\n", m(f.Summary.TotalRevenue))
	fmt.Fprintf(&b, "| Expenses | %s |\n", m(f.Summary.TotalExpenses))
	fmt.Fprintf(&b, "| Taxable profit | %s |\n", m(f.Summary.TaxableProfit))
	fmt.Fprintf(&b, "| Corporate tax | %s |\n", m(f.Summary.CorporateTax))
	fmt.Fprintf(&b, "| Net profit | %s |\n", m(f.Summary.NetProfit))

	b.WriteString("\n# Partners\n\n")
	b.WriteString("| Partner | Revenue | Expenses | Equal split | Taxable base | Corporate tax | Net profit | Dividends | Balance |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	equalSplit := false
	for _, p := range f.Partners {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			p.Name, m(p.Revenue), m(p.ExpenseShare), m(p.EqualSplitExpense), m(p.TaxableBase),
			m(p.CorporateTaxShare), m(p.NetProfitShare), m(p.DividendsTakenGross), m(p.Balance))
		if p.EqualSplitExpense != 0 {
			equalSplit = true
		}
	}
	if equalSplit {
		b.WriteString("\n_Equal split is the part of each expense share that comes from expenses " +
			"recorded without distributions, divided equally across all partners._\n")
	}
	return b.String()
}
