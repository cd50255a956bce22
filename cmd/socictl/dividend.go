package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"soci/internal/core"
	"soci/internal/services"
)

type dividendCmd struct {
	partner string
	amount  string
	date    string
	force   bool
}

func (*dividendCmd) Name() string     { return "dividend" }
func (*dividendCmd) Synopsis() string { return "record a dividend withdrawal in the ledger file" }
func (*dividendCmd) Usage() string {
	return `socictl [-ledger <file>] dividend -p <partner> -a <amount> [-d <date>] [-force]

  Stamps tax at DIVIDEND_TAX_RATE onto a withdrawal and appends it to the
  ledger file. The withdrawal is refused when it exceeds the partner's
  balance, unless -force is given or ALLOW_OVERDRAW is set.
`
}

func (c *dividendCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.partner, "p", "", "Partner id.")
	f.StringVar(&c.amount, "a", "", "Gross amount, e.g. 1500 or 1500,50.")
	f.StringVar(&c.date, "d", time.Now().Format(time.DateOnly), "Withdrawal date (YYYY-MM-DD).")
	f.BoolVar(&c.force, "force", false, "Record even when the balance is insufficient.")
}

func (c *dividendCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.partner == "" {
		fmt.Fprintln(os.Stderr, "Error: -p is required")
		return subcommands.ExitUsageError
	}
	gross, err := core.ParseAmount(c.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount %q: %v\n", c.amount, err)
		return subcommands.ExitUsageError
	}
	date, err := core.ParseDate(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	s, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitUsageError
	}
	svc, err := openService(ctx, s, *ledgerFile, c.force || s.cfg.AllowOverdraw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ledger: %v\n", err)
		return subcommands.ExitFailure
	}

	d, err := svc.RecordDividend(ctx, c.partner, date, gross)
	switch {
	case errors.Is(err, services.ErrOverdraw):
		fmt.Fprintf(os.Stderr, "Refused: %v\n", err)
		return subcommands.ExitFailure
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error recording dividend: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := writeLedgerFile(*ledgerFile, func(w io.Writer) error { return svc.Export(ctx, w) }); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing ledger %q: %v\n", *ledgerFile, err)
		return subcommands.ExitFailure
	}

	cur := s.cfg.Currency
	fmt.Printf("Recorded dividend %s for %s on %s: gross %s, tax %s, net %s\n",
		d.ID, d.PartnerID, d.Date, core.FormatMoney(d.GrossAmount, cur),
		core.FormatMoney(d.TaxAmount, cur), core.FormatMoney(d.NetReceived, cur))
	return subcommands.ExitSuccess
}
