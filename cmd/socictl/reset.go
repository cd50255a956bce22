package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"soci/internal/core"
	"soci/internal/ledger"
)

type resetCmd struct {
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "empty the ledger file" }
func (*resetCmd) Usage() string {
	return `socictl [-ledger <file>] reset -y

  Replaces the ledger file with an empty ledger. Every project, payment,
  expense and dividend is lost.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "y", false, "Confirm the reset.")
}

func (c *resetCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "Refusing to reset without -y")
		return subcommands.ExitUsageError
	}
	err := writeLedgerFile(*ledgerFile, func(w io.Writer) error { return ledger.Encode(w, core.Ledger{}) })
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing ledger %q: %v\n", *ledgerFile, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Ledger %s reset\n", *ledgerFile)
	return subcommands.ExitSuccess
}
