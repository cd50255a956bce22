// Command socictl works on a ledger interchange file without a running
// server: it prints statements, stamps dividends, resets the file and asks
// for a narrative report.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"soci/internal/cli"
)

var ledgerFile = flag.String("ledger", "ledger.json", "Path to the ledger interchange file (JSON)")

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&financialsCmd{}, "ledger")
	commander.Register(&dividendCmd{}, "ledger")
	commander.Register(&resetCmd{}, "ledger")
	commander.Register(&reportCmd{}, "report")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
