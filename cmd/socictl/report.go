package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"soci/internal/core"
	"soci/internal/report"
)

type reportCmd struct {
	recent int
	raw    bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "write a narrative report of the ledger with Gemini" }
func (*reportCmd) Usage() string {
	return `socictl [-ledger <file>] report [-recent <n>] [-raw] [question...]

  Sends the company summary, the partner statements and the most recent
  movements to Gemini and prints the answer. Requires GEMINI_API_KEY.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.recent, "recent", report.DefaultRecent, "Number of recent payments and expenses to include.")
	f.BoolVar(&c.raw, "raw", false, "Print the markdown without terminal rendering.")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitUsageError
	}
	if s.cfg.GeminiAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY is not set")
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

	gen, err := report.NewGeminiGenerator(ctx, s.cfg.GeminiAPIKey, s.cfg.GeminiModel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing Gemini's client:", err)
		return subcommands.ExitFailure
	}

	question := strings.Join(f.Args(), " ")
	res := report.Narrate(ctx, gen, report.BuildProjection(fin, l, question, c.recent), s.cfg.ReportTimeout)
	if res.Error != "" {
		fmt.Fprintln(os.Stderr, "Report failed:", res.Error)
		return subcommands.ExitFailure
	}
	if c.raw {
		fmt.Println(res.Text)
	} else {
		printMarkdown(res.Text)
	}
	return subcommands.ExitSuccess
}
