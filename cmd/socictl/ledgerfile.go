package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"

	"soci/internal/config"
	"soci/internal/core"
	"soci/internal/ledger"
	"soci/internal/ledger/memory"
	"soci/internal/log"
	"soci/internal/services"
)

// settings is the part of the environment configuration socictl needs.
type settings struct {
	cfg    *config.Config
	roster core.Roster
}

func loadSettings() (settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return settings{}, err
	}
	roster, err := cfg.Roster()
	if err != nil {
		return settings{}, err
	}
	if err := cfg.Tax().Validate(); err != nil {
		return settings{}, err
	}
	return settings{cfg: cfg, roster: roster}, nil
}

// readLedgerFile returns the raw document, or nil when the file does not
// exist yet.
func readLedgerFile(name string) ([]byte, error) {
	b, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning, %s does not exist, using an empty ledger\n", name)
		return nil, nil
	}
	return b, err
}

// decodeLedgerFile reads the ledger without checking it against the roster.
func decodeLedgerFile(name string) (core.Ledger, error) {
	b, err := readLedgerFile(name)
	if err != nil || b == nil {
		return core.Ledger{}, err
	}
	return ledger.Decode(bytes.NewReader(b))
}

// openService loads the file into a memory store behind a ledger service, so
// edits go through the same checks as the server.
func openService(ctx context.Context, s settings, name string, allowOverdraw bool) (*services.LedgerService, error) {
	svc, err := services.NewLedgerService(memory.New(), services.Options{
		Roster:        s.roster,
		Tax:           s.cfg.Tax(),
		AllowOverdraw: allowOverdraw,
		Logger:        log.Discard(),
	})
	if err != nil {
		return nil, err
	}
	b, err := readLedgerFile(name)
	if err != nil {
		return nil, err
	}
	if b != nil {
		if _, err := svc.Import(ctx, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return svc, nil
}

// writeLedgerFile replaces name atomically with what write produces.
func writeLedgerFile(name string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}
