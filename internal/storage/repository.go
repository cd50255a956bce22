// Package storage is the SQLite ledger store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"soci/internal/core"
	"soci/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Revision(ctx context.Context) (int64, error) {
	var rev int64
	if err := r.db.QueryRowContext(ctx, `SELECT revision FROM ledger_meta WHERE id = 1`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) error {
	return r.inTx(ctx, "create project", func(tx *sql.Tx) error {
		return insertProject(ctx, tx, p)
	})
}

func (r *SQLiteRepository) RecordPayment(ctx context.Context, p core.Payment) error {
	err := r.inTx(ctx, "record payment", func(tx *sql.Tx) error {
		return insertPayment(ctx, tx, p)
	})
	if err == nil {
		slog.DebugContext(ctx, "Payment saved to SQLite",
			"id", p.ID,
			"project_id", p.ProjectID,
			"total_amount", p.TotalAmount,
			"distributions", len(p.Distributions))
	}
	return err
}

func (r *SQLiteRepository) RecordExpense(ctx context.Context, e core.Expense) error {
	err := r.inTx(ctx, "record expense", func(tx *sql.Tx) error {
		return insertExpense(ctx, tx, e)
	})
	if err == nil {
		slog.DebugContext(ctx, "Expense saved to SQLite",
			"id", e.ID,
			"amount", e.Amount,
			"equal_split", e.EqualSplit())
	}
	return err
}

func (r *SQLiteRepository) RecordDividend(ctx context.Context, d core.DividendPayout) error {
	return r.inTx(ctx, "record dividend", func(tx *sql.Tx) error {
		return insertDividend(ctx, tx, d)
	})
}

func (r *SQLiteRepository) ResetLedger(ctx context.Context) error {
	return r.inTx(ctx, "reset ledger", clearAll(ctx))
}

func (r *SQLiteRepository) ReplaceLedger(ctx context.Context, l core.Ledger) error {
	return r.inTx(ctx, "replace ledger", func(tx *sql.Tx) error {
		if err := clearAll(ctx)(tx); err != nil {
			return err
		}
		for _, p := range l.Projects {
			if err := insertProject(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, p := range l.Payments {
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, e := range l.Expenses {
			if err := insertExpense(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, d := range l.Dividends {
			if err := insertDividend(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot reads every stream inside one transaction, in insertion order.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (core.Ledger, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	l := core.Ledger{}.Clone()
	if l.Projects, err = readProjects(ctx, tx); err != nil {
		return core.Ledger{}, err
	}
	if l.Payments, err = readPayments(ctx, tx); err != nil {
		return core.Ledger{}, err
	}
	if l.Expenses, err = readExpenses(ctx, tx); err != nil {
		return core.Ledger{}, err
	}
	if l.Dividends, err = readDividends(ctx, tx); err != nil {
		return core.Ledger{}, err
	}
	return l, nil
}

// inTx runs fn and bumps the revision in the same transaction.
func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_meta SET revision = revision + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("%s: bump revision: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func clearAll(ctx context.Context) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, table := range []string{
			"payment_distributions", "payments",
			"expense_distributions", "expenses",
			"dividends", "projects",
		} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	}
}

func insertProject(ctx context.Context, tx *sql.Tx, p core.Project) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, type, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, string(p.Type), string(p.Status), p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.ID, err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p core.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, project_id, date, description, total_amount) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Date.String(), p.Description, p.TotalAmount)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	for _, d := range p.Distributions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payment_distributions (payment_id, partner_id, amount) VALUES (?, ?, ?)`,
			p.ID, d.PartnerID, d.Amount); err != nil {
			return fmt.Errorf("insert payment distribution %s/%s: %w", p.ID, d.PartnerID, err)
		}
	}
	return nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, e core.Expense) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, date, description, amount, category) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Date.String(), e.Description, e.Amount, e.Category)
	if err != nil {
		return fmt.Errorf("insert expense %s: %w", e.ID, err)
	}
	for _, d := range e.Distributions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expense_distributions (expense_id, partner_id, amount) VALUES (?, ?, ?)`,
			e.ID, d.PartnerID, d.Amount); err != nil {
			return fmt.Errorf("insert expense distribution %s/%s: %w", e.ID, d.PartnerID, err)
		}
	}
	return nil
}

func insertDividend(ctx context.Context, tx *sql.Tx, d core.DividendPayout) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO dividends (id, partner_id, date, gross_amount, tax_amount, net_received) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.PartnerID, d.Date.String(), d.GrossAmount, d.TaxAmount, d.NetReceived)
	if err != nil {
		return fmt.Errorf("insert dividend %s: %w", d.ID, err)
	}
	return nil
}

func readProjects(ctx context.Context, tx *sql.Tx) ([]core.Project, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name, description, type, status, created_at FROM projects ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := []core.Project{}
	for rows.Next() {
		var (
			p                  core.Project
			typ, st, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &typ, &st, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Type, p.Status = core.ProjectType(typ), core.ProjectStatus(st)
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("project %s created_at: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func readPayments(ctx context.Context, tx *sql.Tx) ([]core.Payment, error) {
	dists, err := readDistributions(ctx, tx, `SELECT payment_id, partner_id, amount FROM payment_distributions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT id, project_id, date, description, total_amount FROM payments ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	out := []core.Payment{}
	for rows.Next() {
		var (
			p    core.Payment
			date string
		)
		if err := rows.Scan(&p.ID, &p.ProjectID, &date, &p.Description, &p.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Date, err = parseStoredDate(date); err != nil {
			return nil, fmt.Errorf("payment %s: %w", p.ID, err)
		}
		p.Distributions = append([]core.Distribution{}, dists[p.ID]...)
		out = append(out, p)
	}
	return out, rows.Err()
}

func readExpenses(ctx context.Context, tx *sql.Tx) ([]core.Expense, error) {
	dists, err := readDistributions(ctx, tx, `SELECT expense_id, partner_id, amount FROM expense_distributions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT id, date, description, amount, category FROM expenses ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e    core.Expense
			date string
		)
		if err := rows.Scan(&e.ID, &date, &e.Description, &e.Amount, &e.Category); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = parseStoredDate(date); err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		e.Distributions = append([]core.Distribution{}, dists[e.ID]...)
		out = append(out, e)
	}
	return out, rows.Err()
}

func readDividends(ctx context.Context, tx *sql.Tx) ([]core.DividendPayout, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, partner_id, date, gross_amount, tax_amount, net_received FROM dividends ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query dividends: %w", err)
	}
	defer rows.Close()

	out := []core.DividendPayout{}
	for rows.Next() {
		var (
			d    core.DividendPayout
			date string
		)
		if err := rows.Scan(&d.ID, &d.PartnerID, &date, &d.GrossAmount, &d.TaxAmount, &d.NetReceived); err != nil {
			return nil, fmt.Errorf("scan dividend: %w", err)
		}
		if d.Date, err = parseStoredDate(date); err != nil {
			return nil, fmt.Errorf("dividend %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func readDistributions(ctx context.Context, tx *sql.Tx, query string) (map[string][]core.Distribution, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]core.Distribution)
	for rows.Next() {
		var (
			owner string
			d     core.Distribution
		)
		if err := rows.Scan(&owner, &d.PartnerID, &d.Amount); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out[owner] = append(out[owner], d)
	}
	return out, rows.Err()
}

// parseStoredDate accepts the empty string written for a zero date.
func parseStoredDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

var _ ledger.Store = (*SQLiteRepository)(nil)
