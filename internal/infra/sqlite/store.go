// Package sqlite implements the LedgerStore on a local SQLite file,
// the same storage the business has always run on.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/donahelp/fluxo-sync-go/internal/domain"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/sqlite")

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id             TEXT PRIMARY KEY,
	description    TEXT NOT NULL,
	amount         REAL NOT NULL,
	type           TEXT NOT NULL,
	date           TEXT NOT NULL,
	category       TEXT NOT NULL,
	payment_method TEXT,
	tax_rate       REAL,
	card_rate      REAL,
	payout_type    TEXT,
	payout_value   REAL,
	net_amount     REAL
);

CREATE TABLE IF NOT EXISTS services (
	id            TEXT PRIMARY KEY,
	category      TEXT NOT NULL,
	name          TEXT NOT NULL,
	default_price REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is a SQLite-backed LedgerStore.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database file, runs the schema and seeds
// the price list and default settings when the tables are empty.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite does not benefit from multiple connections, and a single
	// connection keeps row writes naturally serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.seed(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertTransaction upserts a transaction by id. Supplying an existing
// id replaces the prior row without error; the rowid (arrival order) of
// the original insert is preserved.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Sqlite.InsertTransaction")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, description, amount, type, date, category,
			payment_method, tax_rate, card_rate, payout_type, payout_value, net_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			amount = excluded.amount,
			type = excluded.type,
			date = excluded.date,
			category = excluded.category,
			payment_method = excluded.payment_method,
			tax_rate = excluded.tax_rate,
			card_rate = excluded.card_rate,
			payout_type = excluded.payout_type,
			payout_value = excluded.payout_value,
			net_amount = excluded.net_amount`,
		tx.ID, tx.Description, tx.Amount, string(tx.Type), tx.Date, tx.Category,
		nullString(string(tx.PaymentMethod)), nullFloat(tx.TaxRate), nullFloat(tx.CardRate),
		nullString(string(tx.PayoutType)), nullFloat(tx.PayoutValue), nullFloat(tx.NetAmount),
	)
	if err != nil {
		return &domain.ErrStorage{Op: "insert transaction", Err: err}
	}
	return nil
}

// DeleteTransaction removes the row with the given id. Unknown ids are
// a silent no-op so deletes stay idempotent under retransmission.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Sqlite.DeleteTransaction")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return &domain.ErrStorage{Op: "delete transaction", Err: err}
	}
	return nil
}

// ListTransactions returns the full ledger, newest date first. Ties on
// the same date keep arrival order via rowid.
func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Sqlite.ListTransactions")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, amount, type, date, category,
		       payment_method, tax_rate, card_rate, payout_type, payout_value, net_amount
		FROM transactions
		ORDER BY date DESC, rowid ASC`)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			t                     domain.Transaction
			method, payoutType    sql.NullString
			taxRate, cardRate     sql.NullFloat64
			payoutValue, netValue sql.NullFloat64
		)
		if err := rows.Scan(
			&t.ID, &t.Description, &t.Amount, &t.Type, &t.Date, &t.Category,
			&method, &taxRate, &cardRate, &payoutType, &payoutValue, &netValue,
		); err != nil {
			return nil, &domain.ErrStorage{Op: "scan transaction", Err: err}
		}
		t.PaymentMethod = domain.PaymentMethod(method.String)
		t.PayoutType = domain.PayoutType(payoutType.String)
		t.TaxRate = floatPtr(taxRate)
		t.CardRate = floatPtr(cardRate)
		t.PayoutValue = floatPtr(payoutValue)
		t.NetAmount = floatPtr(netValue)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrStorage{Op: "list transactions", Err: err}
	}
	return txs, nil
}

// UpdateServicePrice updates the default price of an existing service.
// Unknown ids are a no-op: the price list is seed data and rows are
// never created through this path.
func (s *Store) UpdateServicePrice(ctx context.Context, id string, price float64) error {
	ctx, span := tracer.Start(ctx, "Sqlite.UpdateServicePrice")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `UPDATE services SET default_price = ? WHERE id = ?`, price, id); err != nil {
		return &domain.ErrStorage{Op: "update service price", Err: err}
	}
	return nil
}

// ListServices returns the service price list in seed order.
func (s *Store) ListServices(ctx context.Context) ([]domain.ServiceEntry, error) {
	ctx, span := tracer.Start(ctx, "Sqlite.ListServices")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT id, category, name, default_price FROM services ORDER BY rowid ASC`)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "list services", Err: err}
	}
	defer rows.Close()

	services := make([]domain.ServiceEntry, 0)
	for rows.Next() {
		var e domain.ServiceEntry
		if err := rows.Scan(&e.ID, &e.Category, &e.Name, &e.DefaultPrice); err != nil {
			return nil, &domain.ErrStorage{Op: "scan service", Err: err}
		}
		services = append(services, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrStorage{Op: "list services", Err: err}
	}
	return services, nil
}

// UpsertSetting stores a setting value, last write wins per key.
func (s *Store) UpsertSetting(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Sqlite.UpsertSetting")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return &domain.ErrStorage{Op: "upsert setting", Err: err}
	}
	return nil
}

// ListSettings returns all settings as a key→value map.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "Sqlite.ListSettings")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "list settings", Err: err}
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &domain.ErrStorage{Op: "scan setting", Err: err}
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrStorage{Op: "list settings", Err: err}
	}
	return settings, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
