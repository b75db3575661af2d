// Package db wraps the SQLite store holding accounts, statements,
// transactions, merchants and tagging rules. The schema is created in code
// when the database is opened.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
)

// dateLayout is the canonical column format for dates. Keeping dates as
// plain ISO strings makes the dedup-tuple comparison exact.
const dateLayout = "2006-01-02"

// DB represents a SQLite database connection
type DB struct {
	db     *sql.DB
	logger *log.Logger
}

// New creates a new database connection, creating the data directory, the
// schema, and applying pending migrations as needed.
func New(dataDir string, logger *log.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "bankstatements.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		return nil, fmt.Errorf("failed to set database pragmas: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %v", err)
	}

	return &DB{db: db, logger: logger}, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_number TEXT NOT NULL UNIQUE,
			name TEXT
		);

		CREATE TABLE IF NOT EXISTS statements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			period_start TEXT,
			period_end TEXT,
			opening_balance DECIMAL(15,2),
			closing_balance DECIMAL(15,2)
		);

		CREATE TABLE IF NOT EXISTS merchants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			statement_id INTEGER NOT NULL REFERENCES statements(id),
			date TEXT NOT NULL,
			description TEXT NOT NULL,
			amount DECIMAL(15,2) NOT NULL,
			currency TEXT,
			reference TEXT,
			merchant_id INTEGER REFERENCES merchants(id),
			countervalue DECIMAL(15,2),
			exchange_rate DECIMAL(15,6)
		);

		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE
		);

		CREATE TABLE IF NOT EXISTS transaction_tags (
			transaction_id INTEGER NOT NULL REFERENCES transactions(id),
			tag_id INTEGER NOT NULL REFERENCES tags(id),
			PRIMARY KEY (transaction_id, tag_id)
		);

		CREATE TABLE IF NOT EXISTS transaction_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			field TEXT NOT NULL DEFAULT 'description',
			pattern TEXT NOT NULL,
			is_regex INTEGER NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 0,
			tag TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_statements_account ON statements(account_id)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_statement ON transactions(statement_id)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_id)",
	}
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}

// Account is a persisted bank account, keyed by its account number.
type Account struct {
	ID            int64
	AccountNumber string
	Name          string
}

// TransactionRow is one persisted transaction as written by the importer.
type TransactionRow struct {
	StatementID  int64
	Date         time.Time
	Description  string
	Amount       decimal.Decimal
	Currency     string
	Reference    string
	MerchantID   *int64
	CounterValue *decimal.Decimal
	ExchangeRate *decimal.Decimal
}

// DedupKey is the (date, amount, description) identity used to decide
// whether a transaction already exists under a statement.
func (r TransactionRow) DedupKey() string {
	return DedupKey(r.Date, r.Amount, r.Description)
}

// DedupKey builds the dedup-tuple key for a transaction.
func DedupKey(date time.Time, amount decimal.Decimal, description string) string {
	return fmt.Sprintf("%s|%s|%s", date.Format(dateLayout), amount.String(), description)
}

// BeginTx starts a database transaction.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	return tx, nil
}

// FindAccount looks up an account by number within tx. Returns nil when no
// account exists.
func (d *DB) FindAccount(ctx context.Context, tx *sql.Tx, accountNumber string) (*Account, error) {
	var a Account
	var name sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT id, account_number, name FROM accounts WHERE account_number = ?
	`, accountNumber).Scan(&a.ID, &a.AccountNumber, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %v", err)
	}
	a.Name = name.String
	return &a, nil
}

// CreateAccount inserts a new account and returns its generated id.
func (d *DB) CreateAccount(ctx context.Context, tx *sql.Tx, accountNumber, name string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (account_number, name) VALUES (?, ?)
	`, accountNumber, nullable(name))
	if err != nil {
		return 0, fmt.Errorf("failed to create account: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get account id: %v", err)
	}
	d.logger.Debug("Created account", "id", id, "account_number", accountNumber)
	return id, nil
}

// CreateStatement inserts a statement row for the account and returns its
// generated id. Zero period dates are stored as NULL.
func (d *DB) CreateStatement(ctx context.Context, tx *sql.Tx, accountID int64,
	periodStart, periodEnd time.Time, openingBalance, closingBalance decimal.Decimal, name string) (int64, error) {

	res, err := tx.ExecContext(ctx, `
		INSERT INTO statements (account_id, period_start, period_end, opening_balance, closing_balance, name)
		VALUES (?, ?, ?, ?, ?, ?)
	`, accountID, nullableDate(periodStart), nullableDate(periodEnd),
		openingBalance.String(), closingBalance.String(), nullable(name))
	if err != nil {
		return 0, fmt.Errorf("failed to create statement: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get statement id: %v", err)
	}
	d.logger.Debug("Created statement", "id", id, "account_id", accountID)
	return id, nil
}

// ExistingTransactionKeys preloads the dedup tuples of every transaction
// already persisted under the statement.
func (d *DB) ExistingTransactionKeys(ctx context.Context, tx *sql.Tx, statementID int64) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT date, amount, description FROM transactions WHERE statement_id = ?
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing transactions: %v", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var dateStr, description string
		var amount decimal.Decimal
		if err := rows.Scan(&dateStr, &amount, &description); err != nil {
			return nil, fmt.Errorf("failed to scan existing transaction: %v", err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			// A corrupted date must not alias the zero-date dedup key.
			d.logger.Warn("Skipping stored transaction with malformed date",
				"statement_id", statementID, "date", dateStr)
			continue
		}
		keys[DedupKey(date, amount, description)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating existing transactions: %v", err)
	}
	return keys, nil
}

// FindMerchant looks up a merchant by name, case-insensitively.
func (d *DB) FindMerchant(ctx context.Context, tx *sql.Tx, name string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM merchants WHERE name = ? COLLATE NOCASE
	`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find merchant: %v", err)
	}
	return id, true, nil
}

// CreateMerchant inserts a merchant and returns its generated id.
func (d *DB) CreateMerchant(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO merchants (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create merchant: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get merchant id: %v", err)
	}
	d.logger.Debug("Created merchant", "id", id, "name", name)
	return id, nil
}

// InsertTransactions writes the batch of transaction rows within tx.
func (d *DB) InsertTransactions(ctx context.Context, tx *sql.Tx, batch []TransactionRow) error {
	if len(batch) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			statement_id, date, description, amount, currency,
			reference, merchant_id, countervalue, exchange_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction insert: %v", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		_, err := stmt.ExecContext(ctx,
			r.StatementID, r.Date.Format(dateLayout), r.Description, r.Amount.String(),
			nullable(r.Currency), nullable(r.Reference), r.MerchantID,
			nullableDecimal(r.CounterValue), nullableDecimal(r.ExchangeRate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %v", err)
		}
	}
	return nil
}

// CountTransactions returns the number of transactions under a statement.
func (d *DB) CountTransactions(ctx context.Context, statementID int64) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE statement_id = ?
	`, statementID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %v", err)
	}
	return count, nil
}

// CountMerchants returns the number of merchant rows.
func (d *DB) CountMerchants(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merchants`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count merchants: %v", err)
	}
	return count, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// DB returns the underlying database connection
func (d *DB) DB() *sql.DB {
	return d.db
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func nullableDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
