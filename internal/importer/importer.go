// Package importer persists parsed statements. Each import runs inside a
// single database transaction: either the account, statement and all of its
// transactions commit together, or none of them do.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bankstmt/bankstmt/internal/db"
	"github.com/bankstmt/bankstmt/internal/types"
	"github.com/charmbracelet/log"
)

// Importer writes parsed statements to the store.
type Importer struct {
	db     *db.DB
	logger *log.Logger
}

// New creates a new importer.
func New(database *db.DB, logger *log.Logger) *Importer {
	return &Importer{db: database, logger: logger}
}

// ImportStatement persists a parsed statement and returns the number of
// transactions actually inserted. Transactions whose (date, amount,
// description) tuple already exists under the statement are skipped.
// Concurrent imports can race on account/merchant creation; the unique
// constraints catch that and the whole import is retried a bounded number
// of times before the error propagates.
func (i *Importer) ImportStatement(ctx context.Context, st *types.Statement, statementName string) (int, error) {
	var imported int

	err := retry.Do(
		func() error {
			var err error
			imported, err = i.importOnce(ctx, st, statementName)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetriable),
	)
	if err != nil {
		return 0, err
	}

	skipped := len(st.Transactions) - imported
	i.logger.Info("Imported statement",
		"bank", st.BankName,
		"account", st.AccountNumber,
		"imported", imported,
		"skipped", skipped)
	return imported, nil
}

func (i *Importer) importOnce(ctx context.Context, st *types.Statement, statementName string) (imported int, err error) {
	tx, err := i.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Account upsert by natural key; persisted immediately so its
	// generated id is usable below.
	account, err := i.db.FindAccount(ctx, tx, st.AccountNumber)
	if err != nil {
		return 0, err
	}
	var accountID int64
	if account != nil {
		accountID = account.ID
	} else {
		accountID, err = i.db.CreateAccount(ctx, tx, st.AccountNumber, st.AccountHolderName)
		if err != nil {
			return 0, err
		}
	}

	// Statements are never deduplicated; every import creates a fresh row.
	statementID, err := i.db.CreateStatement(ctx, tx, accountID,
		st.PeriodStart, st.PeriodEnd, st.OpeningBalance, st.ClosingBalance, statementName)
	if err != nil {
		return 0, err
	}

	existing, err := i.db.ExistingTransactionKeys(ctx, tx, statementID)
	if err != nil {
		return 0, err
	}

	// Merchant lookups are cached for the duration of this import only.
	merchants := make(map[string]int64)

	var batch []db.TransactionRow
	for _, t := range st.Transactions {
		row := db.TransactionRow{
			StatementID:  statementID,
			Date:         t.Date,
			Description:  t.Description,
			Amount:       t.Amount,
			Currency:     st.Currency,
			Reference:    t.Reference,
			CounterValue: t.CounterValue,
			ExchangeRate: t.ExchangeRate,
		}

		key := row.DedupKey()
		if _, dup := existing[key]; dup {
			i.logger.Debug("Skipping duplicate transaction", "key", key)
			continue
		}
		existing[key] = struct{}{}

		if t.MerchantName != "" {
			merchantID, err := i.resolveMerchant(ctx, tx, merchants, t.MerchantName)
			if err != nil {
				return 0, err
			}
			row.MerchantID = &merchantID
		}

		batch = append(batch, row)
	}

	if err := i.db.InsertTransactions(ctx, tx, batch); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %v", err)
	}
	return len(batch), nil
}

// resolveMerchant returns the merchant id for a name, consulting the
// per-import cache, then the store, creating the merchant when absent.
func (i *Importer) resolveMerchant(ctx context.Context, tx *sql.Tx, cache map[string]int64, name string) (int64, error) {
	cacheKey := strings.ToLower(name)
	if id, ok := cache[cacheKey]; ok {
		return id, nil
	}

	id, found, err := i.db.FindMerchant(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		id, err = i.db.CreateMerchant(ctx, tx, name)
		if err != nil {
			return 0, err
		}
	}

	cache[cacheKey] = id
	return id, nil
}

// isRetriable reports whether the error is worth retrying the whole import
// for: write contention, or a unique-constraint violation from a concurrent
// import creating the same account or merchant. On the retry the lookup
// sees the winner's row and the import proceeds normally.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "database is locked")
}
