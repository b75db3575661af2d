package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Rule fields a pattern can match against.
const (
	RuleFieldDescription = "description"
	RuleFieldReference   = "reference"
)

// Rule is a user-defined tagging rule. Rules with higher priority run first.
type Rule struct {
	ID       int64
	Name     string
	Field    string
	Pattern  string
	IsRegex  bool
	Priority int
	Tag      string
}

// CreateRule inserts a tagging rule and returns its generated id.
func (d *DB) CreateRule(ctx context.Context, r Rule) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO transaction_rules (name, field, pattern, is_regex, priority, tag)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Name, r.Field, r.Pattern, r.IsRegex, r.Priority, r.Tag)
	if err != nil {
		return 0, fmt.Errorf("failed to create rule: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rule id: %v", err)
	}
	d.logger.Debug("Created rule", "id", id, "name", r.Name, "tag", r.Tag)
	return id, nil
}

// ListRules returns all tagging rules, highest priority first.
func (d *DB) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, field, pattern, is_regex, priority, tag
		FROM transaction_rules
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %v", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Field, &r.Pattern, &r.IsRegex, &r.Priority, &r.Tag); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %v", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %v", err)
	}
	return rules, nil
}

// DeleteRule removes a tagging rule by id.
func (d *DB) DeleteRule(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM transaction_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// EnsureTag returns the id of the named tag, creating it if needed. Tag
// names are case-insensitive.
func (d *DB) EnsureTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id FROM tags WHERE name = ? COLLATE NOCASE
	`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to find tag: %v", err)
	}

	res, err := d.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag: %v", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get tag id: %v", err)
	}
	return id, nil
}

// TagTransaction attaches a tag to a transaction. Tagging the same
// transaction twice is a no-op.
func (d *DB) TagTransaction(ctx context.Context, transactionID, tagID int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transaction_tags (transaction_id, tag_id) VALUES (?, ?)
	`, transactionID, tagID)
	if err != nil {
		return false, fmt.Errorf("failed to tag transaction: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %v", err)
	}
	return affected > 0, nil
}

// TaggableTransaction carries the matchable fields of a persisted
// transaction.
type TaggableTransaction struct {
	ID          int64
	Description string
	Reference   string
}

// TransactionsForStatement returns the transactions persisted under a
// statement, in insertion order.
func (d *DB) TransactionsForStatement(ctx context.Context, statementID int64) ([]TaggableTransaction, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, description, COALESCE(reference, '')
		FROM transactions WHERE statement_id = ? ORDER BY id
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load statement transactions: %v", err)
	}
	defer rows.Close()

	var transactions []TaggableTransaction
	for rows.Next() {
		var t TaggableTransaction
		if err := rows.Scan(&t.ID, &t.Description, &t.Reference); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %v", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %v", err)
	}
	return transactions, nil
}

// TransactionTags returns the tag names attached to a transaction.
func (d *DB) TransactionTags(ctx context.Context, transactionID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN transaction_tags tt ON tt.tag_id = t.id
		WHERE tt.transaction_id = ?
		ORDER BY t.name
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction tags: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %v", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %v", err)
	}
	return names, nil
}
