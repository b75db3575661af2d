// Package rules applies user-defined tagging rules to persisted
// transactions. A rule names a pattern, the field it matches against, and
// the tag to attach; rules run in priority order and every matching rule
// applies its tag.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bankstmt/bankstmt/internal/db"
	"github.com/charmbracelet/log"
)

// Matches reports whether the rule matches the transaction fields. Substring
// patterns and regexes both match case-insensitively. A regex that fails to
// compile never matches.
func Matches(r db.Rule, description, reference string) bool {
	value := description
	if r.Field == db.RuleFieldReference {
		value = reference
	}
	if r.IsRegex {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(r.Pattern))
}

// Service runs tagging rules against the store.
type Service struct {
	db     *db.DB
	logger *log.Logger
}

// NewService creates a rule service backed by the database.
func NewService(database *db.DB, logger *log.Logger) *Service {
	return &Service{db: database, logger: logger}
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, r db.Rule) (int64, error) {
	if r.Name == "" {
		return 0, fmt.Errorf("rule name is required")
	}
	if r.Pattern == "" {
		return 0, fmt.Errorf("rule pattern is required")
	}
	if r.Tag == "" {
		return 0, fmt.Errorf("rule tag is required")
	}
	if r.Field == "" {
		r.Field = db.RuleFieldDescription
	}
	if r.Field != db.RuleFieldDescription && r.Field != db.RuleFieldReference {
		return 0, fmt.Errorf("unknown rule field %q", r.Field)
	}
	if r.IsRegex {
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			return 0, fmt.Errorf("invalid rule pattern: %v", err)
		}
	}
	return s.db.CreateRule(ctx, r)
}

// List returns all rules, highest priority first.
func (s *Service) List(ctx context.Context) ([]db.Rule, error) {
	return s.db.ListRules(ctx)
}

// Delete removes a rule by id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.DeleteRule(ctx, id)
}

// ApplyAll runs every rule over the transactions of a statement and returns
// the number of tags attached. Tags already present are left alone.
func (s *Service) ApplyAll(ctx context.Context, statementID int64) (int, error) {
	allRules, err := s.db.ListRules(ctx)
	if err != nil {
		return 0, err
	}
	if len(allRules) == 0 {
		return 0, nil
	}

	transactions, err := s.db.TransactionsForStatement(ctx, statementID)
	if err != nil {
		return 0, err
	}

	tagIDs := make(map[string]int64)
	tagged := 0
	for _, rule := range allRules {
		for _, tx := range transactions {
			if !Matches(rule, tx.Description, tx.Reference) {
				continue
			}
			tagID, ok := tagIDs[strings.ToLower(rule.Tag)]
			if !ok {
				tagID, err = s.db.EnsureTag(ctx, rule.Tag)
				if err != nil {
					return tagged, err
				}
				tagIDs[strings.ToLower(rule.Tag)] = tagID
			}
			added, err := s.db.TagTransaction(ctx, tx.ID, tagID)
			if err != nil {
				return tagged, err
			}
			if added {
				tagged++
			}
		}
	}

	s.logger.Debug("Applied tagging rules", "statement_id", statementID,
		"rules", len(allRules), "tagged", tagged)
	return tagged, nil
}
