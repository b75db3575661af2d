// Package ruledriven implements the definition-driven statement parser: it
// applies the loaded bank definitions against extracted statement text and
// produces a structured statement for the first definition that recognizes
// the document.
package ruledriven

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bankstmt/bankstmt/internal/definition"
	"github.com/bankstmt/bankstmt/internal/textutil"
	"github.com/bankstmt/bankstmt/internal/types"
	"github.com/charmbracelet/log"
)

// ErrNoDefinition is returned when no loaded definition recognizes the text.
// It is distinct from a successful parse with zero transactions.
var ErrNoDefinition = errors.New("no bank definition matches statement text")

// Parser applies declarative bank definitions to statement text.
type Parser struct {
	definitions     []*definition.Definition
	defaultCurrency string
	logger          *log.Logger
}

// New creates a rule-driven parser over the given definitions. Definitions
// are consulted in slice order; the first match wins.
func New(definitions []*definition.Definition, defaultCurrency string, logger *log.Logger) *Parser {
	return &Parser{
		definitions:     definitions,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// HasDefinitions reports whether any definitions are loaded. With none the
// rule-driven parser is effectively disabled.
func (p *Parser) HasDefinitions() bool {
	return len(p.definitions) > 0
}

// Parse finds the first definition recognizing the text and extracts a
// statement from it. ErrNoDefinition is returned when nothing matches.
func (p *Parser) Parse(text string) (*types.Statement, error) {
	def := p.findMatchingDefinition(text)
	if def == nil {
		return nil, ErrNoDefinition
	}

	p.logger.Debug("Definition matched statement text", "bank", def.BankName)

	st := &types.Statement{
		BankName: def.BankName,
		Currency: def.Currency,
	}
	if st.Currency == "" {
		st.Currency = p.defaultCurrency
	}

	st.AccountNumber = extractField(def.AccountNumberRe(), text)
	st.AccountHolderName = extractField(def.AccountHolderRe(), text)
	st.PeriodStart = textutil.ParseDate(extractField(def.PeriodStartRe(), text))
	st.PeriodEnd = textutil.ParseDate(extractField(def.PeriodEndRe(), text))
	st.Transactions = p.extractTransactions(def, text)

	return st, nil
}

// findMatchingDefinition returns the first definition, in load order, with a
// recognition keyword present in the text. Keyword overlap between
// definitions is resolved purely by load order.
func (p *Parser) findMatchingDefinition(text string) *definition.Definition {
	for _, def := range p.definitions {
		if def.Matches(text) {
			return def
		}
	}
	return nil
}

// extractField returns the first capture group of the first match, or empty
// when the pattern is nil, does not match, or has no capture groups.
func extractField(re *regexp.Regexp, text string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractTransactions walks the text line by line. A line matching the main
// pattern starts a transaction; the lines after it are scanned against the
// detail rules until a blank line or the next main-line match.
func (p *Parser) extractTransactions(def *definition.Definition, text string) []types.Transaction {
	lines := strings.Split(text, "\n")
	mainRe := def.MainRe()

	var transactions []types.Transaction
	for i, line := range lines {
		m := mainRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		tx := buildTransaction(def.Transaction.Fields, m)
		p.scanDetails(def, lines, i+1, &tx)
		tx.Type = types.TypeForAmount(tx.Amount)
		transactions = append(transactions, tx)
	}
	return transactions
}

// buildTransaction maps main-pattern capture groups to semantic fields via
// the definition's field-index table. Indices pointing at groups the pattern
// does not have degrade to absent fields.
func buildTransaction(fields map[string]int, groups []string) types.Transaction {
	var tx types.Transaction
	for field, idx := range fields {
		if idx <= 0 || idx >= len(groups) {
			continue
		}
		value := strings.TrimSpace(groups[idx])
		switch field {
		case "date":
			tx.Date = textutil.ParseDate(value)
		case "description":
			tx.Description = value
		case "amount":
			tx.Amount = textutil.ParseAmount(value)
		}
	}
	return tx
}

// scanDetails applies every detail rule to the lines following a main-line
// match. The window ends at the first blank line or the next main-line
// match. When several rules target the same field the last match wins.
func (p *Parser) scanDetails(def *definition.Definition, lines []string, start int, tx *types.Transaction) {
	if len(def.Transaction.Details) == 0 {
		return
	}

	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			return
		}
		if def.MainRe().MatchString(line) {
			return
		}

		for _, det := range def.Transaction.Details {
			m := det.Re().FindStringSubmatch(line)
			if len(m) < 2 {
				continue
			}
			applyDetail(tx, det.Field, strings.TrimSpace(m[1]))
		}
	}
}

func applyDetail(tx *types.Transaction, field, value string) {
	switch field {
	case definition.FieldReference:
		tx.Reference = value
	case definition.FieldMerchant:
		tx.MerchantName = value
	case definition.FieldOriginalAmount:
		amount := textutil.ParseAmount(value)
		tx.CounterValue = &amount
	case definition.FieldExchangeRate:
		rate := textutil.ParseAmount(value)
		tx.ExchangeRate = &rate
	}
}
