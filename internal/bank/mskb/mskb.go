// Package mskb implements the hard-coded statement parser for Moscow Bank
// (MSKB), used as the fallback when no declarative definition recognizes a
// statement. Extraction is best-effort: any field the regex batteries cannot
// find stays at its zero value.
package mskb

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bankstmt/bankstmt/internal/bank"
	"github.com/bankstmt/bankstmt/internal/textutil"
	"github.com/bankstmt/bankstmt/internal/types"
	"github.com/charmbracelet/log"
)

const bankToken = "MSKB"

var accountNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Счет[:\s]*(\d{20})`),
	regexp.MustCompile(`(?i)Account[:\s]*(\d{20})`),
	regexp.MustCompile(`(?i)р/с[:\s]*(\d{20})`),
	regexp.MustCompile(`\b\d{20}\b`),
}

var holderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Владелец\s*счета[:\s]*([^\n\r]+)`),
	regexp.MustCompile(`(?i)Account\s*holder[:\s]*([^\n\r]+)`),
	regexp.MustCompile(`(?i)Клиент[:\s]*([^\n\r]+)`),
	regexp.MustCompile(`(?i)ФИО[:\s]*([^\n\r]+)`),
}

var periodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)период\s*с\s*(\d{2}\.\d{2}\.\d{4})\s*по\s*(\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`(?i)period\s*from\s*(\d{2}\.\d{2}\.\d{4})\s*to\s*(\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`(?i)за\s*период\s*(\d{2}\.\d{2}\.\d{4})\s*-\s*(\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s*-\s*(\d{2}\.\d{2}\.\d{4})`),
}

var openingBalancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)остаток\s*на\s*начало[:\s]*([0-9\s,.-]+)`),
	regexp.MustCompile(`(?i)opening\s*balance[:\s]*([0-9\s,.-]+)`),
	regexp.MustCompile(`(?i)входящий\s*остаток[:\s]*([0-9\s,.-]+)`),
	regexp.MustCompile(`(?i)сальдо\s*на\s*начало[:\s]*([0-9\s,.-]+)`),
}

var closingBalancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)остаток\s*на\s*конец[:\s]*([0-9\s,.-]+)`),
	regexp.MustCompile(`(?i)closing\s*balance[:\s]*([0-9\s,.-]+)`),
	regexp.MustCompile(`(?i)исходящий\s*остаток[:\s]*([0-9\s,.-]+)`),
	regexp.MustCompile(`(?i)сальдо\s*на\s*конец[:\s]*([0-9\s,.-]+)`),
}

// transactionPattern is the generic "date description signed-amount" line.
var transactionPattern = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s+([^0-9-]+)\s+(-?[0-9\s,.]+)`)

// debitKeywords force a positive amount negative when the description makes
// clear the transaction is a debit.
var debitKeywords = []string{
	"списание", "платеж", "оплата", "комиссия", "снятие",
	"withdrawal", "payment", "fee",
}

// MSKB is the fixed-logic Moscow Bank statement parser.
type MSKB struct {
	logger *log.Logger
}

// New creates a new MSKB parser.
func New(logger *log.Logger) *MSKB {
	return &MSKB{logger: logger}
}

// BankName returns the bank token this parser handles.
func (m *MSKB) BankName() string {
	return bankToken
}

// CanParse reports whether this parser handles the given file. The file must
// be a PDF (or already-extracted text) and either the bank hint or the file
// name must carry the MSKB token.
func (m *MSKB) CanParse(fileName, bankHint string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".pdf" && ext != ".txt" {
		return false
	}
	return strings.Contains(strings.ToUpper(bankHint), bankToken) ||
		strings.Contains(strings.ToUpper(fileName), bankToken)
}

// Parse extracts a statement from MSKB statement text. Fields that cannot be
// located are left at their defaults; Parse itself never fails on partial
// extraction.
func (m *MSKB) Parse(text string) (*types.Statement, error) {
	st := &types.Statement{
		BankName: "Moscow Bank (MSKB)",
		Currency: "RUB",
	}

	st.AccountNumber = firstMatch(accountNumberPatterns, text)
	st.AccountHolderName = firstMatch(holderPatterns, text)

	for _, re := range periodPatterns {
		if g := re.FindStringSubmatch(text); len(g) > 2 {
			st.PeriodStart = textutil.ParseDate(g[1])
			st.PeriodEnd = textutil.ParseDate(g[2])
			break
		}
	}

	st.OpeningBalance = textutil.ParseAmount(firstMatch(openingBalancePatterns, text))
	st.ClosingBalance = textutil.ParseAmount(firstMatch(closingBalancePatterns, text))
	st.Transactions = m.parseTransactions(text)

	m.logger.Debug("Parsed MSKB statement",
		"account", st.AccountNumber,
		"transactions", len(st.Transactions))

	return st, nil
}

// firstMatch returns the first capture group of the first pattern that
// matches, falling back to the whole match for group-less patterns.
func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[0])
	}
	return ""
}

func (m *MSKB) parseTransactions(text string) []types.Transaction {
	var transactions []types.Transaction

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		g := transactionPattern.FindStringSubmatch(line)
		if len(g) < 4 {
			continue
		}

		tx := types.Transaction{
			Date:        textutil.ParseDate(g[1]),
			Description: strings.TrimSpace(g[2]),
			Amount:      textutil.ParseAmount(g[3]),
		}

		// Keyword correction only flips positive amounts that should have
		// been debits; literal negative signs are trusted as-is.
		if tx.Amount.IsPositive() && shouldBeDebit(tx.Description) {
			tx.Amount = tx.Amount.Neg()
		}
		tx.Type = types.TypeForAmount(tx.Amount)

		transactions = append(transactions, tx)
	}

	m.logger.Debug("Found MSKB transactions", "count", len(transactions))
	return transactions
}

func shouldBeDebit(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range debitKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Ensure MSKB implements the parser interface
var _ bank.Parser = (*MSKB)(nil)
