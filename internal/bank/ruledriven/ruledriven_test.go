package ruledriven

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/bankstmt/bankstmt/internal/definition"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefinition(t *testing.T, raw string) *definition.Definition {
	t.Helper()
	var def definition.Definition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))
	require.NoError(t, def.Compile())
	return &def
}

const testBankDefinition = `{
	"bankName": "Test Bank",
	"recognition": {"keywords": ["TEST BANK"]},
	"accountInfo": {
		"accountNumber": "Account:\\s*(\\d+)",
		"accountHolder": "Holder:\\s*(.+)"
	},
	"period": {
		"start": "From\\s*(\\S+)",
		"end": "To\\s*(\\S+)"
	},
	"transaction": {
		"mainPattern": "^(\\d{2}\\.\\d{2}\\.\\d{4})\\s+(.+?)\\s+(-?\\d+\\.\\d{2})$",
		"fields": {"date": 1, "description": 2, "amount": 3},
		"details": [
			{"label": "Reference", "field": "reference", "pattern": "Ref:\\s*(\\S+)"},
			{"label": "Merchant", "field": "merchant", "pattern": "Merchant:\\s*(.+)"}
		]
	}
}`

func newTestParser(t *testing.T, defs ...*definition.Definition) *Parser {
	return New(defs, "RUB", log.New(io.Discard))
}

func TestParseScenario(t *testing.T) {
	// The canonical two-transaction scenario: one main line with a detail
	// line, a blank separator, then a second main line without details.
	text := "TEST BANK\n" +
		"15.03.2024 Grocery Store -45.99\n" +
		"Ref: ABC123\n" +
		"\n" +
		"16.03.2024 Salary 2500.00\n"

	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse(text)
	require.NoError(t, err)

	assert.Equal(t, "Test Bank", st.BankName)
	require.Len(t, st.Transactions, 2)

	first := st.Transactions[0]
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "Grocery Store", first.Description)
	assert.Equal(t, "-45.99", first.Amount.String())
	assert.Equal(t, "ABC123", first.Reference)

	second := st.Transactions[1]
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), second.Date)
	assert.Equal(t, "Salary", second.Description)
	assert.Equal(t, "2500", second.Amount.String())
	assert.Empty(t, second.Reference)
}

func TestParseDetailWindowStopsAtBlankLine(t *testing.T) {
	text := "TEST BANK\n" +
		"15.03.2024 Grocery Store -45.99\n" +
		"Ref: ABC123\n" +
		"Merchant: Corner Grocery\n" +
		"\n" +
		"Ref: SHOULD-NOT-APPLY\n" +
		"16.03.2024 Salary 2500.00\n"

	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse(text)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)

	assert.Equal(t, "ABC123", st.Transactions[0].Reference)
	assert.Equal(t, "Corner Grocery", st.Transactions[0].MerchantName)
	assert.Empty(t, st.Transactions[1].Reference)
	assert.Empty(t, st.Transactions[1].MerchantName)
}

func TestParseDetailWindowStopsAtNextMainLine(t *testing.T) {
	text := "TEST BANK\n" +
		"15.03.2024 Grocery Store -45.99\n" +
		"16.03.2024 Salary 2500.00\n" +
		"Ref: BELONGS-TO-SECOND\n"

	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse(text)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)

	assert.Empty(t, st.Transactions[0].Reference)
	assert.Equal(t, "BELONGS-TO-SECOND", st.Transactions[1].Reference)
}

func TestParseDetailOverwriteLastWins(t *testing.T) {
	raw := `{
		"bankName": "Overwrite Bank",
		"recognition": {"keywords": ["OVERWRITE"]},
		"transaction": {
			"mainPattern": "^(\\d{2}\\.\\d{2}\\.\\d{4})\\s+(.+?)\\s+(-?\\d+\\.\\d{2})$",
			"fields": {"date": 1, "description": 2, "amount": 3},
			"details": [
				{"label": "Primary ref", "field": "reference", "pattern": "Ref:\\s*(\\S+)"},
				{"label": "Alt ref", "field": "reference", "pattern": "AltRef:\\s*(\\S+)"}
			]
		}
	}`
	text := "OVERWRITE\n" +
		"15.03.2024 Something -1.00\n" +
		"Ref: FIRST\n" +
		"AltRef: SECOND\n"

	p := newTestParser(t, mustDefinition(t, raw))
	st, err := p.Parse(text)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "SECOND", st.Transactions[0].Reference)
}

func TestParseAccountInfoAndPeriod(t *testing.T) {
	text := "TEST BANK\n" +
		"Account: 12345678901234567890\n" +
		"Holder: IVAN PETROV\n" +
		"From 01.03.2024\n" +
		"To 31.03.2024\n" +
		"15.03.2024 Grocery Store -45.99\n"

	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse(text)
	require.NoError(t, err)

	assert.Equal(t, "12345678901234567890", st.AccountNumber)
	assert.Equal(t, "IVAN PETROV", st.AccountHolderName)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), st.PeriodStart)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), st.PeriodEnd)
	assert.Equal(t, "RUB", st.Currency)
}

func TestParseNoDefinitionMatch(t *testing.T) {
	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse("statement from some other bank entirely")
	assert.Nil(t, st)
	assert.ErrorIs(t, err, ErrNoDefinition)
}

func TestParseMatchedButZeroTransactions(t *testing.T) {
	// Recognition succeeds but no line matches the main pattern. This is a
	// successful parse with an empty transaction list, not ErrNoDefinition.
	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse("TEST BANK\nno transaction lines here\n")
	require.NoError(t, err)
	assert.Empty(t, st.Transactions)
}

func TestParseFirstDefinitionWins(t *testing.T) {
	alpha := mustDefinition(t, `{
		"bankName": "Alpha",
		"recognition": {"keywords": ["SHARED KEYWORD"]},
		"transaction": {"mainPattern": "x", "fields": {}}
	}`)
	beta := mustDefinition(t, `{
		"bankName": "Beta",
		"recognition": {"keywords": ["SHARED KEYWORD"]},
		"transaction": {"mainPattern": "x", "fields": {}}
	}`)

	p := newTestParser(t, alpha, beta)
	st, err := p.Parse("SHARED KEYWORD appears here")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", st.BankName)
}

func TestParseMissingCaptureGroupFailsSoft(t *testing.T) {
	// The field table references group 5, which the main pattern does not
	// have. The field degrades to absent instead of erroring.
	raw := `{
		"bankName": "Sparse Bank",
		"recognition": {"keywords": ["SPARSE"]},
		"transaction": {
			"mainPattern": "^(\\d{2}\\.\\d{2}\\.\\d{4})\\s+(.+?)\\s+(-?\\d+\\.\\d{2})$",
			"fields": {"date": 1, "description": 5, "amount": 3}
		}
	}`
	p := newTestParser(t, mustDefinition(t, raw))
	st, err := p.Parse("SPARSE\n15.03.2024 Grocery Store -45.99\n")
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)

	tx := st.Transactions[0]
	assert.Empty(t, tx.Description)
	assert.Equal(t, "-45.99", tx.Amount.String())
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), tx.Date)
}

func TestParseTransactionTypeFromSign(t *testing.T) {
	text := "TEST BANK\n" +
		"15.03.2024 Grocery Store -45.99\n" +
		"\n" +
		"16.03.2024 Salary 2500.00\n"
	p := newTestParser(t, mustDefinition(t, testBankDefinition))
	st, err := p.Parse(text)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, "debit", string(st.Transactions[0].Type))
	assert.Equal(t, "credit", string(st.Transactions[1].Type))
}
