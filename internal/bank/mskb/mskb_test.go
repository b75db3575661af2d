package mskb

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *MSKB {
	return New(log.New(io.Discard))
}

const fixtureStatement = `Moscow Bank (MSKB)
Счет: 40817810000001234567
Владелец счета: ИВАНОВ ИВАН ИВАНОВИЧ
за период 01.03.2024 - 31.03.2024
входящий остаток: 10 000,00
исходящий остаток: 8 500,50

05.03.2024 оплата услуг связи 500,00
10.03.2024 зачисление зарплаты 50 000,00
15.03.2024 снятие наличных 2 000,00
20.03.2024 перевод другу -1 500,00
`

func TestCanParse(t *testing.T) {
	p := newTestParser()

	assert.True(t, p.CanParse("mskb_statement.pdf", ""))
	assert.True(t, p.CanParse("statement.pdf", "mskb"))
	assert.True(t, p.CanParse("statement.txt", "MSKB"))
	assert.False(t, p.CanParse("statement.pdf", "other-bank"))
	assert.False(t, p.CanParse("mskb_statement.csv", "MSKB"))
}

func TestParseAccountInfo(t *testing.T) {
	st, err := newTestParser().Parse(fixtureStatement)
	require.NoError(t, err)

	assert.Equal(t, "Moscow Bank (MSKB)", st.BankName)
	assert.Equal(t, "RUB", st.Currency)
	assert.Equal(t, "40817810000001234567", st.AccountNumber)
	assert.Equal(t, "ИВАНОВ ИВАН ИВАНОВИЧ", st.AccountHolderName)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), st.PeriodStart)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), st.PeriodEnd)
	assert.Equal(t, "10000", st.OpeningBalance.String())
	assert.Equal(t, "8500.5", st.ClosingBalance.String())
}

func TestParseTransactionsWithSignCorrection(t *testing.T) {
	st, err := newTestParser().Parse(fixtureStatement)
	require.NoError(t, err)
	require.Len(t, st.Transactions, 4)

	// "оплата" is a debit keyword: the positive amount is negated.
	assert.Equal(t, "-500", st.Transactions[0].Amount.String())
	assert.Equal(t, "debit", string(st.Transactions[0].Type))

	// No debit keyword: positive amount stays a credit.
	assert.Equal(t, "50000", st.Transactions[1].Amount.String())
	assert.Equal(t, "credit", string(st.Transactions[1].Type))

	// "снятие" is a debit keyword.
	assert.Equal(t, "-2000", st.Transactions[2].Amount.String())

	// Already negative: the literal sign is trusted.
	assert.Equal(t, "-1500", st.Transactions[3].Amount.String())
	assert.Equal(t, "debit", string(st.Transactions[3].Type))
}

func TestParsePartialExtraction(t *testing.T) {
	// No account info, no period, no balances: parsing still succeeds with
	// whatever could be found.
	st, err := newTestParser().Parse("05.03.2024 оплата услуг 500,00\n")
	require.NoError(t, err)

	assert.Empty(t, st.AccountNumber)
	assert.Empty(t, st.AccountHolderName)
	assert.True(t, st.PeriodStart.IsZero())
	assert.True(t, st.OpeningBalance.IsZero())
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "-500", st.Transactions[0].Amount.String())
}

func TestParseEmptyText(t *testing.T) {
	st, err := newTestParser().Parse("")
	require.NoError(t, err)
	assert.Empty(t, st.Transactions)
}
