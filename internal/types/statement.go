package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// TypeForAmount derives the transaction type from the signed amount.
// Zero counts as a debit.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.IsPositive() {
		return TransactionTypeCredit
	}
	return TransactionTypeDebit
}

// Transaction represents a single parsed statement transaction, independent
// of the bank it came from. Amount is signed: negative means a debit.
type Transaction struct {
	Date         time.Time        `json:"date"`
	Description  string           `json:"description"`
	Amount       decimal.Decimal  `json:"amount"`
	Type         TransactionType  `json:"type"`
	Reference    string           `json:"reference,omitempty"`
	MerchantName string           `json:"merchant_name,omitempty"`
	CounterValue *decimal.Decimal `json:"counter_value,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
}

// Statement represents a fully parsed bank statement. Fields a parser could
// not extract are left at their zero value; PeriodStart/PeriodEnd use the
// zero time.Time as the "unset" sentinel.
type Statement struct {
	BankName          string          `json:"bank_name"`
	AccountNumber     string          `json:"account_number"`
	AccountHolderName string          `json:"account_holder_name"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	ClosingBalance    decimal.Decimal `json:"closing_balance"`
	Currency          string          `json:"currency"`
	Transactions      []Transaction   `json:"transactions"`
}
