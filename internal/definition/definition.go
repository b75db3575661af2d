// Package definition holds the declarative, JSON-configured descriptions of
// how to recognize a bank's statement and extract fields from it. One JSON
// document per bank, loaded once at startup.
package definition

import (
	"fmt"
	"regexp"
	"strings"
)

// Detail field keys a detail rule may target.
const (
	FieldReference      = "reference"
	FieldMerchant       = "merchant"
	FieldOriginalAmount = "originalAmount"
	FieldExchangeRate   = "exchangeRate"
)

// Definition describes how to recognize and parse one bank's statements.
type Definition struct {
	BankName    string          `json:"bankName"`
	Currency    string          `json:"currency,omitempty"`
	Recognition Recognition     `json:"recognition"`
	AccountInfo AccountInfo     `json:"accountInfo"`
	Period      Period          `json:"period"`
	Transaction TransactionRule `json:"transaction"`

	// compiled patterns, populated by Compile
	accountNumberRe *regexp.Regexp
	accountHolderRe *regexp.Regexp
	periodStartRe   *regexp.Regexp
	periodEndRe     *regexp.Regexp
	mainRe          *regexp.Regexp
}

// Recognition decides whether a definition applies to a piece of statement
// text: any keyword present as a literal substring is a match.
type Recognition struct {
	Keywords             []string `json:"keywords"`
	AccountNumberPattern string   `json:"accountNumberPattern,omitempty"`
}

// AccountInfo carries optional single-capture-group patterns for account
// metadata.
type AccountInfo struct {
	AccountNumber string `json:"accountNumber,omitempty"`
	AccountHolder string `json:"accountHolder,omitempty"`
}

// Period carries optional single-capture-group patterns whose matches feed
// date parsing.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// TransactionRule describes how transaction lines are recognized. MainPattern
// is matched against each line of text; Fields maps semantic field names
// (date, description, amount) to capture group indices of MainPattern.
// Details are applied to the lines immediately following a main-line match.
type TransactionRule struct {
	MainPattern string         `json:"mainPattern"`
	Fields      map[string]int `json:"fields"`
	Details     []Detail       `json:"details,omitempty"`
}

// Detail enriches the current transaction from a line following the main
// line. Field names one of the Field* constants.
type Detail struct {
	Label   string `json:"label"`
	Field   string `json:"field"`
	Pattern string `json:"pattern"`

	re *regexp.Regexp
}

// Compile compiles every regex the definition declares. A definition that
// fails to compile is unusable and is skipped by the loader.
func (d *Definition) Compile() error {
	var err error
	if d.Transaction.MainPattern == "" {
		return fmt.Errorf("definition %q has no transaction mainPattern", d.BankName)
	}
	// Transaction lines match case-insensitively, field patterns as written.
	if d.mainRe, err = regexp.Compile("(?i)" + d.Transaction.MainPattern); err != nil {
		return fmt.Errorf("bad mainPattern for %q: %w", d.BankName, err)
	}
	if d.accountNumberRe, err = compileOptional(d.AccountInfo.AccountNumber); err != nil {
		return fmt.Errorf("bad accountNumber pattern for %q: %w", d.BankName, err)
	}
	if d.accountHolderRe, err = compileOptional(d.AccountInfo.AccountHolder); err != nil {
		return fmt.Errorf("bad accountHolder pattern for %q: %w", d.BankName, err)
	}
	if d.periodStartRe, err = compileOptional(d.Period.Start); err != nil {
		return fmt.Errorf("bad period start pattern for %q: %w", d.BankName, err)
	}
	if d.periodEndRe, err = compileOptional(d.Period.End); err != nil {
		return fmt.Errorf("bad period end pattern for %q: %w", d.BankName, err)
	}
	for i := range d.Transaction.Details {
		det := &d.Transaction.Details[i]
		if det.re, err = regexp.Compile(det.Pattern); err != nil {
			return fmt.Errorf("bad detail pattern %q for %q: %w", det.Label, d.BankName, err)
		}
	}
	return nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	// Field patterns search the whole statement text, so ^ and $ anchor to
	// line boundaries.
	return regexp.Compile("(?m)" + pattern)
}

// Matches reports whether any recognition keyword occurs in the text.
func (d *Definition) Matches(text string) bool {
	for _, kw := range d.Recognition.Keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// AccountNumberRe returns the compiled account number pattern, or nil.
func (d *Definition) AccountNumberRe() *regexp.Regexp { return d.accountNumberRe }

// AccountHolderRe returns the compiled account holder pattern, or nil.
func (d *Definition) AccountHolderRe() *regexp.Regexp { return d.accountHolderRe }

// PeriodStartRe returns the compiled period start pattern, or nil.
func (d *Definition) PeriodStartRe() *regexp.Regexp { return d.periodStartRe }

// PeriodEndRe returns the compiled period end pattern, or nil.
func (d *Definition) PeriodEndRe() *regexp.Regexp { return d.periodEndRe }

// MainRe returns the compiled case-insensitive transaction line pattern.
func (d *Definition) MainRe() *regexp.Regexp { return d.mainRe }

// Re returns the compiled detail pattern.
func (det *Detail) Re() *regexp.Regexp { return det.re }
