// Package bank defines the parser capability interface and the service that
// picks a parser for an incoming statement. Declarative definitions are
// always tried first; fixed-logic bank parsers are the fallback.
package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bankstmt/bankstmt/internal/bank/ruledriven"
	"github.com/bankstmt/bankstmt/internal/types"
	"github.com/charmbracelet/log"
)

// ErrNoParser is returned when no registered parser can handle the input.
var ErrNoParser = errors.New("no supported parser")

// Parser is one bank-specific statement parser. Parse operates on
// pre-extracted, line-ordered statement text and is a pure CPU-bound
// transformation.
type Parser interface {
	// BankName returns the bank token this parser handles
	BankName() string

	// CanParse reports whether the parser handles this file/bank hint
	CanParse(fileName, bankHint string) bool

	// Parse extracts a structured statement from statement text
	Parse(text string) (*types.Statement, error)
}

// RuleDrivenParser is the definition-driven parser the service consults
// before any registered Parser. Implemented by ruledriven.Parser.
type RuleDrivenParser interface {
	HasDefinitions() bool
	Parse(text string) (*types.Statement, error)
}

// Service selects and runs statement parsers. Registered parsers are kept in
// registration order; the first one whose CanParse accepts the input wins.
type Service struct {
	ruleDriven RuleDrivenParser
	parsers    []Parser
	logger     *log.Logger
}

// NewService creates a parser selection service. ruleDriven may be nil to
// disable definition-driven parsing entirely.
func NewService(ruleDriven RuleDrivenParser, logger *log.Logger) *Service {
	return &Service{
		ruleDriven: ruleDriven,
		logger:     logger,
	}
}

// Register appends a fixed-logic parser. Registration order is selection
// priority order.
func (s *Service) Register(p Parser) {
	s.parsers = append(s.parsers, p)
}

// SupportedBanks lists the bank tokens of all registered parsers.
func (s *Service) SupportedBanks() []string {
	names := make([]string, 0, len(s.parsers))
	for _, p := range s.parsers {
		names = append(names, p.BankName())
	}
	return names
}

// SelectParser returns the first registered parser, in registration order,
// that can handle the file. The error names the supported banks so callers
// can report something actionable.
func (s *Service) SelectParser(fileName, bankHint string) (Parser, error) {
	for _, p := range s.parsers {
		if p.CanParse(fileName, bankHint) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w for bank %q (file %q), supported banks: %s",
		ErrNoParser, bankHint, fileName, strings.Join(s.SupportedBanks(), ", "))
}

// CanParse reports whether any registered parser handles the file.
func (s *Service) CanParse(fileName, bankHint string) bool {
	_, err := s.SelectParser(fileName, bankHint)
	return err == nil
}

// ParseStatement parses statement text. The rule-driven parser runs first
// whenever definitions are loaded, regardless of the bank hint; fixed-logic
// parsers are only consulted when it finds no matching definition or a
// matching definition yields zero transactions.
func (s *Service) ParseStatement(text, fileName, bankHint string) (*types.Statement, error) {
	if s.ruleDriven != nil && s.ruleDriven.HasDefinitions() {
		st, err := s.ruleDriven.Parse(text)
		switch {
		case err == nil && len(st.Transactions) > 0:
			s.logger.Info("Parsed statement via bank definition",
				"bank", st.BankName, "transactions", len(st.Transactions))
			return st, nil
		case err == nil:
			s.logger.Warn("Definition matched but yielded no transactions, falling back",
				"bank", st.BankName, "file", fileName)
		case errors.Is(err, ruledriven.ErrNoDefinition):
			s.logger.Debug("No bank definition matched, falling back", "file", fileName)
		default:
			return nil, err
		}
	}

	p, err := s.SelectParser(fileName, bankHint)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Using fixed parser", "bank", p.BankName(), "file", fileName)
	return p.Parse(text)
}
