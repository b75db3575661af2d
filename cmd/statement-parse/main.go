package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/bankstmt/bankstmt/internal/bank"
	"github.com/bankstmt/bankstmt/internal/bank/mskb"
	"github.com/bankstmt/bankstmt/internal/bank/ruledriven"
	"github.com/bankstmt/bankstmt/internal/definition"
	"github.com/bankstmt/bankstmt/internal/pdftext"
	"github.com/charmbracelet/log"
)

type CLI struct {
	File        string `arg:"" help:"Statement file to parse (.pdf or .txt)"`
	Definitions string `env:"DEFINITIONS_DIR" default:"definitions" help:"Directory holding bank definition JSON files"`
	Bank        string `help:"Bank hint used for parser selection"`
	Currency    string `default:"EUR" help:"Currency assumed when a definition does not specify one"`
	Verbose     bool   `short:"v" help:"Enable verbose output"`
}

func main() {
	var cli CLI
	kong.Parse(&cli)

	// Create logger
	logger := log.New(os.Stderr)
	if cli.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	text, err := readStatementText(cli.File)
	if err != nil {
		logger.Fatal("Failed to read statement", "error", err)
	}

	definitions := definition.Load(cli.Definitions, logger)
	logger.Debug("Loaded bank definitions", "count", len(definitions))

	service := bank.NewService(ruledriven.New(definitions, cli.Currency, logger), logger)
	service.Register(mskb.New(logger))

	st, err := service.ParseStatement(text, filepath.Base(cli.File), cli.Bank)
	if err != nil {
		logger.Fatal("Failed to parse statement", "error", err)
	}

	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode statement", "error", err)
	}
	os.Stdout.Write(append(out, '\n'))
}

func readStatementText(file string) (string, error) {
	if strings.EqualFold(filepath.Ext(file), ".pdf") {
		text, err := pdftext.Extract(file)
		if err != nil {
			return "", err
		}
		return text, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
