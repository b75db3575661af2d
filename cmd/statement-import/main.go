package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/bankstmt/bankstmt/internal/bank"
	"github.com/bankstmt/bankstmt/internal/bank/mskb"
	"github.com/bankstmt/bankstmt/internal/bank/ruledriven"
	"github.com/bankstmt/bankstmt/internal/db"
	"github.com/bankstmt/bankstmt/internal/definition"
	"github.com/bankstmt/bankstmt/internal/importer"
	"github.com/bankstmt/bankstmt/internal/pipeline"
	"github.com/charmbracelet/log"
)

type CLI struct {
	Files       []string `arg:"" help:"Statement files to import (.pdf or .txt)"`
	DataDir     string   `env:"DATA_DIR" default:"data" help:"Directory to store data"`
	Definitions string   `env:"DEFINITIONS_DIR" default:"definitions" help:"Directory holding bank definition JSON files"`
	Bank        string   `help:"Bank hint used for parser selection"`
	Currency    string   `default:"EUR" help:"Currency assumed when a definition does not specify one"`
	Concurrency int      `env:"CONCURRENCY" default:"4" help:"Number of files processed in parallel"`
	DryRun      bool     `help:"Parse statements without writing to the database"`
	NoProgress  bool     `help:"Disable the progress bar"`
	Verbose     bool     `short:"v" help:"Enable verbose output"`
}

func main() {
	var cli CLI
	kong.Parse(&cli)

	// Create logger
	logger := log.New(os.Stderr)
	if cli.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down gracefully", "signal", sig)
		cancel()
	}()

	definitions := definition.Load(cli.Definitions, logger)
	logger.Debug("Loaded bank definitions", "count", len(definitions))

	service := bank.NewService(ruledriven.New(definitions, cli.Currency, logger), logger)
	service.Register(mskb.New(logger))

	var imp *importer.Importer
	if !cli.DryRun {
		database, err := db.New(cli.DataDir, logger)
		if err != nil {
			logger.Fatal("Failed to open database", "error", err)
		}
		defer database.Close()
		imp = importer.New(database, logger)
	}

	p := pipeline.New(service, imp, logger)
	results, err := p.Run(ctx, cli.Files, pipeline.Config{
		BankHint:    cli.Bank,
		Concurrency: cli.Concurrency,
		DryRun:      cli.DryRun,
		Progress:    !cli.NoProgress && !cli.Verbose,
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("Import cancelled by user")
		return
	}
	if err != nil {
		logger.Fatal("Import failed", "error", err)
	}

	succeeded, failed, imported := 0, 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("Failed", "file", r.File, "error", r.Err)
			continue
		}
		succeeded++
		imported += r.Imported
		logger.Info("Imported", "file", r.File, "bank", r.BankName, "transactions", r.Imported)
	}

	logger.Info("Done", "succeeded", succeeded, "failed", failed, "transactions", imported)
	if failed > 0 {
		os.Exit(1)
	}
}
