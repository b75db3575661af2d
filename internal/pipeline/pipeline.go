// Package pipeline runs statement files through extraction, parsing and
// import. Files are processed concurrently; a failure in one file never
// stops the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bankstmt/bankstmt/internal/bank"
	"github.com/bankstmt/bankstmt/internal/importer"
	"github.com/bankstmt/bankstmt/internal/pdftext"
	"github.com/bankstmt/bankstmt/internal/types"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Config controls a pipeline run.
type Config struct {
	// BankHint is passed through to parser selection.
	BankHint string
	// Concurrency bounds the number of files processed in parallel.
	Concurrency int
	// DryRun parses without writing to the database.
	DryRun bool
	// Progress enables the progress bar.
	Progress bool
}

// FileResult is the outcome of processing a single statement file.
type FileResult struct {
	File      string
	BankName  string
	Statement *types.Statement
	Imported  int
	Err       error
}

// Pipeline wires the parser service and the importer together.
type Pipeline struct {
	service  *bank.Service
	importer *importer.Importer
	logger   *log.Logger
}

// New creates a pipeline. The importer may be nil when every run is a dry
// run.
func New(service *bank.Service, imp *importer.Importer, logger *log.Logger) *Pipeline {
	return &Pipeline{service: service, importer: imp, logger: logger}
}

// Run processes the given statement files and returns one result per file,
// in input order. The returned error is non-nil only when the run as a
// whole was cancelled.
func (p *Pipeline) Run(ctx context.Context, files []string, config Config) ([]FileResult, error) {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	bar := newProgress(len(files), config.Progress)
	defer bar.done()

	results := make([]FileResult, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(config.Concurrency)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			start := time.Now()
			result := p.processFile(gCtx, file, config)
			if result.Err != nil {
				if errors.Is(result.Err, context.Canceled) {
					return result.Err
				}
				p.logger.Error("Failed to process statement",
					"file", file,
					"error", result.Err,
					"duration", time.Since(start))
			} else {
				p.logger.Debug("Processed statement",
					"file", file,
					"bank", result.BankName,
					"imported", result.Imported,
					"duration", time.Since(start))
			}
			results[i] = result

			bar.fileDone()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// processFile runs one file through extract, parse and import.
func (p *Pipeline) processFile(ctx context.Context, file string, config Config) FileResult {
	result := FileResult{File: file}

	text, err := readStatementText(file)
	if err != nil {
		result.Err = err
		return result
	}

	st, err := p.service.ParseStatement(text, filepath.Base(file), config.BankHint)
	if err != nil {
		result.Err = err
		return result
	}
	result.BankName = st.BankName
	result.Statement = st

	if config.DryRun || p.importer == nil {
		result.Imported = len(st.Transactions)
		return result
	}

	imported, err := p.importer.ImportStatement(ctx, st, filepath.Base(file))
	if err != nil {
		result.Err = err
		return result
	}
	result.Imported = imported
	return result
}

// readStatementText returns the text content of a statement file. PDFs go
// through extraction with the text cached next to the file; anything else
// is read as-is.
func readStatementText(file string) (string, error) {
	if strings.EqualFold(filepath.Ext(file), ".pdf") {
		txtPath, err := pdftext.ExtractToFileIfNeeded(file)
		if err != nil {
			return "", err
		}
		file = txtPath
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read statement file: %v", err)
	}
	return string(data), nil
}
