// Package pdftext extracts plain text from PDF statements. Extraction is a
// boundary concern: parsers only ever see text, so callers that already have
// a .txt file skip this package entirely.
package pdftext

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extract reads a PDF file and returns its text, pages separated by blank
// lines. Row-based extraction preserves statement table layout better than
// the plain-text path, so it is tried first.
func Extract(path string) (text string, err error) {
	// The pdf library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf extraction failed: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %v", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText := extractPageByRow(page)
		if pageText != "" {
			pages = append(pages, pageText)
		}
	}
	if len(pages) > 0 {
		return strings.Join(pages, "\n\n"), nil
	}

	// Fall back to the whole-document path.
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %v", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %v", err)
	}
	text = strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no text could be extracted; the pdf may be image-based")
	}
	return text, nil
}

func extractPageByRow(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var lines []string
	for _, row := range rows {
		var parts []string
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		line := strings.TrimSpace(strings.Join(parts, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ExtractToFileIfNeeded extracts the PDF's text and caches it next to the
// file with a .txt extension, returning the text file path. An existing
// cache is reused without touching the PDF.
func ExtractToFileIfNeeded(pdfPath string) (string, error) {
	txtPath := strings.TrimSuffix(pdfPath, ".pdf") + ".txt"
	if _, err := os.Stat(txtPath); err == nil {
		return txtPath, nil
	}

	text, err := Extract(pdfPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write text cache: %v", err)
	}
	return txtPath, nil
}
