package pipeline

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// progress tracks per-file completion on stderr. With a nil bar every
// method is a no-op, so callers never branch on whether progress display is
// enabled.
type progress struct {
	bar *progressbar.ProgressBar
}

// newProgress creates a tracker for total files. When disabled (verbose
// runs, scripts) it stays silent.
func newProgress(total int, enabled bool) *progress {
	if !enabled {
		return &progress{}
	}
	return &progress{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Importing statements"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			})),
	}
}

// fileDone records one completed file.
func (p *progress) fileDone() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// done clears the bar so the summary lines print on a clean row.
func (p *progress) done() {
	if p.bar != nil {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
}
