package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/fatih/color"

	"image-optimizer-go/internal/optimizer"
)

// progressPrinter writes one console line per processed file.
// Failure lines are printed even in quiet mode.
type progressPrinter struct {
	out   io.Writer
	quiet bool
	mu    sync.Mutex

	ok   *color.Color
	bad  *color.Color
	plan *color.Color
}

func newProgressPrinter(out io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{
		out:   out,
		quiet: quiet,
		ok:    color.New(color.FgGreen),
		bad:   color.New(color.FgRed),
		plan:  color.New(color.FgCyan),
	}
}

// Start prints the banner for a run over dir.
func (p *progressPrinter) Start(dir string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "🚀 Starting optimization in: %s\n", dir)
}

// Print reports a single file outcome. It matches optimizer.ProgressFunc.
func (p *progressPrinter) Print(res optimizer.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := filepath.Base(res.InputPath)
	switch res.Status {
	case optimizer.StatusSucceeded:
		if !p.quiet {
			p.ok.Fprintf(p.out, "✅ %s optimized.\n", name)
		}
	case optimizer.StatusPlanned:
		if !p.quiet {
			p.plan.Fprintf(p.out, "📝 %s would be written at %dx%d.\n", name, res.Width, res.Height)
		}
	case optimizer.StatusFailed:
		p.bad.Fprintf(p.out, "❌ Could not process %s: %v\n", name, res.Error)
	}
}

// Done prints the closing line pointing at the output folder.
func (p *progressPrinter) Done(outputDir string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "\n✨ Done. Check the folder: %s\n", outputDir)
}

// Missing reports a source directory that does not exist.
func (p *progressPrinter) Missing() {
	fmt.Fprintln(p.out, "The specified path does not exist.")
}
