package cmd

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/JakeFAU/sawdisk/internal/report"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	headerColor  = color.New(color.Bold, color.Underline).SprintFunc()
)

// printer writes tagged, colored lines. Safe for concurrent use.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) line(tag, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

func (p *printer) info(format string, args ...any)    { p.line(infoColor("[*]"), format, args...) }
func (p *printer) success(format string, args ...any) { p.line(successColor("[+]"), format, args...) }
func (p *printer) warning(format string, args ...any) { p.line(warningColor("[!]"), format, args...) }
func (p *printer) fail(format string, args ...any)    { p.line(errorColor("[-]"), format, args...) }

func bandColor(b report.Band) func(a ...any) string {
	switch b {
	case report.BandHigh:
		return alertColor
	case report.BandMedium:
		return warningColor
	default:
		return infoColor
	}
}

// findings prints results grouped by confidence band, strongest first.
func (p *printer) findings(results []scan.DetectionResult, verbose bool) {
	if len(results) == 0 {
		p.success("No wallet or key material candidates found")
		return
	}
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b scan.DetectionResult) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	var current report.Band
	for _, res := range sorted {
		band := report.BandFor(res.Confidence)
		if band != current {
			current = band
			_, _ = fmt.Fprintf(p.out, "\n%s\n", headerColor(string(band)+" confidence"))
		}
		tag := bandColor(band)(fmt.Sprintf("%.2f", res.Confidence))
		_, _ = fmt.Fprintf(p.out, "  %s %-16s %s\n", tag, res.WalletType, res.Path)
		if verbose {
			_, _ = fmt.Fprintf(p.out, "       method=%s rule=%s size=%d", res.Method, res.Rule, res.Size)
			if res.SampleSHA256 != "" {
				_, _ = fmt.Fprintf(p.out, " sha256=%s", res.SampleSHA256)
			}
			_, _ = fmt.Fprintln(p.out)
		}
	}
	_, _ = fmt.Fprintln(p.out)
}

func (p *printer) counters(rec scan.Record) {
	var elapsed time.Duration
	if rec.EndedAt != nil {
		elapsed = rec.EndedAt.Sub(rec.StartedAt).Round(time.Millisecond)
	}
	c := rec.Counters
	p.info("%d files, %d directories, %d bytes, %d skipped, %d detections in %s",
		c.FilesExamined, c.DirectoriesVisited, c.BytesScanned, c.ItemsSkipped, c.Detections, elapsed)
}
