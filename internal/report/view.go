package report

import (
	"fmt"
	"time"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Band is a coarse confidence bucket used by reports and the CLI.
type Band string

// Confidence bands.
const (
	BandHigh   Band = "High"
	BandMedium Band = "Medium"
	BandLow    Band = "Low"
)

// BandFor buckets a confidence: High >= 0.7, Medium >= 0.5, else Low.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= 0.7:
		return BandHigh
	case confidence >= 0.5:
		return BandMedium
	default:
		return BandLow
	}
}

// Tally counts results per band.
type Tally struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// TallyResults buckets every result.
func TallyResults(results []scan.DetectionResult) Tally {
	var t Tally
	for _, r := range results {
		switch BandFor(r.Confidence) {
		case BandHigh:
			t.High++
		case BandMedium:
			t.Medium++
		default:
			t.Low++
		}
	}
	return t
}

// FormatSize renders a byte count with binary units.
func FormatSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

var funcs = map[string]any{
	"band": func(c float64) string { return string(BandFor(c)) },
	"bandClass": func(c float64) string {
		return map[Band]string{BandHigh: "high", BandMedium: "medium", BandLow: "low"}[BandFor(c)]
	},
	"pct":  func(c float64) string { return fmt.Sprintf("%.1f%%", c*100) },
	"size": FormatSize,
	"ts":   func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 MST") },
	"inc":  func(i int) int { return i + 1 },
}

type view struct {
	Record    scan.Record
	Generated time.Time
	Tally     Tally
	Duration  time.Duration
}

func newView(rec scan.Record, now time.Time) view {
	return view{
		Record:    rec,
		Generated: now,
		Tally:     TallyResults(rec.Results),
		Duration:  rec.Duration(now).Round(time.Millisecond),
	}
}

type document struct {
	ReportInfo struct {
		GeneratedAt time.Time `json:"generated_at"`
		ScanID      string    `json:"scan_id"`
		ScanPath    string    `json:"scan_path"`
		Status      string    `json:"status"`
		TotalItems  int       `json:"total_items"`
		DurationMs  int64     `json:"duration_ms"`
		Failure     string    `json:"failure_reason,omitempty"`
	} `json:"report_info"`
	Counters scan.Counters          `json:"counters"`
	Tally    Tally                  `json:"confidence"`
	Results  []scan.DetectionResult `json:"results"`
}

func (v view) document() document {
	var d document
	d.ReportInfo.GeneratedAt = v.Generated
	d.ReportInfo.ScanID = v.Record.ID
	d.ReportInfo.ScanPath = v.Record.Request.Path
	d.ReportInfo.Status = string(v.Record.Status)
	d.ReportInfo.TotalItems = len(v.Record.Results)
	d.ReportInfo.DurationMs = v.Duration.Milliseconds()
	d.ReportInfo.Failure = v.Record.FailureReason
	d.Counters = v.Record.Counters
	d.Tally = v.Tally
	d.Results = v.Record.Results
	if d.Results == nil {
		d.Results = []scan.DetectionResult{}
	}
	return d
}
