// Package report renders finalized scan records as JSON, Markdown or HTML and
// stores them through a scan.BlobStore.
package report

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"path"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Supported formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

var (
	// ErrUnsupportedFormat is returned for formats other than json, markdown and html.
	ErrUnsupportedFormat = errors.New("unsupported report format")
	// ErrInsideScannedTree is returned when reports would be written into the
	// tree being scanned.
	ErrInsideScannedTree = errors.New("report location is inside the scanned tree")
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Config controls where reports are written.
type Config struct {
	// Prefix is prepended to <scan_id>/report.<ext>.
	Prefix string
}

// Reporter implements scan.Reporter.
type Reporter struct {
	store  scan.BlobStore
	prefix string
	clock  scan.Clock
	logger *zap.Logger
	md     *texttemplate.Template
	html   *htmltemplate.Template
}

// New parses the embedded templates and returns a Reporter writing to store.
func New(store scan.BlobStore, cfg Config, clock scan.Clock, logger *zap.Logger) (*Reporter, error) {
	if store == nil {
		return nil, errors.New("report blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	md, err := texttemplate.New("report.md.tmpl").Funcs(texttemplate.FuncMap(funcs)).
		ParseFS(templateFS, "templates/report.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse markdown template: %w", err)
	}
	html, err := htmltemplate.New("report.html.tmpl").Funcs(htmltemplate.FuncMap(funcs)).
		ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	return &Reporter{
		store:  store,
		prefix: strings.Trim(cfg.Prefix, "/"),
		clock:  clock,
		logger: logger.Named("report"),
		md:     md,
		html:   html,
	}, nil
}

// NormalizeFormat maps aliases onto the supported formats.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ObjectPath is the blob path for a scan's report.
func (r *Reporter) ObjectPath(scanID, format string) string {
	return path.Join(r.prefix, scanID, "report."+extension(format))
}

// Produce renders rec in format and returns the artifact URI.
func (r *Reporter) Produce(ctx context.Context, rec scan.Record, format string) (string, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return "", err
	}
	if rooted, ok := r.store.(interface{ Root() string }); ok && within(rooted.Root(), rec.Request.Path) {
		return "", fmt.Errorf("%w: %s", ErrInsideScannedTree, rooted.Root())
	}

	body, err := r.Render(rec, format)
	if err != nil {
		return "", err
	}
	uri, err := r.store.PutObject(ctx, r.ObjectPath(rec.ID, format), contentType(format), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store %s report: %w", format, err)
	}
	r.logger.Info("report written",
		zap.String("scan_id", rec.ID),
		zap.String("format", format),
		zap.String("uri", uri),
		zap.Int("bytes", len(body)),
	)
	return uri, nil
}

// Render returns the report bytes without storing them.
func (r *Reporter) Render(rec scan.Record, format string) ([]byte, error) {
	view := newView(rec, r.now())
	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view.document()); err != nil {
			return nil, fmt.Errorf("encode json report: %w", err)
		}
	case FormatMarkdown:
		if err := r.md.Execute(&buf, view); err != nil {
			return nil, fmt.Errorf("render markdown report: %w", err)
		}
	case FormatHTML:
		if err := r.html.Execute(&buf, view); err != nil {
			return nil, fmt.Errorf("render html report: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}

func (r *Reporter) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now()
}

func extension(format string) string {
	switch format {
	case FormatMarkdown:
		return "md"
	default:
		return format
	}
}

func contentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}

// within reports whether dir is root or below it.
func within(dir, root string) bool {
	if dir == "" || root == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
