// Package scan defines the core types shared by the walker, detector, worker pool,
// manager and history store.
package scan

import (
	"sort"
	"time"
)

// Unbounded disables the depth limit of a Request.
const Unbounded = -1

// Status represents the lifecycle state of a scan.
type Status string

// Scan status values. Exactly one scan may be Running or Stopping at a time.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsActive reports whether the status occupies the single scan slot.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusStopping
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// WalletType is the closed set of labels a detection may carry.
type WalletType string

// Supported wallet-type labels.
const (
	WalletBitcoinCore WalletType = "bitcoin_core"
	WalletElectrum    WalletType = "electrum"
	WalletEthereum    WalletType = "ethereum"
	WalletLitecoin    WalletType = "litecoin"
	WalletMonero      WalletType = "monero"
	WalletDogecoin    WalletType = "dogecoin"
	WalletMultiBit    WalletType = "multibit"
	WalletExodus      WalletType = "exodus"
	WalletKeePass     WalletType = "keepass"
	WalletPEMKey      WalletType = "pem_private_key"
	WalletBIP39Seed   WalletType = "bip39_seed"
	WalletPrivateKey  WalletType = "private_key"
	WalletConfigFile  WalletType = "wallet_config"
	WalletUnknown     WalletType = "unknown"
)

// Method names the detection technique that produced a result.
type Method string

// Detection methods, listed in the order the classifier applies them.
const (
	MethodExtension   Method = "extension"
	MethodFilename    Method = "filename"
	MethodContent     Method = "content_signature"
	MethodCombination Method = "combination"
)

// Request is an accepted scan request. It is immutable once accepted.
type Request struct {
	Path string `json:"path"`
	// MaxDepth is taken as given: 0 is the root directory only and Unbounded
	// disables the limit. Entry points apply the configured default.
	MaxDepth     int    `json:"max_depth"`
	Threads      int    `json:"threads"`
	Verbose      bool   `json:"verbose"`
	ReportFormat string `json:"report_format,omitempty"`
}

// FileRef describes a regular file discovered by the walker.
type FileRef struct {
	Path    string    `json:"path"`
	RelPath string    `json:"rel_path"`
	Name    string    `json:"name"`
	Ext     string    `json:"ext"`
	Size    int64     `json:"size"`
	Depth   int       `json:"depth"`
	ModTime time.Time `json:"mod_time"`
}

// DetectionResult is one candidate produced by the classifier. It is never
// mutated after creation.
type DetectionResult struct {
	Path         string     `json:"path"`
	WalletType   WalletType `json:"wallet_type"`
	Confidence   float64    `json:"confidence"`
	Method       Method     `json:"method"`
	Rule         string     `json:"rule"`
	Size         int64      `json:"size"`
	SampleSHA256 string     `json:"sample_sha256,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// Counters tracks monotonically non-decreasing scan progress.
type Counters struct {
	FilesExamined      int64 `json:"files_examined"`
	DirectoriesVisited int64 `json:"directories_visited"`
	BytesScanned       int64 `json:"bytes_scanned"`
	ItemsSkipped       int64 `json:"items_skipped"`
	Detections         int64 `json:"detections"`
	MaxDepthReached    int   `json:"max_depth_reached"`
}

// Record is the full state of one scan.
type Record struct {
	ID            string            `json:"id"`
	Request       Request           `json:"request"`
	Status        Status            `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	Counters      Counters          `json:"counters"`
	Results       []DetectionResult `json:"results"`
	FailureReason string            `json:"failure_reason,omitempty"`
	ReportURI     string            `json:"report_uri,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r Record) Clone() Record {
	cp := r
	if r.EndedAt != nil {
		ended := *r.EndedAt
		cp.EndedAt = &ended
	}
	cp.Results = make([]DetectionResult, len(r.Results))
	copy(cp.Results, r.Results)
	return cp
}

// Duration returns the elapsed scan time, measured up to now while running.
func (r Record) Duration(now time.Time) time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Summary is the compact, listable view of a finalized record.
type Summary struct {
	ID            string            `json:"id"`
	RootPath      string            `json:"root_path"`
	Status        Status            `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       time.Time         `json:"ended_at"`
	DurationMs    int64             `json:"duration_ms"`
	Counters      Counters          `json:"counters"`
	ResultCount   int               `json:"result_count"`
	TopFindings   []DetectionResult `json:"top_findings"`
	ReportURI     string            `json:"report_uri,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// Summarize builds the Summary of r keeping the top highest-confidence findings.
func (r Record) Summarize(top int) Summary {
	s := Summary{
		ID:            r.ID,
		RootPath:      r.Request.Path,
		Status:        r.Status,
		StartedAt:     r.StartedAt,
		Counters:      r.Counters,
		ResultCount:   len(r.Results),
		ReportURI:     r.ReportURI,
		FailureReason: r.FailureReason,
	}
	if r.EndedAt != nil {
		s.EndedAt = *r.EndedAt
		s.DurationMs = r.EndedAt.Sub(r.StartedAt).Milliseconds()
	}
	s.TopFindings = TopFindings(r.Results, top)
	return s
}

// TopFindings returns up to n results ordered by descending confidence. Ties
// keep discovery order.
func TopFindings(results []DetectionResult, n int) []DetectionResult {
	if n <= 0 || len(results) == 0 {
		return []DetectionResult{}
	}
	sorted := make([]DetectionResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Snapshot is a consistent point-in-time view returned by the manager.
type Snapshot struct {
	Status        Status  `json:"status"`
	IsRunning     bool    `json:"is_running"`
	StopRequested bool    `json:"stop_requested"`
	ResultCount   int     `json:"result_count"`
	Record        *Record `json:"record,omitempty"`
}

// StopAck acknowledges a stop request.
type StopAck struct {
	Acknowledged bool   `json:"acknowledged"`
	ScanID       string `json:"scan_id,omitempty"`
	Status       Status `json:"status"`
	Message      string `json:"message"`
}
