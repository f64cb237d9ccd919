package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageScanStart Stage = "SCAN_START"
	StageFileDone  Stage = "FILE_DONE"
	StageDetection Stage = "DETECTION"
	StageScanDone  Stage = "SCAN_DONE"
	StageScanError Stage = "SCAN_ERROR"
)

// Event captures one unit of scan progress.
type Event struct {
	ScanID string
	TS     time.Time
	Stage  Stage
	// Path is the file for FILE_DONE and DETECTION, the root otherwise.
	Path  string
	Bytes int64
	// Detection fields.
	WalletType scan.WalletType
	Method     scan.Method
	Confidence float64
	// Terminal fields.
	Status scan.Status
	Dur    time.Duration
	Note   string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ScanID == "" {
		return errors.New("scan id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageScanStart, StageFileDone:
	case StageDetection:
		if e.WalletType == "" || e.Method == "" {
			return errors.New("detection requires wallet type and method")
		}
	case StageScanDone, StageScanError:
		if !e.Status.IsTerminal() {
			return fmt.Errorf("terminal stage requires terminal status, got %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
