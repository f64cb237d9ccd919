package scan

// EventKind identifies what a pool event reports.
type EventKind int

// Pool event kinds. Workers emit EventFile once per file, matched or not.
const (
	EventFile EventKind = iota + 1
	EventDirectory
	EventSkipped
)

// Event is emitted by the walker and workers and applied to the record by the
// manager. Workers never mutate a Record directly.
type Event struct {
	Kind    EventKind
	Path    string
	Depth   int
	Size    int64
	Results []DetectionResult
	Err     error
}
