package storage

import "time"

// EventWriter is the interface for writing resolution audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ResolutionEvent)
	Close()
}

// ResolutionEvent records one resolved tool decision, flattened for columnar
// storage: the precedence trail becomes parallel arrays, one element per
// evaluated rule step.
type ResolutionEvent struct {
	RequestID    string
	DistrictID   string
	Timestamp    time.Time
	StudentID    string
	AssessmentID string
	SectionID    string
	ItemID       string

	ToolID          string
	Enabled         bool
	Required        bool
	AlwaysAvailable bool
	Restricted      bool
	Config          string // resolved config JSON, "" when none

	// Trail columns. WinningRule duplicates TrailRules[winning index] so
	// queries can filter without unnesting. TrailSteps carries the
	// per-alias precedence step of each entry; merged trails restart the
	// numbering at each alias boundary.
	WinningRule    string
	WinningStep    uint8
	TrailSteps     []uint8
	TrailRules     []string
	TrailSupports  []string
	TrailActions   []string
	TrailReasons   []string
	TrailSources   []string
	ContextVersion uint64
	LatencyMs      float32
	Source         string // "api" or "session"
}
