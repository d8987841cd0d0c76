package model

import "time"

// ScanState is the lifecycle state of a single scan session.
type ScanState string

const (
	StateIdle                 ScanState = "idle"
	StateIdentifying          ScanState = "identifying"
	StateIdentified           ScanState = "identified"
	StateLoadingEnrichment    ScanState = "loading_enrichment"
	StateComplete             ScanState = "complete"
	StateIdentificationFailed ScanState = "identification_failed"
	StateEnrichmentFailed     ScanState = "enrichment_failed"
)

// stateRank orders states so transitions can be checked for monotonicity.
// The failure states rank as terminal siblings of the stage they abort:
// identification_failed follows identifying, enrichment_failed follows
// loading_enrichment.
var stateRank = map[ScanState]int{
	StateIdle:                 0,
	StateIdentifying:          1,
	StateIdentified:           2,
	StateIdentificationFailed: 2,
	StateLoadingEnrichment:    3,
	StateComplete:             4,
	StateEnrichmentFailed:     4,
}

// Rank returns the ordering position of the state. Unknown states rank -1.
func (s ScanState) Rank() int {
	if r, ok := stateRank[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether no further transitions are possible.
func (s ScanState) Terminal() bool {
	switch s {
	case StateComplete, StateIdentificationFailed, StateEnrichmentFailed:
		return true
	}
	return false
}

// FailureStage identifies which stage of the pipeline a failure occurred in.
// StageGate is distinguished from StageTier2 for cost accounting; both
// surface externally as identification_failed.
type FailureStage string

const (
	StageTier1      FailureStage = "tier1"
	StageGate       FailureStage = "gate"
	StageTier2      FailureStage = "tier2"
	StageEnrichment FailureStage = "enrichment"
)

// Failure records why a stage failed.
type Failure struct {
	Stage  FailureStage `json:"stage"`
	Reason string       `json:"reason"`
}

// Capture is the raw scanned image. It is owned by the session until a
// tier consumes it and is never persisted.
type Capture struct {
	Data      []byte
	MediaType string // e.g. "image/jpeg"
}

// Session is a point-in-time snapshot of a scan session, safe to hand to
// callers; the orchestrator owns the mutable original.
type Session struct {
	ID         string      `json:"id"`
	State      ScanState   `json:"state"`
	Identity   *Identity   `json:"identity,omitempty"`
	Enrichment *Enrichment `json:"enrichment,omitempty"`
	Failure    *Failure    `json:"failure,omitempty"`
	ArtworkURL string      `json:"artwork_url,omitempty"`

	CreatedAt            time.Time  `json:"created_at"`
	IdentityResolvedAt   *time.Time `json:"identity_resolved_at,omitempty"`
	EnrichmentResolvedAt *time.Time `json:"enrichment_resolved_at,omitempty"`
}

// EventKind is a session lifecycle event emitted to the persistence
// collaborator.
type EventKind string

const (
	EventIdentityResolved   EventKind = "identity_resolved"
	EventEnrichmentResolved EventKind = "enrichment_resolved"
	EventFailed             EventKind = "failed"
)

// SessionEvent is the durable record of a lifecycle transition. The core
// pipeline never depends on these being stored.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	State     ScanState `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
