package model

import "strings"

// Confidence grades how sure Tier-1 is about its extracted signal.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence maps free-form model output onto a Confidence, defaulting
// to low for anything unrecognized.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium", "med":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// EscalationCandidate is Tier-1's structured hand-off when it cannot resolve
// the cover on its own. It is only meaningful while the session is
// identifying and is discarded once identity resolves or the session fails.
type EscalationCandidate struct {
	ExtractedText  string     `json:"extracted_text"`
	Summary        string     `json:"summary"`
	Confidence     Confidence `json:"confidence"`
	SuggestedQuery string     `json:"suggested_query"`
}

// Identity is the resolved record identity. It is set exactly once and is
// immutable afterwards.
type Identity struct {
	Artist string   `json:"artist"`
	Album  string   `json:"album"`
	Year   *int     `json:"year,omitempty"`
	Genres []string `json:"genres,omitempty"`
	Label  string   `json:"label,omitempty"`
}
