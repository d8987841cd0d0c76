package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateRankOrdering(t *testing.T) {
	assert.Less(t, StateIdle.Rank(), StateIdentifying.Rank())
	assert.Less(t, StateIdentifying.Rank(), StateIdentified.Rank())
	assert.Less(t, StateIdentified.Rank(), StateLoadingEnrichment.Rank())
	assert.Less(t, StateLoadingEnrichment.Rank(), StateComplete.Rank())

	// Failure states sit beside the stage they abort.
	assert.Equal(t, StateIdentified.Rank(), StateIdentificationFailed.Rank())
	assert.Equal(t, StateComplete.Rank(), StateEnrichmentFailed.Rank())

	assert.Equal(t, -1, ScanState("bogus").Rank())
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []ScanState{StateComplete, StateIdentificationFailed, StateEnrichmentFailed} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []ScanState{StateIdle, StateIdentifying, StateIdentified, StateLoadingEnrichment} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in   string
		want Confidence
	}{
		{"high", ConfidenceHigh},
		{"HIGH", ConfidenceHigh},
		{" medium ", ConfidenceMedium},
		{"med", ConfidenceMedium},
		{"low", ConfidenceLow},
		{"", ConfidenceLow},
		{"certain", ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseConfidence(tt.in), tt.in)
	}
}
