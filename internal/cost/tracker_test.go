package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordAndReport(t *testing.T) {
	tr := NewTracker(Rates{
		"test-model": {Input: 1.00, Output: 2.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	})

	tr.Record("tier1", "test-model", Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	tr.Record("tier1", "test-model", Usage{InputTokens: 1_000_000})
	tr.Record("enrichment", "test-model", Usage{OutputTokens: 1_000_000})

	r := tr.Report()
	assert.Equal(t, 2, r.ByStage["tier1"].Calls)
	assert.Equal(t, int64(2_000_000), r.ByStage["tier1"].InputTokens)
	assert.InDelta(t, 3.00, r.ByStage["tier1"].USD, 1e-9) // 2*1.00 input + 0.5*2.00 output
	assert.InDelta(t, 2.00, r.ByStage["enrichment"].USD, 1e-9)
	assert.InDelta(t, 5.00, r.TotalUSD, 1e-9)
}

func TestTrackerUnknownModelCostsZero(t *testing.T) {
	tr := NewTracker(DefaultRates())
	tr.Record("tier2", "mystery-model", Usage{InputTokens: 1_000_000})
	assert.Zero(t, tr.Report().TotalUSD)
	assert.Equal(t, 1, tr.Report().ByStage["tier2"].Calls)
}

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker(DefaultRates())
	tr.RecordGateRejection()
	tr.RecordGateRejection()
	tr.RecordCacheHit()

	r := tr.Report()
	assert.Equal(t, 2, r.GateRejections)
	assert.Equal(t, 1, r.CacheHits)
}
