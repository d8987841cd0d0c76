// Package cost attributes spend across pipeline stages. Gate rejections are
// counted separately from Tier-2 failures so avoided expensive calls show up
// in the report, even though both surface identically to callers.
package cost

import "sync"

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model IDs to their pricing.
type Rates map[string]ModelRate

// DefaultRates returns pricing for the models the pipeline uses by default.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}

// Usage is token consumption for one API call.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

// StageSpend aggregates calls and spend for one pipeline stage.
type StageSpend struct {
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// Report is a point-in-time snapshot of accumulated spend.
type Report struct {
	ByStage        map[string]StageSpend `json:"by_stage"`
	TotalUSD       float64               `json:"total_usd"`
	GateRejections int                   `json:"gate_rejections"`
	CacheHits      int                   `json:"cache_hits"`
}

// Tracker accumulates spend across concurrent sessions.
type Tracker struct {
	mu             sync.Mutex
	rates          Rates
	byStage        map[string]StageSpend
	gateRejections int
	cacheHits      int
}

// NewTracker creates a Tracker with the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{
		rates:   rates,
		byStage: make(map[string]StageSpend),
	}
}

// Record attributes one model call's usage to a stage.
func (t *Tracker) Record(stage, model string, u Usage) {
	usd := t.estimate(model, u)

	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.byStage[stage]
	s.Calls++
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	s.USD += usd
	t.byStage[stage] = s
}

// RecordGateRejection counts an expensive call the gate avoided.
func (t *Tracker) RecordGateRejection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gateRejections++
}

// RecordCacheHit counts a generation served from cache at zero cost.
func (t *Tracker) RecordCacheHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheHits++
}

// Report snapshots accumulated spend.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{
		ByStage:        make(map[string]StageSpend, len(t.byStage)),
		GateRejections: t.gateRejections,
		CacheHits:      t.cacheHits,
	}
	for stage, s := range t.byStage {
		r.ByStage[stage] = s
		r.TotalUSD += s.USD
	}
	return r
}

func (t *Tracker) estimate(model string, u Usage) float64 {
	rate, ok := t.rates[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * rate.Input
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output
	cwCost := (float64(u.CacheCreationTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + cwCost + crCost
}
