package model

// EnrichmentTier selects the generation quality/cost tier.
type EnrichmentTier string

const (
	TierStandard EnrichmentTier = "standard"
	TierPremium  EnrichmentTier = "premium"
)

// Enrichment is the generated review for a resolved identity.
type Enrichment struct {
	Review     string         `json:"review"`
	Evidence   []string       `json:"evidence,omitempty"`
	Score      float64        `json:"score"`
	Tier       EnrichmentTier `json:"tier"`
	Highlights []string       `json:"highlights,omitempty"`
}
