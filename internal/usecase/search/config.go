package search

// Retrieval defaults.
const (
	DefaultCandidateMultiplier = 4
	DefaultMinCandidates       = 20
	DefaultVectorWeight        = 0.7
	DefaultLexicalWeight       = 0.3
	DefaultGraphBoost          = 0.05
	DefaultMinRelationStrength = 0.7
	DefaultBoostTopK           = 5
	DefaultPinSimilarity       = 0.9
	DefaultIntentConfidence    = 0.7
	DefaultBorderLow           = 0.55
	DefaultBorderHigh          = 0.75
)

// GateConfig tunes the relevance gate.
type GateConfig struct {
	// IntentConfidence is the intent confidence from which tier 1 applies.
	IntentConfidence float64
	// JudgeEnabled turns on tier 2 for similarities in [BorderLow, BorderHigh).
	JudgeEnabled bool
	BorderLow    float64
	BorderHigh   float64
}

// Config tunes retrieval and reranking.
type Config struct {
	CandidateMultiplier int
	MinCandidates       int
	VectorWeight        float64
	LexicalWeight       float64
	GraphBoost          float64
	MinRelationStrength float64
	BoostTopK           int
	PinSimilarity       float64
	Gate                GateConfig
}

func (c Config) withDefaults() Config {
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if c.MinCandidates <= 0 {
		c.MinCandidates = DefaultMinCandidates
	}
	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		c.VectorWeight, c.LexicalWeight = DefaultVectorWeight, DefaultLexicalWeight
	}
	if c.GraphBoost == 0 {
		c.GraphBoost = DefaultGraphBoost
	}
	if c.MinRelationStrength == 0 {
		c.MinRelationStrength = DefaultMinRelationStrength
	}
	if c.BoostTopK <= 0 {
		c.BoostTopK = DefaultBoostTopK
	}
	if c.PinSimilarity == 0 {
		c.PinSimilarity = DefaultPinSimilarity
	}
	if c.Gate.IntentConfidence == 0 {
		c.Gate.IntentConfidence = DefaultIntentConfidence
	}
	if c.Gate.BorderLow == 0 && c.Gate.BorderHigh == 0 {
		c.Gate.BorderLow, c.Gate.BorderHigh = DefaultBorderLow, DefaultBorderHigh
	}
	return c
}
