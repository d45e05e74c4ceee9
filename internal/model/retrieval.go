package model

// Query is a retrieval request from chat or deck generation. Limit is clamped
// to [1,10] by the service; MinScoreOverride, when positive, replaces the
// configured inclusion floor for this request only.
type Query struct {
	Text             string  `json:"text"`
	Level            string  `json:"level"`
	Subject          string  `json:"subject"`
	Limit            int     `json:"limit"`
	MinScoreOverride float64 `json:"min_score_override,omitempty"`
}

// ScoredChunk is one retrieved passage with its similarity score.
type ScoredChunk struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
	Title   string  `json:"title,omitempty"`
	Domain  string  `json:"domain,omitempty"`
}

// DegradeReason classifies why a search came back empty-handed. Callers only
// see Found=false; the reason exists so tests and logs can tell an unhealthy
// store from an honestly empty corpus.
type DegradeReason string

const (
	DegradeNone         DegradeReason = ""
	DegradeConfig       DegradeReason = "configuration"
	DegradeConnectivity DegradeReason = "connectivity"
	DegradeEmbedding    DegradeReason = "embedding"
)

// Confidence tiers derived from the three score thresholds.
const (
	ConfidenceNone = "none"
	ConfidenceLow  = "low"
	ConfidenceGood = "good"
	ConfidenceHigh = "high"
)

// RetrievalResult is what the engine hands to chat and deck generation. No
// error ever crosses this boundary: failure modes collapse into Found=false
// with an internal Reason.
type RetrievalResult struct {
	Found        bool          `json:"found"`
	Context      string        `json:"context"`
	Chunks       []ScoredChunk `json:"chunks"`
	AverageScore float64       `json:"average_score"`
	SearchTimeMs int64         `json:"search_time_ms"`
	Confidence   string        `json:"confidence"`
	WellCovered  bool          `json:"well_covered"`
	Reason       DegradeReason `json:"-"`
}
