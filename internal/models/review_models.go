package models

const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
	LabelNeutral  = "NEUTRAL"
	LabelNoData   = "NO_DATA"
)

// Snippet is one piece of raw review text pulled from a source.
// Produced by the fetcher, consumed once by the aggregator, never stored verbatim.
type Snippet struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

type SentimentResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ReviewSummary is the aggregated verdict for one search.
// Immutable once computed; Details holds at most the first 5 results.
type ReviewSummary struct {
	Overall     string            `json:"overall"`
	AvgScore    float64           `json:"avg_score"`
	Details     []SentimentResult `json:"details"`
	SourceCount int               `json:"source_count"`
}
