package review

import (
	"context"
	"log/slog"

	"github.com/spacesedan/reviewradar/internal/models"
	"github.com/spacesedan/reviewradar/internal/sentiment"
)

const (
	// Verdict thresholds: exactly 0.4 and 0.6 both land on NEUTRAL.
	POSITIVE_THRESHOLD = 0.6
	NEGATIVE_THRESHOLD = 0.4

	MAX_DETAILS = 5
)

// Aggregator reduces fetched snippets to a single verdict.
type Aggregator struct {
	classifier sentiment.Classifier
}

func NewAggregator(classifier sentiment.Classifier) *Aggregator {
	return &Aggregator{classifier: classifier}
}

// Summarize classifies every snippet in order and averages the binary
// labels into an overall verdict. No snippets means NO_DATA, not an error.
func (a *Aggregator) Summarize(ctx context.Context, snippets []models.Snippet) models.ReviewSummary {
	if len(snippets) == 0 {
		return models.ReviewSummary{
			Overall:  models.LabelNoData,
			AvgScore: 0,
			Details:  []models.SentimentResult{},
		}
	}

	texts := make([]string, 0, len(snippets))
	for _, snippet := range snippets {
		texts = append(texts, snippet.Text)
	}

	results := a.classifier.Classify(ctx, texts)

	positives := 0
	for _, result := range results {
		if result.Label == models.LabelPositive {
			positives++
		}
	}
	avgScore := float64(positives) / float64(len(results))

	details := results
	if len(details) > MAX_DETAILS {
		details = details[:MAX_DETAILS]
	}

	summary := models.ReviewSummary{
		Overall:     overallLabel(avgScore),
		AvgScore:    avgScore,
		Details:     details,
		SourceCount: len(snippets),
	}

	slog.Info("[Aggregator] Summary computed",
		slog.String("overall", summary.Overall),
		slog.Float64("avg_score", summary.AvgScore),
		slog.Int("classified", len(results)))

	return summary
}

func overallLabel(avgScore float64) string {
	switch {
	case avgScore > POSITIVE_THRESHOLD:
		return models.LabelPositive
	case avgScore < NEGATIVE_THRESHOLD:
		return models.LabelNegative
	default:
		return models.LabelNeutral
	}
}
