package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/spacesedan/reviewradar/internal/models"
)

// Confidence below which a local score is re-checked remotely.
const REMOTE_REFINE_THRESHOLD = 0.35

// Classifier scores a batch of texts, one result per text, order
// preserved. Implementations never fail the batch; degraded inputs get
// their best-effort local score.
type Classifier interface {
	Classify(ctx context.Context, texts []string) []models.SentimentResult
}

// VADERClassifier scores everything locally.
type VADERClassifier struct{}

func NewVADERClassifier() *VADERClassifier {
	return &VADERClassifier{}
}

func (c *VADERClassifier) Classify(_ context.Context, texts []string) []models.SentimentResult {
	results := make([]models.SentimentResult, 0, len(texts))
	for _, text := range texts {
		results = append(results, AnalyzeWithVADER(text))
	}
	return results
}

// RemoteAnalyzer is the slice of the analyzer client the hybrid path uses.
type RemoteAnalyzer interface {
	GetBatchedSentimentAnalysis(input models.SentimentAnalysisBatchRequest) (models.SentimentAnalysisBatchResponse, error)
}

// HybridClassifier scores locally first and re-checks low-confidence
// results against the remote analyzer while it reports healthy. A remote
// failure keeps the local result.
type HybridClassifier struct {
	remote  RemoteAnalyzer
	healthy *atomic.Bool
}

func NewHybridClassifier(remote RemoteAnalyzer, healthy *atomic.Bool) *HybridClassifier {
	return &HybridClassifier{
		remote:  remote,
		healthy: healthy,
	}
}

func (c *HybridClassifier) Classify(ctx context.Context, texts []string) []models.SentimentResult {
	results := make([]models.SentimentResult, 0, len(texts))
	var refineRequest models.SentimentAnalysisBatchRequest

	for i, text := range texts {
		result := AnalyzeWithVADER(text)
		results = append(results, result)

		if result.Confidence < REMOTE_REFINE_THRESHOLD {
			refineRequest = append(refineRequest, models.SentimentAnalysisRequest{
				ContentID: fmt.Sprintf("%d", i),
				Text:      ConvertMarkdownToText(text),
			})
		}
	}

	if len(refineRequest) == 0 || c.remote == nil || !c.healthy.Load() {
		return results
	}

	refined, err := c.remote.GetBatchedSentimentAnalysis(refineRequest)
	if err != nil {
		slog.Warn("[Classifier] Remote refinement failed, keeping local scores",
			slog.Int("batch_size", len(refineRequest)),
			slog.String("error", err.Error()))
		return results
	}

	for _, response := range refined {
		var idx int
		if _, err := fmt.Sscanf(response.ContentID, "%d", &idx); err != nil {
			continue
		}
		if idx < 0 || idx >= len(results) {
			continue
		}
		if response.SentimentLabel != models.LabelPositive && response.SentimentLabel != models.LabelNegative {
			continue
		}
		results[idx] = models.SentimentResult{
			Label:      response.SentimentLabel,
			Confidence: response.Confidence,
		}
	}

	return results
}
