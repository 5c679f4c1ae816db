package review

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/spacesedan/reviewradar/internal/models"
)

// scriptedClassifier returns a fixed label sequence, cycling if the
// batch is longer than the script.
type scriptedClassifier struct {
	labels []string
}

func (c *scriptedClassifier) Classify(_ context.Context, texts []string) []models.SentimentResult {
	results := make([]models.SentimentResult, 0, len(texts))
	for i := range texts {
		results = append(results, models.SentimentResult{
			Label:      c.labels[i%len(c.labels)],
			Confidence: 0.9,
		})
	}
	return results
}

func snippetsN(n int) []models.Snippet {
	out := make([]models.Snippet, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Snippet{Source: "test", Text: fmt.Sprintf("snippet %d", i)})
	}
	return out
}

func TestSummarizeEmptyInput(t *testing.T) {
	agg := NewAggregator(&scriptedClassifier{labels: []string{models.LabelPositive}})

	summary := agg.Summarize(context.Background(), nil)

	if summary.Overall != models.LabelNoData {
		t.Errorf("Overall = %q, want %q", summary.Overall, models.LabelNoData)
	}
	if summary.AvgScore != 0 {
		t.Errorf("AvgScore = %v, want 0", summary.AvgScore)
	}
	if len(summary.Details) != 0 {
		t.Errorf("got %d details, want 0", len(summary.Details))
	}
}

func TestSummarizeVerdictThresholds(t *testing.T) {
	tests := []struct {
		name      string
		positives int
		total     int
		want      string
	}{
		{"all positive", 5, 5, models.LabelPositive},
		{"two thirds positive", 2, 3, models.LabelPositive},
		{"all negative", 0, 4, models.LabelNegative},
		{"one third positive", 1, 3, models.LabelNegative},
		{"half positive", 1, 2, models.LabelNeutral},
		{"exactly 0.6 is neutral", 3, 5, models.LabelNeutral},
		{"exactly 0.4 is neutral", 2, 5, models.LabelNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := make([]string, 0, tt.total)
			for i := 0; i < tt.total; i++ {
				if i < tt.positives {
					labels = append(labels, models.LabelPositive)
				} else {
					labels = append(labels, models.LabelNegative)
				}
			}
			agg := NewAggregator(&scriptedClassifier{labels: labels})

			summary := agg.Summarize(context.Background(), snippetsN(tt.total))

			if summary.Overall != tt.want {
				t.Errorf("Overall = %q, want %q (avg %v)", summary.Overall, tt.want, summary.AvgScore)
			}
			wantAvg := float64(tt.positives) / float64(tt.total)
			if math.Abs(summary.AvgScore-wantAvg) > 1e-9 {
				t.Errorf("AvgScore = %v, want %v", summary.AvgScore, wantAvg)
			}
		})
	}
}

func TestSummarizeDetailsTruncation(t *testing.T) {
	tests := []struct {
		snippets    int
		wantDetails int
	}{
		{1, 1},
		{3, 3},
		{5, 5},
		{8, 5},
	}

	for _, tt := range tests {
		agg := NewAggregator(&scriptedClassifier{labels: []string{models.LabelPositive}})

		summary := agg.Summarize(context.Background(), snippetsN(tt.snippets))

		if len(summary.Details) != tt.wantDetails {
			t.Errorf("snippets=%d: got %d details, want %d",
				tt.snippets, len(summary.Details), tt.wantDetails)
		}
	}
}

func TestSummarizeTwoPositiveOneNegative(t *testing.T) {
	agg := NewAggregator(&scriptedClassifier{labels: []string{
		models.LabelPositive, models.LabelPositive, models.LabelNegative,
	}})

	summary := agg.Summarize(context.Background(), snippetsN(3))

	if summary.Overall != models.LabelPositive {
		t.Errorf("Overall = %q, want %q", summary.Overall, models.LabelPositive)
	}
	if math.Abs(summary.AvgScore-2.0/3.0) > 1e-9 {
		t.Errorf("AvgScore = %v, want %v", summary.AvgScore, 2.0/3.0)
	}
	if summary.SourceCount != 3 {
		t.Errorf("SourceCount = %d, want 3", summary.SourceCount)
	}
}
