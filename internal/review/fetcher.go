package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spacesedan/reviewradar/internal/clients"
	"github.com/spacesedan/reviewradar/internal/models"
)

// Posts shorter than this are noise (link posts, one-liners).
const MIN_POST_LENGTH = 20

// Source produces review snippets for a product. A fresh Fetch re-queries
// the live source.
type Source interface {
	Name() string
	Fetch(ctx context.Context, product string) ([]models.Snippet, error)
}

// Fetcher queries its sources in order and concatenates whatever they
// return. A failed source degrades to a warning, never an error.
type Fetcher struct {
	sources []Source
}

func NewFetcher(sources ...Source) *Fetcher {
	return &Fetcher{sources: sources}
}

func (f *Fetcher) FetchAll(ctx context.Context, product string) ([]models.Snippet, []string) {
	var snippets []models.Snippet
	var warnings []string

	for _, source := range f.sources {
		fetched, err := source.Fetch(ctx, product)
		if err != nil {
			slog.Warn("[Fetcher] Source fetch failed",
				slog.String("source", source.Name()),
				slog.String("product", product),
				slog.String("error", err.Error()))
			warnings = append(warnings, fmt.Sprintf("%s fetch failed", source.Name()))
			continue
		}
		snippets = append(snippets, fetched...)
	}

	slog.Info("[Fetcher] Fetch complete",
		slog.String("product", product),
		slog.Int("snippets", len(snippets)),
		slog.Int("warnings", len(warnings)))

	return snippets, warnings
}

// RedditSearcher is the slice of the Reddit client the source needs.
type RedditSearcher interface {
	SearchPosts(ctx context.Context, query string) ([]models.RedditAPIChildData, error)
}

type RedditSource struct {
	client RedditSearcher
}

func NewRedditSource(client RedditSearcher) *RedditSource {
	return &RedditSource{client: client}
}

func (s *RedditSource) Name() string { return "reddit" }

func (s *RedditSource) Fetch(ctx context.Context, product string) ([]models.Snippet, error) {
	posts, err := s.client.SearchPosts(ctx, product+" review")
	if err != nil {
		return nil, err
	}

	snippets := make([]models.Snippet, 0, len(posts))
	for _, post := range posts {
		if len(post.Selftext) <= MIN_POST_LENGTH {
			continue
		}
		snippets = append(snippets, models.Snippet{
			Source: s.Name(),
			Text:   post.Title + " " + post.Selftext,
		})
	}
	return snippets, nil
}

// InsightsSource is a deterministic stand-in for a second review provider.
// A real integration replaces it behind the same interface.
type InsightsSource struct{}

func NewInsightsSource() *InsightsSource {
	return &InsightsSource{}
}

func (s *InsightsSource) Name() string { return "insights" }

func (s *InsightsSource) Fetch(_ context.Context, product string) ([]models.Snippet, error) {
	return []models.Snippet{
		{Source: s.Name(), Text: fmt.Sprintf("Deep insight: %s excels in usability (4.8/5 from Google).", product)},
		{Source: s.Name(), Text: fmt.Sprintf("Trend: Recent updates boost %s quality.", product)},
	}, nil
}

var _ Source = (*RedditSource)(nil)
var _ Source = (*InsightsSource)(nil)

// DefaultFetcher builds the production source list against the shared
// Reddit client.
func DefaultFetcher() *Fetcher {
	return NewFetcher(NewRedditSource(clients.GetRedditClient()), NewInsightsSource())
}
