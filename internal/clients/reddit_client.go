package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spacesedan/reviewradar/internal/models"
)

const (
	REDDIT_AUTH_URL        = "https://www.reddit.com/api/v1/access_token"
	REDDIT_API_URL         = "https://oauth.reddit.com"
	REDDIT_REQUEST_TIMEOUT = 10 * time.Second
	REDDIT_SEARCH_LIMIT    = "10"
)

var (
	redditClientInstance *RedditClient
	redditClientOnce     sync.Once
)

type RedditClient struct {
	Config  *clientcredentials.Config
	Client  *http.Client
	BaseURL string
	mu      *sync.Mutex
}

func GetRedditClient() *RedditClient {
	redditClientOnce.Do(func() {
		oauthConf := &clientcredentials.Config{
			ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
			ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
			TokenURL:     REDDIT_AUTH_URL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}

		client := oauthConf.Client(context.Background())
		client.Timeout = REDDIT_REQUEST_TIMEOUT

		redditClientInstance = &RedditClient{
			Config:  oauthConf,
			Client:  client,
			BaseURL: REDDIT_API_URL,
			mu:      &sync.Mutex{},
		}
	})

	return redditClientInstance
}

func (rc *RedditClient) RefreshClient() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Client = rc.Config.Client(context.Background())
	rc.Client.Timeout = REDDIT_REQUEST_TIMEOUT
}

// SearchPosts queries Reddit's search endpoint for posts about a product.
func (rc *RedditClient) SearchPosts(ctx context.Context, query string) ([]models.RedditAPIChildData, error) {
	return rc.searchPosts(ctx, query, false)
}

// searchPosts tracks whether the token has already been refreshed so a
// persistent 401 fails instead of refreshing forever.
func (rc *RedditClient) searchPosts(ctx context.Context, query string, refreshed bool) ([]models.RedditAPIChildData, error) {
	parsedUrl, err := url.Parse(fmt.Sprintf("%s/search", rc.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("[RedditClient] Failed to parse URL: %w", err)
	}
	queryParams := parsedUrl.Query()
	queryParams.Add("q", query)
	queryParams.Add("sort", "new")
	queryParams.Add("limit", REDDIT_SEARCH_LIMIT)
	parsedUrl.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedUrl.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := rc.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if refreshed {
			return nil, fmt.Errorf("[RedditClient] Unauthorized after token refresh")
		}
		slog.Warn("[RedditClient] Token expired - Refreshing and Retrying...")
		rc.RefreshClient()
		return rc.searchPosts(ctx, query, true)
	case http.StatusTooManyRequests:
		slog.Warn("[RedditClient] 429 Too Many Requests - Retrying with backoff")
		return rc.retryWithBackoff(ctx, query)
	case http.StatusOK:
		bytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return parseSearchResponse(bytes)
	}

	return nil, fmt.Errorf("[RedditClient] Unexpected status code %d", resp.StatusCode)
}

func (rc *RedditClient) retryWithBackoff(ctx context.Context, query string) ([]models.RedditAPIChildData, error) {
	backoff := INITIAL_BACKOFF
	for i := 1; i < MAX_RETRIES; i++ {
		slog.Warn("[RedditClient] Retrying request",
			slog.Int("attempt", i), slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > MAX_BACKOFF {
			backoff = MAX_BACKOFF
		}

		posts, err := rc.SearchPosts(ctx, query)
		if err == nil {
			return posts, nil
		}
	}
	return nil, fmt.Errorf("[RedditClient] Max retries reached request failed")
}

func parseSearchResponse(body []byte) ([]models.RedditAPIChildData, error) {
	var resp models.RedditAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("[RedditClient] Failed to unmarshal search response: %w", err)
	}

	posts := make([]models.RedditAPIChildData, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}
