package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spacesedan/reviewradar/internal/models"
)

const DEFAULT_ANALYZER_URL = "https://spacesedan-sentiment-analyzer.hf.space"

var (
	analyzerInstance *AnalyzerClient
	analyzerOnce     sync.Once
)

// AnalyzerClient talks to the hosted sentiment-analysis service used to
// refine low-confidence local scores.
type AnalyzerClient struct {
	Client  *http.Client
	BaseURL string
}

func GetAnalyzerClient() *AnalyzerClient {
	var timeout time.Duration
	env := os.Getenv("APP_ENV")
	if env == "production" {
		timeout = 10 * time.Second
	} else {
		timeout = 60 * time.Second
	}
	analyzerOnce.Do(func() {
		baseURL := os.Getenv("ANALYZER_URL")
		if baseURL == "" {
			baseURL = DEFAULT_ANALYZER_URL
		}
		slog.Info("[AnalyzerClient] Initializing Client",
			slog.Duration("timeout", timeout),
			slog.String("env", env))
		analyzerInstance = &AnalyzerClient{
			Client: &http.Client{
				Timeout: timeout,
			},
			BaseURL: baseURL,
		}
	})
	return analyzerInstance
}

// DoWithRetry sends a request built by build, retrying on transport errors
// and 5xx responses with exponential backoff. The request is rebuilt on
// every attempt because its body is consumed by the first send.
func (a *AnalyzerClient) DoWithRetry(build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := INITIAL_BACKOFF

	for attempt := 0; attempt < MAX_RETRIES; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("[AnalyzerClient] Failed to build request: %w", err)
		}

		resp, err := a.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if resp != nil {
			resp.Body.Close()
		}

		slog.Warn("[AnalyzerClient] Request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", errMsg(err, resp)))

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
		}

		time.Sleep(backoff)
		backoff *= 2
	}

	return nil, fmt.Errorf("[AnalyzerClient] Exhausted retries: %w", lastErr)
}

func (a *AnalyzerClient) GetBatchedSentimentAnalysis(input models.SentimentAnalysisBatchRequest) (models.SentimentAnalysisBatchResponse, error) {
	var result models.SentimentAnalysisBatchResponse
	slog.Info("[AnalyzerClient] Requesting sentiment analysis from analyzer service",
		slog.Int("batch_size", len(input)))
	start := time.Now()

	err := a.postJSON(a.BaseURL+"/analyze_batch", input, &result)
	if err != nil {
		slog.Error("[AnalyzerClient] Sentiment Analysis request failed",
			slog.Duration("elapsed", time.Since(start)))
		return result, err
	}

	slog.Info("[AnalyzerClient] Sentiment Analysis request successful",
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (a *AnalyzerClient) HealthCheck() bool {
	req, err := http.NewRequest(http.MethodGet, a.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := a.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (a *AnalyzerClient) postJSON(endpoint string, input interface{}, output interface{}) error {
	body, err := json.Marshal(input)
	if err != nil {
		slog.Error("[AnalyzerClient] Failed to marshal input",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	resp, err := a.DoWithRetry(func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", USER_AGENT)
		return req, nil
	})
	if err != nil {
		slog.Error("[AnalyzerClient] Failed request after retries",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))

		return fmt.Errorf("request failed after retries: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("[AnalyzerClient] Failed to read response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, output); err != nil {
		slog.Error("[AnalyzerClient] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			getPreview(respBody),
			slog.Int("raw_response_length", len(string(respBody))))

		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
}

func errMsg(err error, resp *http.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return "unknown error"
}
