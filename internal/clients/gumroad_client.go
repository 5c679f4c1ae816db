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

	"github.com/spacesedan/reviewradar/internal/models"
)

const (
	GUMROAD_SALES_ENDPOINT  = "https://api.gumroad.com/v2/sales"
	GUMROAD_REQUEST_TIMEOUT = 10 * time.Second
)

var (
	gumroadInstance *GumroadClient
	gumroadOnce     sync.Once
)

type GumroadClient struct {
	Client      *http.Client
	Endpoint    string
	accessToken string
	productID   string
}

func GetGumroadClient() *GumroadClient {
	gumroadOnce.Do(func() {
		slog.Info("[GumroadClient] Initializing Client",
			slog.Duration("timeout", GUMROAD_REQUEST_TIMEOUT))
		gumroadInstance = &GumroadClient{
			Client: &http.Client{
				Timeout: GUMROAD_REQUEST_TIMEOUT,
			},
			Endpoint:    GUMROAD_SALES_ENDPOINT,
			accessToken: os.Getenv("GUMROAD_ACCESS_TOKEN"),
			productID:   os.Getenv("GUMROAD_PRODUCT_ID"),
		}
	})
	return gumroadInstance
}

// ListAliveSales returns the provider's alive sales for an email on the
// configured product. Callers treat any error as "not verified".
func (g *GumroadClient) ListAliveSales(ctx context.Context, email string) ([]models.GumroadSale, error) {
	parsedUrl, err := url.Parse(g.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("[GumroadClient] Failed to parse URL: %w", err)
	}
	queryParams := parsedUrl.Query()
	queryParams.Add("access_token", g.accessToken)
	queryParams.Add("product_id", g.productID)
	queryParams.Add("email", email)
	queryParams.Add("status", "alive")
	parsedUrl.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedUrl.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("[GumroadClient] Failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", USER_AGENT)

	start := time.Now()
	resp, err := g.Client.Do(req)
	if err != nil {
		slog.Warn("[GumroadClient] Sales request failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("[GumroadClient] Sales request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[GumroadClient] Unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[GumroadClient] Failed to read response: %w", err)
	}

	var salesResp models.GumroadSalesResponse
	if err := json.Unmarshal(body, &salesResp); err != nil {
		return nil, fmt.Errorf("[GumroadClient] Failed to unmarshal response: %w", err)
	}

	slog.Info("[GumroadClient] Sales request successful",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("sales", len(salesResp.Sales)))

	return salesResp.Sales, nil
}
