package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/models"
)

// BenchmarkSource supplies benchmark price history for relative performance
// comparisons. BenchmarkClient is the production implementation against the
// market data API; tests substitute a mock.
type BenchmarkSource interface {
	GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error)
	IsHealthy(ctx context.Context) bool
}

// BenchmarkClient calls the market data API over HTTP
type BenchmarkClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	retries    int
}

// NewBenchmarkClient creates a new benchmark price client
func NewBenchmarkClient(cfg config.BenchmarkConfig) *BenchmarkClient {
	return &BenchmarkClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:  cfg.APIKey,
		retries: 2,
	}
}

type historicalPrice struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// GetPriceHistory retrieves daily closing prices for a benchmark symbol.
// An unrecognized symbol maps to ErrUnknownBenchmark; transport failures and
// upstream errors map to ErrCollaboratorUnavailable.
func (bc *BenchmarkClient) GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error) {
	url := fmt.Sprintf("%s/historical/%s?from=%s&to=%s&interval=daily",
		bc.baseURL,
		strings.ToUpper(symbol),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"))

	var response struct {
		Data []historicalPrice `json:"data"`
	}

	if err := bc.makeRequest(ctx, url, &response); err != nil {
		return nil, err
	}

	series := make(models.PriceSeries, 0, len(response.Data))
	for _, p := range response.Data {
		series = append(series, models.PricePoint{
			Date:  p.Timestamp,
			Price: p.Price,
		})
	}

	return series, nil
}

// makeRequest performs a GET with retry and exponential backoff
func (bc *BenchmarkClient) makeRequest(ctx context.Context, url string, response interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= bc.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Analytics-API/1.0")
		if bc.apiKey != "" {
			req.Header.Set("X-API-Key", bc.apiKey)
		}

		resp, err := bc.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			// Unknown symbols are a caller error, not an outage; no retry.
			return models.ErrUnknownBenchmark
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited")
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(response)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode response: %w", err)
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: request failed after %d attempts: %v", models.ErrCollaboratorUnavailable, bc.retries+1, lastErr)
}

// IsHealthy checks if the market data service responds
func (bc *BenchmarkClient) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bc.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := bc.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
