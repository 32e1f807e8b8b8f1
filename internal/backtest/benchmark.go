package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/atlasintel/atlas-engine/internal/cache"
	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// BenchmarkClientConfig mirrors the benchmark section of the engine config.
type BenchmarkClientConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// BenchmarkClient fetches published benchmark leaderboards over HTTP with a
// cache read-through, so repeated backtests against the same task do not
// hammer the upstream.
type BenchmarkClient struct {
	baseURL    string
	apiKey     string
	cacheTTL   time.Duration
	httpClient *http.Client
	cache      cache.Provider
	logger     *slog.Logger
}

// NewBenchmarkClient constructs a client. cacheProvider may be nil.
func NewBenchmarkClient(cfg BenchmarkClientConfig, cacheProvider cache.Provider, logger *slog.Logger) *BenchmarkClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &BenchmarkClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cacheProvider,
		logger:     utils.ComponentLogger(logger, "benchmarks"),
	}
}

// Scores returns the published scores for a task, preferring the cache.
func (c *BenchmarkClient) Scores(ctx context.Context, task string) ([]models.BenchmarkScore, error) {
	key := "atlas:benchmarks:" + task
	if data, err := c.cache.Get(ctx, key); err == nil {
		var scores []models.BenchmarkScore
		if err := json.Unmarshal(data, &scores); err == nil {
			return scores, nil
		}
		// Unreadable cache entry: fall through to the upstream.
		_ = c.cache.Del(ctx, key)
	}

	scores, err := c.fetch(ctx, task)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(scores); err == nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Debug("benchmark cache write failed", slog.Any("error", err))
		}
	}
	return scores, nil
}

func (c *BenchmarkClient) fetch(ctx context.Context, task string) ([]models.BenchmarkScore, error) {
	endpoint := fmt.Sprintf("%s/benchmarks/%s", c.baseURL, url.PathEscape(task))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build benchmark request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("benchmark request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read benchmark response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("benchmark upstream returned %d for task %q", resp.StatusCode, task)
	}

	var payload struct {
		Scores []models.BenchmarkScore `json:"scores"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode benchmark response: %w", err)
	}
	return payload.Scores, nil
}
