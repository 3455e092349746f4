package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrGenerationNotReady means the provider has not finalized billing for
	// the generation yet; the caller should retry later.
	ErrGenerationNotReady = errors.New("generation cost not available yet")

	// ErrGenerationNotFound means the provider does not know the generation id.
	ErrGenerationNotFound = errors.New("generation not found")
)

// Client fetches finalized generation costs from OpenRouter.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Generation is the subset of the provider's generation record we consume.
type Generation struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	TotalCostUSD float64 `json:"total_cost"`
}

type generationResponse struct {
	Data Generation `json:"data"`
}

// NewClient creates a new OpenRouter client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// GenerationCostNanoUSD returns the finalized billed cost of a generation in
// nano-USD. Returns ErrGenerationNotReady while the provider is still
// reconciling the generation.
func (c *Client) GenerationCostNanoUSD(ctx context.Context, generationID string) (int64, error) {
	if c == nil || c.http == nil {
		return 0, fmt.Errorf("openrouter request error: client is nil")
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return 0, fmt.Errorf("openrouter config error: api key is empty")
	}
	if strings.TrimSpace(generationID) == "" {
		return 0, fmt.Errorf("openrouter request error: generation id is empty")
	}

	reqURL := c.baseURL + "/generation?id=" + url.QueryEscape(generationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("openrouter request error: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("openrouter request error: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// OpenRouter returns 404 both for unknown ids and for generations
		// whose billing has not been finalized yet; treat as not-ready and
		// let the worker's bounded retries decide.
		return 0, ErrGenerationNotReady
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, fmt.Errorf("openrouter status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("openrouter decode error: %w", err)
	}
	if parsed.Data.ID == "" {
		return 0, ErrGenerationNotFound
	}

	return int64(math.Round(parsed.Data.TotalCostUSD * 1e9)), nil
}
