package upstream

import (
	"context"
	"fmt"
	"strings"
)

// ScraperClient calls the direct-mode scraper: a single synchronous request
// that returns the final result. Used for engines whose upstream has no async
// job API.
type ScraperClient struct {
	url    string
	client *Client
}

// NewScraperClient creates a ScraperClient talking to url through the given
// retrying client.
func NewScraperClient(url string, client *Client) *ScraperClient {
	return &ScraperClient{url: url, client: client}
}

// ScrapeRequest is the direct-mode scrape payload.
type ScrapeRequest struct {
	Query      string `json:"query"`
	Location   string `json:"location"`
	MaxRetries int    `json:"max_retries"`
}

// Scrape performs a synchronous scrape and validates the response shape: a
// response without a non-empty ai_overview_text is a hard failure, not a
// silently-defaulted success.
func (c *ScraperClient) Scrape(ctx context.Context, req ScrapeRequest) (Result, error) {
	var resp struct {
		Success     bool     `json:"success"`
		Text        string   `json:"ai_overview_text"`
		SourceLinks []string `json:"source_links"`
	}
	if err := c.client.PostJSON(ctx, c.url, req, &resp); err != nil {
		return Result{}, err
	}

	if !resp.Success {
		return Result{}, fmt.Errorf("%w: scraper reported success=false", ErrInvalidShape)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Result{}, fmt.Errorf("%w: scraper returned empty ai_overview_text", ErrInvalidShape)
	}

	return Result{Success: true, Text: resp.Text, SourceLinks: resp.SourceLinks}, nil
}
