package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stocksync/internal/logger"
)

// APIError is a non-2xx upstream response. Auth failures are terminal for
// the caller; everything else is treated as transient.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, e.Body)
}

func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsAuthError reports whether err is an upstream authentication failure.
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.IsAuth()
}

type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *logger.Logger
}

func NewClient(baseURL, accessToken string, logger *logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

const scanPageLimit = 100

// ListItemIDs fetches one page of the user's item ids using scan-type
// pagination. Pass an empty scrollID to start a fresh scan; the returned
// ScrollID continues it. The scan is complete when a page comes back empty.
func (c *Client) ListItemIDs(ctx context.Context, userID int64, scrollID string) (*ScanPage, error) {
	url := fmt.Sprintf("%s/users/%d/items/search", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.authorize(req)

	q := req.URL.Query()
	q.Set("search_type", "scan")
	q.Set("limit", fmt.Sprintf("%d", scanPageLimit))
	if scrollID != "" {
		q.Set("scroll_id", scrollID)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var scanResp scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&scanResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	completed := len(scanResp.Results) == 0
	return &ScanPage{
		IDs:           scanResp.Results,
		ScrollID:      scanResp.ScrollID,
		Total:         scanResp.Paging.Total,
		ScanCompleted: completed,
		HasMore:       !completed,
	}, nil
}

// GetItem fetches a single item by id.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	url := fmt.Sprintf("%s/items/%s", c.baseURL, itemID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &item, nil
}

// GetItems fetches up to 20 items per upstream multiget call; larger id sets
// are split transparently. Items the platform reports a per-item error for
// are dropped with a debug log rather than failing the whole call.
func (c *Client) GetItems(ctx context.Context, ids []string) ([]Item, error) {
	const multiGetLimit = 20

	items := make([]Item, 0, len(ids))
	for start := 0; start < len(ids); start += multiGetLimit {
		end := start + multiGetLimit
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := c.getItemsChunk(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		items = append(items, chunk...)
	}

	return items, nil
}

func (c *Client) getItemsChunk(ctx context.Context, ids []string) ([]Item, error) {
	url := fmt.Sprintf("%s/items", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.authorize(req)

	q := req.URL.Query()
	q.Set("ids", strings.Join(ids, ","))
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var entries []multiGetEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.Code != http.StatusOK {
			c.logger.Debug("Skipping item in multiget, code %d", entry.Code)
			continue
		}
		items = append(items, entry.Body)
	}

	return items, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	req.Header.Set("Content-Type", "application/json")
}
