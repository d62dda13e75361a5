package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
)

const (
	// DefaultBaseURL is the MyAnimeList v2 API base URL
	DefaultBaseURL = "https://api.myanimelist.net/v2"
	// DefaultSearchLimit is the number of results requested per search
	DefaultSearchLimit = 5

	searchFields = "alternative_titles,title"
)

// Doer sends an HTTP request
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-200 response from MyAnimeList
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("myanimelist API error (status %d): %s", e.StatusCode, e.Body)
}

// ClientConfig holds configuration for the MyAnimeList client
type ClientConfig struct {
	// BaseURL is the API base URL (default: DefaultBaseURL)
	BaseURL string
	// ClientID is sent as X-MAL-CLIENT-ID
	ClientID string
}

// Client searches the MyAnimeList manga catalog
type Client struct {
	baseURL  string
	clientID string
	doer     Doer
	logger   *logger.Logger
}

// NewClient creates a new MyAnimeList client. Every request goes through doer.
func NewClient(cfg ClientConfig, doer Doer, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	if log == nil {
		log = logger.Get()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		doer:     doer,
		logger:   log.With(map[string]interface{}{"component": "mal_client"}),
	}
}

// SearchManga runs a text search and returns the matching nodes with their
// main and alternative titles
func (c *Client) SearchManga(ctx context.Context, query string, limit, offset int) ([]Manga, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("fields", searchFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/manga?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-MAL-CLIENT-ID", c.clientID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.logger.Error("MyAnimeList search failed", map[string]interface{}{
			"query": query,
			"error": apiErr.Error(),
		})
		return nil, apiErr
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	manga := make([]Manga, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		manga = append(manga, d.Node)
	}

	c.logger.Debug("MyAnimeList search completed", map[string]interface{}{
		"query":   query,
		"results": len(manga),
	})
	return manga, nil
}
