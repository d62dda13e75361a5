package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hasura/go-graphql-client"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
)

// DefaultBaseURL is the AniList GraphQL endpoint
const DefaultBaseURL = "https://graphql.anilist.co"

// SearchPageSize is the number of candidates requested per title search
const SearchPageSize = 50

const searchMediaQuery = `query ($search: String) {
  Page(perPage: 50) {
    media(search: $search, type: MANGA) {
      id
      title {
        romaji
        english
      }
    }
  }
}`

const saveMediaListEntryMutation = `mutation ($mediaId: Int, $status: MediaListStatus, $progress: Int) {
  SaveMediaListEntry(mediaId: $mediaId, status: $status, progress: $progress) {
    id
    status
    progress
  }
}`

// Doer sends an HTTP request. *http.Client and *executor.Executor both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// doerFunc adapts a function to the Doer interface
type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// ClientConfig holds configuration for the AniList client
type ClientConfig struct {
	// BaseURL is the GraphQL endpoint (default: DefaultBaseURL)
	BaseURL string
	// Token is the OAuth bearer token
	Token string
}

// Client talks to the AniList GraphQL API
type Client struct {
	baseURL string
	token   string
	doer    Doer
	logger  *logger.Logger
}

// NewClient creates a new AniList client. Every request goes through doer.
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
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		doer:    doer,
		logger:  log.With(map[string]interface{}{"component": "anilist_client"}),
	}
}

// GetAuthHeader returns the Authorization header value
func (c *Client) GetAuthHeader() string {
	token := strings.TrimSpace(c.token)
	if token != "" && !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	return token
}

// SearchMedia returns up to SearchPageSize manga matching search, in the
// order AniList ranks them. No match is an empty slice, not an error.
func (c *Client) SearchMedia(ctx context.Context, search string) ([]Media, error) {
	var result struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	}

	if err := c.execute(ctx, "SearchMedia", searchMediaQuery, map[string]interface{}{
		"search": search,
	}, &result); err != nil {
		return nil, fmt.Errorf("failed to search media %q: %w", search, err)
	}

	c.logger.Debug("Media search completed", map[string]interface{}{
		"search":  search,
		"results": len(result.Page.Media),
	})
	return result.Page.Media, nil
}

// SaveMediaListEntry sets the list status and progress of a media entry
func (c *Client) SaveMediaListEntry(ctx context.Context, mediaID int, status string, progress int) (*MediaListEntry, error) {
	var result struct {
		SaveMediaListEntry *MediaListEntry `json:"SaveMediaListEntry"`
	}

	if err := c.execute(ctx, "SaveMediaListEntry", saveMediaListEntryMutation, map[string]interface{}{
		"mediaId":  mediaID,
		"status":   status,
		"progress": progress,
	}, &result); err != nil {
		return nil, WithMediaID(fmt.Errorf("failed to save media list entry: %w", err), mediaID)
	}

	if result.SaveMediaListEntry == nil {
		return nil, WithMediaID(&RemoteError{
			Operation:  "SaveMediaListEntry",
			StatusCode: http.StatusOK,
			Message:    "empty SaveMediaListEntry in response",
		}, mediaID)
	}

	c.logger.Info("Media list entry saved", map[string]interface{}{
		"media_id": mediaID,
		"status":   result.SaveMediaListEntry.Status,
		"progress": result.SaveMediaListEntry.Progress,
	})
	return result.SaveMediaListEntry, nil
}

// execute runs a GraphQL operation and decodes its data into result.
// Transport errors from the doer are returned unchanged so callers can tell
// them apart from a *RemoteError.
func (c *Client) execute(ctx context.Context, op, query string, variables map[string]interface{}, result interface{}) error {
	var (
		transportErr error
		statusCode   int
		errorBody    []byte
	)

	capture := doerFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := c.doer.Do(req)
		if err != nil {
			transportErr = err
			return nil, err
		}

		statusCode = resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			errorBody = body
			resp.Body = io.NopCloser(bytes.NewReader(body))
		}
		return resp, nil
	})

	gql := graphql.NewClient(c.baseURL, capture).WithRequestModifier(func(r *http.Request) {
		r.Header.Set("Authorization", c.GetAuthHeader())
		r.Header.Set("Accept", "application/json")
	})

	c.logger.Debug("Executing GraphQL request", map[string]interface{}{
		"operation": op,
		"variables": variables,
	})

	data, err := gql.ExecRaw(ctx, query, variables)
	if transportErr != nil {
		return transportErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if statusCode != 0 && statusCode != http.StatusOK {
		remote := &RemoteError{
			Operation:  op,
			StatusCode: statusCode,
			Message:    strings.TrimSpace(string(errorBody)),
		}
		c.logger.Error("GraphQL request failed with HTTP error", map[string]interface{}{
			"error": remote.Error(),
		})
		return remote
	}

	if err != nil {
		remote := &RemoteError{
			Operation:  op,
			StatusCode: statusCode,
			Message:    err.Error(),
		}
		c.logger.Error("GraphQL operation failed", map[string]interface{}{
			"error": remote.Error(),
		})
		return remote
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to unmarshal GraphQL data: %w", err)
	}
	return nil
}
