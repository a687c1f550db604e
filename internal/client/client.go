// Package client talks to a running matchmaker server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lazypower/matchmaker/internal/server"
	"github.com/lazypower/matchmaker/internal/store"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 10 * time.Second
)

// Client talks to the matchmaker server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for the server at serverURL.
func New(serverURL string) *Client {
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// NewFromEnv respects MATCHMAKER_URL, falling back to http://127.0.0.1:37778.
func NewFromEnv() *Client {
	u := os.Getenv("MATCHMAKER_URL")
	if u == "" {
		u = defaultServerURL
	}
	return New(u)
}

// APIError is a non-2xx response. It unwraps to the store error matching
// its status so callers can keep using errors.Is.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusForbidden:
		return store.ErrOptedOut
	case http.StatusConflict:
		return store.ErrDuplicatePairing
	case http.StatusGatewayTimeout:
		return store.ErrTimeout
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

// FindMatches asks the server for suggestions for userID in a channel.
func (c *Client) FindMatches(ctx context.Context, tenantID, channelID, userID string) (*server.FindMatchesResponse, error) {
	var resp server.FindMatchesResponse
	err := c.do(ctx, http.MethodPost, "/api/matches", server.FindMatchesRequest{
		TenantID:  tenantID,
		ChannelID: channelID,
		UserID:    userID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordInteraction reports that requesterID acted on a suggestion.
func (c *Client) RecordInteraction(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind store.InteractionType) (*store.Match, error) {
	var m store.Match
	err := c.do(ctx, http.MethodPost, "/api/matches/interactions", server.InteractionRequest{
		TenantID:        tenantID,
		UserID:          requesterID,
		CandidateID:     candidateID,
		ChannelID:       channelID,
		InteractionType: string(kind),
	}, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// History lists a user's match records, newest first.
func (c *Client) History(ctx context.Context, tenantID, userID string, limit int) ([]store.Match, error) {
	path := fmt.Sprintf("/api/tenants/%s/users/%s/matches", url.PathEscape(tenantID), url.PathEscape(userID))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Matches []store.Match `json:"matches"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}
