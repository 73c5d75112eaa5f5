// Package rag forwards knowledge-base queries and indexing to an external
// retrieval service.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("retrieval service not configured")

const DefaultTopK = 5

type Result struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type QueryResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Client talks to the retrieval service at baseURL. A Client with an empty
// base URL answers every call with ErrNotConfigured.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Configured() bool { return c.baseURL != "" }

func (c *Client) Query(ctx context.Context, query string, topK int) (*QueryResponse, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	var out QueryResponse
	err := c.post(ctx, "/query", map[string]any{"query": query, "top_k": topK}, &out)
	if err != nil {
		return nil, err
	}
	out.Query = query
	if out.Results == nil {
		out.Results = []Result{}
	}
	return &out, nil
}

// Index stores documents and returns how many were indexed.
func (c *Client) Index(ctx context.Context, documents []string) (int, error) {
	if err := c.post(ctx, "/index", map[string]any{"documents": documents}, nil); err != nil {
		return 0, err
	}
	return len(documents), nil
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("retrieval service %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode retrieval response: %w", err)
	}
	return nil
}
