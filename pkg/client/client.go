// Package client is a thin Go SDK for the analysis API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"orgrisk-backend/pkg/api"
)

type Client struct {
	http *resty.Client
}

func New(baseURL string) *Client {
	return &Client{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(60 * time.Second),
	}
}

// APIError is a non-2xx response from the server. Message carries the
// server's plain-text error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func decode[T any](res *resty.Response, err error) (*T, error) {
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", res.Request.URL, err)
	}
	if !res.IsSuccess() {
		return nil, &APIError{StatusCode: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}
	var out T
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return nil, fmt.Errorf("error parsing response from %s: %w", res.Request.URL, err)
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	return decode[api.HealthResponse](c.http.R().SetContext(ctx).Get("/health"))
}

// Analyze scores one post. save=false skips the server-side history row.
func (c *Client) Analyze(ctx context.Context, req api.AnalyzeRequest, save bool) (*api.AnalyzeResponse, error) {
	return decode[api.AnalyzeResponse](c.http.R().
		SetContext(ctx).
		SetQueryParam("save", strconv.FormatBool(save)).
		SetBody(req).
		Post("/analyze"))
}

func (c *Client) Compare(ctx context.Context, req api.CompareRequest, save bool) (*api.CompareResponse, error) {
	return decode[api.CompareResponse](c.http.R().
		SetContext(ctx).
		SetQueryParam("save", strconv.FormatBool(save)).
		SetBody(req).
		Post("/analyze/compare"))
}

// History fetches past runs, newest first. limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, limit int) (*api.HistoryResponse, error) {
	r := c.http.R().SetContext(ctx)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	return decode[api.HistoryResponse](r.Get("/history"))
}

// Similar runs a retriever lookup. k <= 0 uses the server default, filter ""
// applies no filter.
func (c *Client) Similar(ctx context.Context, text string, k int, filter string) (*api.SimilarResponse, error) {
	r := c.http.R().SetContext(ctx).SetQueryParam("text", text)
	if k > 0 {
		r.SetQueryParam("k", strconv.Itoa(k))
	}
	if filter != "" {
		r.SetQueryParam("filter", filter)
	}
	return decode[api.SimilarResponse](r.Get("/similar"))
}
