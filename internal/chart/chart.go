// Package chart renders time-series data as chart images using the
// QuickChart HTTP service.
//
// QuickChart is a plain JSON-over-HTTP endpoint: the chart configuration is
// posted to /chart/create and the service answers with a short URL for the
// rendered image.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Default configuration for the QuickChart service.
const (
	DefaultBaseURL = "https://quickchart.io"
	DefaultTimeout = 15 * time.Second
	chartWidth     = 800
	chartHeight    = 400
)

// SeriesPoint is one labeled value in a rendered series.
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Opts holds configuration options for the renderer.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the renderer.
type Option func(*Opts)

// WithBaseURL overrides the QuickChart service base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout overrides the render request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Renderer turns series data into chart image URLs.
type Renderer struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewRenderer creates a QuickChart renderer, applying any provided options.
func NewRenderer(opts ...Option) *Renderer {
	cfg := Opts{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Renderer{baseURL: cfg.BaseURL, timeout: cfg.Timeout, client: client}
}

// createRequest is the QuickChart /chart/create payload.
type createRequest struct {
	Chart  interface{} `json:"chart"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

// createResponse is the QuickChart /chart/create answer.
type createResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// RenderBarChart renders the series as a bar chart and returns the image
// URL.
func (r *Renderer) RenderBarChart(ctx context.Context, title, datasetLabel string, series []SeriesPoint) (string, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("no series data to render")
	}

	labels := make([]string, len(series))
	values := make([]float64, len(series))
	for i, p := range series {
		labels[i] = p.Label
		values[i] = p.Value
	}

	config := map[string]interface{}{
		"type": "bar",
		"data": map[string]interface{}{
			"labels": labels,
			"datasets": []map[string]interface{}{{
				"label":           datasetLabel,
				"data":            values,
				"backgroundColor": "rgba(82, 130, 255, 0.8)",
				"borderColor":     "rgb(82, 130, 255)",
				"borderWidth":     1,
			}},
		},
		"options": map[string]interface{}{
			"scales": map[string]interface{}{
				"y": map[string]interface{}{
					"beginAtZero": true,
					"ticks":       map[string]interface{}{"stepSize": 1},
				},
			},
			"plugins": map[string]interface{}{
				"title": map[string]interface{}{"display": true, "text": title},
			},
		},
	}

	body, err := json.Marshal(createRequest{Chart: config, Width: chartWidth, Height: chartHeight})
	if err != nil {
		return "", fmt.Errorf("failed to encode chart config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chart/create", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Error("Chart render request failed", "error", err)
		return "", fmt.Errorf("chart render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Chart service returned non-OK status", "status", resp.StatusCode)
		return "", fmt.Errorf("chart service returned status %d", resp.StatusCode)
	}

	var decoded createResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode chart response: %w", err)
	}
	if decoded.URL == "" {
		return "", fmt.Errorf("chart service returned no URL")
	}

	slog.Debug("Chart rendered", "url", decoded.URL, "points", len(series))
	return decoded.URL, nil
}
