// Package analytics wraps the Obenan review-analytics provider.
//
// It translates a (locations, sources, question) triple into a provider
// request, retries transient failures, and normalizes the provider's answer
// plus optional chart series into a uniform result.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/obenan/reviewbridge/internal/catalog"
	"github.com/obenan/reviewbridge/internal/chart"
)

// Default configuration for the analytics provider.
const (
	DefaultBaseURL     = "https://reviewanalyser.obenan.com"
	DefaultEndpoint    = "/chat"
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// ChartRenderer turns series data into a chart image URL.
type ChartRenderer interface {
	RenderBarChart(ctx context.Context, title, datasetLabel string, series []chart.SeriesPoint) (string, error)
}

// Result is the normalized provider answer.
type Result struct {
	Answer   string
	HasChart bool
	ChartURL string
}

// Opts holds configuration options for the analytics client.
type Opts struct {
	BaseURL     string
	Endpoint    string
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
	Renderer    ChartRenderer
}

// Option defines a configuration option for the analytics client.
type Option func(*Opts)

// WithBaseURL overrides the provider base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithEndpoint overrides the provider endpoint path.
func WithEndpoint(path string) Option {
	return func(o *Opts) { o.Endpoint = path }
}

// WithMaxAttempts sets the total number of attempts per question.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// WithRetryDelay sets the fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Opts) { o.RetryDelay = d }
}

// WithTimeout sets the overall deadline wrapping the provider call,
// retries included.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithRenderer injects the chart renderer.
func WithRenderer(r ChartRenderer) Option {
	return func(o *Opts) { o.Renderer = r }
}

// Client asks the review-analytics provider natural-language questions
// about selected locations and sources.
type Client struct {
	catalog     *catalog.Catalog
	url         string
	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration
	client      *http.Client
	renderer    ChartRenderer
}

// NewClient creates an analytics client for the given catalog, applying any
// provided options.
func NewClient(cat *catalog.Catalog, opts ...Option) *Client {
	cfg := Opts{
		BaseURL:     DefaultBaseURL,
		Endpoint:    DefaultEndpoint,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = chart.NewRenderer()
	}
	slog.Debug("Analytics NewClient configured",
		"base_url", cfg.BaseURL, "endpoint", cfg.Endpoint,
		"max_attempts", cfg.MaxAttempts, "retry_delay", cfg.RetryDelay, "timeout", cfg.Timeout)
	return &Client{
		catalog:     cat,
		url:         cfg.BaseURL + cfg.Endpoint,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		timeout:     cfg.Timeout,
		client:      client,
		renderer:    renderer,
	}
}

// chatRequest carries the provider's historical field names.
type chatRequest struct {
	Prompt      string   `json:"prompt"`
	LocationIDs []string `json:"location_id"`
	SourceIDs   []string `json:"thirdPartyReviewSourcesId"`
	CompanyIDs  []string `json:"companyId"`
}

// chatResponse tolerates both historically seen body shapes: a
// "response"-keyed answer with graph_response data, and an "answer"-keyed
// answer with a generic series list.
type chatResponse struct {
	Response      string            `json:"response"`
	Answer        string            `json:"answer"`
	GraphResponse *graphResponse    `json:"graph_response"`
	Series        []json.RawMessage `json:"series"`
}

type graphResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Ask resolves the selections, queries the provider with bounded retries,
// and renders any returned series as a chart image.
func (c *Client) Ask(ctx context.Context, locations, sources []string, question string) (*Result, error) {
	locationIDs := c.catalog.ResolveLocations(locations)
	if len(locationIDs) == 0 {
		return nil, newError(KindMissingLocations, "no valid location identifiers selected", nil)
	}
	sourceIDs := c.catalog.ResolveSources(sources)
	if len(sourceIDs) == 0 {
		return nil, newError(KindMissingSources, "no valid source identifiers selected", nil)
	}

	payload, err := json.Marshal(chatRequest{
		Prompt:      question,
		LocationIDs: locationIDs,
		SourceIDs:   sourceIDs,
		CompanyIDs:  []string{c.catalog.OrganizationID},
	})
	if err != nil {
		return nil, newError(KindUnknown, "failed to encode analytics request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr *Error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		slog.Debug("Analytics Ask attempt", "attempt", attempt, "locations", len(locationIDs), "sources", len(sourceIDs))
		answer, series, aerr := c.doRequest(ctx, payload)
		if aerr == nil {
			return c.buildResult(ctx, answer, series), nil
		}
		lastErr = aerr
		slog.Warn("Analytics attempt failed", "attempt", attempt, "kind", aerr.Kind, "error", aerr)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, newError(KindServiceTimeout, "analytics call deadline exceeded", ctx.Err())
		}
	}
	return nil, lastErr
}

// doRequest issues one provider request and classifies any failure.
func (c *Client) doRequest(ctx context.Context, payload []byte) (string, []chart.SeriesPoint, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", nil, newError(KindUnknown, "failed to build analytics request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", nil, newError(KindServiceNotFound, "analytics endpoint not found", nil)
	case http.StatusForbidden:
		return "", nil, newError(KindServiceDenied, "analytics access denied", nil)
	default:
		return "", nil, newError(KindUnknown, fmt.Sprintf("analytics returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, classifyTransport(err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", nil, newError(KindMalformedResponse, "analytics body is not valid JSON", err)
	}

	answer := decoded.Response
	if answer == "" {
		answer = decoded.Answer
	}
	if answer == "" {
		return "", nil, newError(KindMalformedResponse, "analytics body missing answer field", nil)
	}

	raw := decoded.Series
	if decoded.GraphResponse != nil && len(decoded.GraphResponse.Data) > 0 {
		raw = decoded.GraphResponse.Data
	}
	return answer, decodeSeries(raw), nil
}

// buildResult attaches a rendered chart when series data is present. Chart
// failures degrade to a text-only result.
func (c *Client) buildResult(ctx context.Context, answer string, series []chart.SeriesPoint) *Result {
	result := &Result{Answer: answer}
	if len(series) == 0 {
		return result
	}
	url, err := c.renderer.RenderBarChart(ctx, "Posts by Date", "Number of Posts", series)
	if err != nil {
		slog.Warn("Analytics chart rendering failed, returning text-only result", "error", err)
		return result
	}
	result.HasChart = true
	result.ChartURL = url
	return result
}

// decodeSeries accepts both the provider's graph_response items
// (Date / "Number of Posts") and generic label/value pairs. Points missing
// both shapes are skipped.
func decodeSeries(raw []json.RawMessage) []chart.SeriesPoint {
	var series []chart.SeriesPoint
	for _, item := range raw {
		var fields map[string]interface{}
		if err := json.Unmarshal(item, &fields); err != nil {
			continue
		}
		label, ok := stringField(fields, "label", "Date")
		if !ok {
			continue
		}
		value, ok := numberField(fields, "value", "Number of Posts")
		if !ok {
			continue
		}
		series = append(series, chart.SeriesPoint{Label: label, Value: value})
	}
	return series
}

func stringField(fields map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func numberField(fields map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := fields[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// classifyTransport maps transport-level failures to the error taxonomy.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindServiceTimeout, "analytics request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindServiceTimeout, "analytics request timed out", err)
	}
	return newError(KindServiceUnreachable, "could not reach analytics service", err)
}
