package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obenan/reviewbridge/internal/catalog"
	"github.com/obenan/reviewbridge/internal/chart"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("org_test",
		[]catalog.Entry{
			{Name: "Alpha", ProviderID: "loc_alpha"},
			{Name: "Beta", ProviderID: "loc_beta"},
		},
		[]catalog.Entry{
			{Name: "Google Reviews", ProviderID: "google"},
			{Name: "Yelp", ProviderID: "yelp"},
		},
	)
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	return c
}

// fakeRenderer returns a fixed URL or error.
type fakeRenderer struct {
	url    string
	err    error
	series []chart.SeriesPoint
}

func (f *fakeRenderer) RenderBarChart(ctx context.Context, title, datasetLabel string, series []chart.SeriesPoint) (string, error) {
	f.series = series
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	all := append([]Option{
		WithBaseURL(url),
		WithEndpoint("/chat"),
		WithRetryDelay(time.Millisecond),
		WithRenderer(&fakeRenderer{url: "https://charts.example/1"}),
	}, opts...)
	return NewClient(testCatalog(t), all...)
}

func TestAskSendsProviderPayload(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "4.2 stars"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Ask(context.Background(), []string{"Alpha", "Beta"}, []string{"Yelp"}, "average rating?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.Answer != "4.2 stars" || result.HasChart {
		t.Errorf("result = %+v, want text-only answer", result)
	}

	if captured["prompt"] != "average rating?" {
		t.Errorf("prompt = %v", captured["prompt"])
	}
	locs := captured["location_id"].([]interface{})
	if len(locs) != 2 || locs[0] != "loc_alpha" || locs[1] != "loc_beta" {
		t.Errorf("location_id = %v", locs)
	}
	srcs := captured["thirdPartyReviewSourcesId"].([]interface{})
	if len(srcs) != 1 || srcs[0] != "yelp" {
		t.Errorf("thirdPartyReviewSourcesId = %v", srcs)
	}
	companies := captured["companyId"].([]interface{})
	if len(companies) != 1 || companies[0] != "org_test" {
		t.Errorf("companyId = %v", companies)
	}
}

func TestAskAcceptsAnswerKeyedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": "from answer key"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.Answer != "from answer key" {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestAskRendersGraphResponseSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": "3 posts in May",
			"graph_response": map[string]interface{}{
				"data": []map[string]interface{}{
					{"Date": "2025-05-01", "Number of Posts": 2},
					{"Date": "2025-05-02", "Number of Posts": 1},
					{"unrelated": true},
				},
			},
		})
	}))
	defer srv.Close()

	renderer := &fakeRenderer{url: "https://charts.example/posts"}
	c := newTestClient(t, srv.URL, WithRenderer(renderer))
	result, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "posts per day?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !result.HasChart || result.ChartURL != "https://charts.example/posts" {
		t.Errorf("result = %+v, want chart attached", result)
	}
	if len(renderer.series) != 2 {
		t.Fatalf("renderer got %d points, want 2 (malformed point skipped)", len(renderer.series))
	}
	if renderer.series[0].Label != "2025-05-01" || renderer.series[0].Value != 2 {
		t.Errorf("first point = %+v", renderer.series[0])
	}
}

func TestAskChartFailureDegradesToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"answer": "still useful",
			"series": []map[string]interface{}{{"label": "a", "value": 1}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithRenderer(&fakeRenderer{err: errors.New("render down")}))
	result, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.HasChart || result.Answer != "still useful" {
		t.Errorf("result = %+v, want text-only fallback", result)
	}
}

func TestAskMissingSelectionsFailFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider should not be called")
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Ask(context.Background(), nil, []string{"Yelp"}, "q")
	if KindOf(err) != KindMissingLocations {
		t.Errorf("kind = %q, want %q", KindOf(err), KindMissingLocations)
	}

	_, err = c.Ask(context.Background(), []string{"Alpha"}, []string{"Unknown Source"}, "q")
	if KindOf(err) != KindMissingSources {
		t.Errorf("kind = %q, want %q", KindOf(err), KindMissingSources)
	}
}

func TestAskRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "third time lucky"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithMaxAttempts(3))
	result, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
	if err != nil {
		t.Fatalf("Ask failed after retries: %v", err)
	}
	if result.Answer != "third time lucky" {
		t.Errorf("answer = %q", result.Answer)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("provider called %d times, want 3", got)
	}
}

func TestAskExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithMaxAttempts(2))
	_, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("provider called %d times, want 2", got)
	}
	if KindOf(err) != KindUnknown {
		t.Errorf("kind = %q, want %q", KindOf(err), KindUnknown)
	}
}

func TestAskStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusNotFound, KindServiceNotFound},
		{http.StatusForbidden, KindServiceDenied},
		{http.StatusBadGateway, KindUnknown},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := newTestClient(t, srv.URL, WithMaxAttempts(1))
		_, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
		if KindOf(err) != tt.kind {
			t.Errorf("status %d: kind = %q, want %q", tt.status, KindOf(err), tt.kind)
		}
		srv.Close()
	}
}

func TestAskMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"missing answer", `{"status":"ok"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c := newTestClient(t, srv.URL, WithMaxAttempts(1))
			_, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
			if KindOf(err) != KindMalformedResponse {
				t.Errorf("kind = %q, want %q", KindOf(err), KindMalformedResponse)
			}
		})
	}
}

func TestAskUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	c := newTestClient(t, srv.URL, WithMaxAttempts(1))
	_, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
	if KindOf(err) != KindServiceUnreachable {
		t.Errorf("kind = %q, want %q", KindOf(err), KindServiceUnreachable)
	}
}

func TestAskOverallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithMaxAttempts(1), WithTimeout(50*time.Millisecond))
	_, err := c.Ask(context.Background(), []string{"Alpha"}, []string{"Yelp"}, "q")
	if KindOf(err) != KindServiceTimeout {
		t.Errorf("kind = %q, want %q", KindOf(err), KindServiceTimeout)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindUnknown)
	}
	wrapped := newError(KindServiceDenied, "denied", nil)
	if got := KindOf(wrapped); got != KindServiceDenied {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindServiceDenied)
	}
}
