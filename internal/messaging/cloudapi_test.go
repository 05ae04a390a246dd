package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/obenan/reviewbridge/internal/models"
)

func newCloudService(t *testing.T, opts ...CloudAPIOption) *CloudAPIService {
	t.Helper()
	all := append([]CloudAPIOption{
		WithPhoneNumberID("123456789"),
		WithAccessToken("test-token"),
	}, opts...)
	s, err := NewCloudAPIService(all...)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestNewCloudAPIServiceRequiresCredentials(t *testing.T) {
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "")
	t.Setenv("WHATSAPP_TOKEN", "")
	if _, err := NewCloudAPIService(); err == nil {
		t.Fatal("expected error without credentials, got nil")
	}
	if _, err := NewCloudAPIService(WithPhoneNumberID("123")); err == nil {
		t.Fatal("expected error without access token, got nil")
	}
}

func TestCloudAPISendMessage(t *testing.T) {
	var captured struct {
		MessagingProduct string `json:"messaging_product"`
		To               string `json:"to"`
		Type             string `json:"type"`
		Text             struct {
			Body string `json:"body"`
		} `json:"text"`
	}
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newCloudService(t, WithGraphBaseURL(srv.URL))
	if err := s.SendMessage(context.Background(), "+31 612345678", "hello there"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/123456789/messages" {
		t.Errorf("path = %q, want /123456789/messages", gotPath)
	}
	if captured.MessagingProduct != "whatsapp" || captured.Type != "text" {
		t.Errorf("payload = %+v", captured)
	}
	if captured.To != "31612345678" {
		t.Errorf("to = %q, want canonicalized digits", captured.To)
	}
	if captured.Text.Body != "hello there" {
		t.Errorf("body = %q", captured.Text.Body)
	}
}

func TestCloudAPISendImage(t *testing.T) {
	var captured struct {
		Type  string `json:"type"`
		Image struct {
			Link string `json:"link"`
		} `json:"image"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newCloudService(t, WithGraphBaseURL(srv.URL))
	if err := s.SendImage(context.Background(), "31612345678", "https://charts.example/1"); err != nil {
		t.Fatalf("SendImage failed: %v", err)
	}
	if captured.Type != "image" || captured.Image.Link != "https://charts.example/1" {
		t.Errorf("payload = %+v", captured)
	}
}

func TestCloudAPISendRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := newCloudService(t, WithGraphBaseURL(srv.URL))
	if err := s.SendMessage(context.Background(), "31612345678", "hi"); err == nil {
		t.Fatal("expected error for rejected send, got nil")
	}
}

func TestCloudAPISendAfterStop(t *testing.T) {
	s := newCloudService(t)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.SendMessage(context.Background(), "31612345678", "hi"); err != ErrServiceStopped {
		t.Errorf("error = %v, want ErrServiceStopped", err)
	}
	// Stop is idempotent.
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func postWebhook(t *testing.T, s *CloudAPIService, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.WebhookHandler(w, req)
	return w
}

func TestCloudAPIWebhookTextMessage(t *testing.T) {
	s := newCloudService(t)
	w := postWebhook(t, s, `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"from": "31612345678",
						"type": "text",
						"timestamp": "1748800000",
						"text": {"body": "org lpq"}
					}]
				}
			}]
		}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	select {
	case event := <-s.Responses():
		if event.From != "31612345678" || event.Body != "org lpq" {
			t.Errorf("event = %+v", event)
		}
		if event.Kind != models.EventKindText {
			t.Errorf("kind = %q, want text", event.Kind)
		}
		if event.Time != 1748800000 {
			t.Errorf("time = %d, want 1748800000", event.Time)
		}
	default:
		t.Fatal("no event queued")
	}
}

func TestCloudAPIWebhookListReply(t *testing.T) {
	s := newCloudService(t)
	w := postWebhook(t, s, `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"from": "31612345678",
						"type": "interactive",
						"interactive": {
							"type": "list_reply",
							"list_reply": {"id": "1,3", "title": "Two locations"}
						}
					}]
				}
			}]
		}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	select {
	case event := <-s.Responses():
		if event.Kind != models.EventKindSelection || event.Body != "1,3" {
			t.Errorf("event = %+v", event)
		}
	default:
		t.Fatal("no event queued")
	}
}

func TestCloudAPIWebhookStatusesOnly(t *testing.T) {
	s := newCloudService(t)
	w := postWebhook(t, s, `{
		"entry": [{
			"changes": [{
				"value": {
					"statuses": [{
						"recipient_id": "31612345678",
						"status": "delivered",
						"conversation": {"id": "conv1"}
					}]
				}
			}]
		}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	select {
	case event := <-s.Responses():
		t.Fatalf("unexpected event for status update: %+v", event)
	default:
	}
}

func TestCloudAPIWebhookIgnoresUnsupportedTypes(t *testing.T) {
	s := newCloudService(t)
	w := postWebhook(t, s, `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{"from": "31612345678", "type": "audio"}]
				}
			}]
		}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	select {
	case event := <-s.Responses():
		t.Fatalf("unexpected event for audio message: %+v", event)
	default:
	}
}

func TestCloudAPIWebhookMalformedRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"empty object", `{}`},
		{"empty entry", `{"entry": []}`},
		{"entry without changes", `{"entry": [{"changes": []}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newCloudService(t)
			w := postWebhook(t, s, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}
