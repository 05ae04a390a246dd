package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/obenan/reviewbridge/internal/models"
)

// DefaultGraphBaseURL is the Meta Graph API base used by the Cloud API
// backend.
const DefaultGraphBaseURL = "https://graph.facebook.com/v22.0"

// CloudAPIOpts holds configuration for the WhatsApp Cloud API backend.
type CloudAPIOpts struct {
	PhoneNumberID string
	AccessToken   string
	BaseURL       string
	HTTPClient    *http.Client
}

// CloudAPIOption defines a configuration option for the Cloud API backend.
type CloudAPIOption func(*CloudAPIOpts)

// WithPhoneNumberID sets the WhatsApp Business phone number identifier.
func WithPhoneNumberID(id string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.PhoneNumberID = id }
}

// WithAccessToken sets the Graph API bearer token.
func WithAccessToken(token string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.AccessToken = token }
}

// WithGraphBaseURL overrides the Graph API base URL (used in tests).
func WithGraphBaseURL(url string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.BaseURL = url }
}

// WithCloudHTTPClient injects a custom HTTP client (used in tests).
func WithCloudHTTPClient(c *http.Client) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.HTTPClient = c }
}

// CloudAPIService implements Service against the WhatsApp Business Cloud
// API. Inbound events arrive through WebhookHandler.
type CloudAPIService struct {
	phoneNumberID string
	token         string
	baseURL       string
	client        *http.Client
	responses     chan models.IncomingMessage
	mu            sync.RWMutex
	stopped       bool
}

// NewCloudAPIService creates a Cloud API backend, falling back to the
// WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_TOKEN environment variables for
// credentials not provided via options.
func NewCloudAPIService(opts ...CloudAPIOption) (*CloudAPIService, error) {
	var cfg CloudAPIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("WHATSAPP_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	slog.Debug("CloudAPIService config loaded",
		"phone_number_id_set", cfg.PhoneNumberID != "",
		"token_set", cfg.AccessToken != "")

	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("phone number ID must be provided")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token must be provided")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CloudAPIService{
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.AccessToken,
		baseURL:       cfg.BaseURL,
		client:        client,
		responses:     make(chan models.IncomingMessage, DefaultChannelBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient strips non-digits and validates length.
func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound events are pushed by the webhook handler.
func (s *CloudAPIService) Start(ctx context.Context) error { return nil }

// Stop marks the service stopped and closes the responses channel.
func (s *CloudAPIService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.responses)
	return nil
}

// Responses returns the channel of inbound platform events.
func (s *CloudAPIService) Responses() <-chan models.IncomingMessage {
	return s.responses
}

// graphMessage is the Cloud API send payload.
type graphMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *graphText  `json:"text,omitempty"`
	Image            *graphImage `json:"image,omitempty"`
}

type graphText struct {
	Body string `json:"body"`
}

type graphImage struct {
	Link string `json:"link"`
}

// SendMessage sends a text message through the Cloud API.
func (s *CloudAPIService) SendMessage(ctx context.Context, to string, body string) error {
	return s.post(ctx, to, graphMessage{Type: "text", Text: &graphText{Body: body}})
}

// SendImage sends an image message; url is the image link.
func (s *CloudAPIService) SendImage(ctx context.Context, to string, url string) error {
	return s.post(ctx, to, graphMessage{Type: "image", Image: &graphImage{Link: url}})
}

func (s *CloudAPIService) post(ctx context.Context, to string, msg graphMessage) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("CloudAPIService recipient validation failed", "error", err, "to", to)
		return err
	}

	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	msg.To = canonicalTo

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("CloudAPIService send request failed", "error", err, "to", canonicalTo)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("CloudAPIService send rejected", "status", resp.StatusCode, "to", canonicalTo, "detail", string(detail))
		return fmt.Errorf("cloud API returned status %d for %s", resp.StatusCode, canonicalTo)
	}

	slog.Debug("CloudAPIService message sent", "to", canonicalTo, "type", msg.Type)
	return nil
}

// Webhook envelope shapes for the Cloud API.
type webhookEnvelope struct {
	Entry []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	Messages []cloudMessage `json:"messages"`
	Statuses []cloudStatus  `json:"statuses"`
}

type cloudMessage struct {
	From        string `json:"from"`
	Type        string `json:"type"`
	Timestamp   string `json:"timestamp"`
	Text        struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type      string `json:"type"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type cloudStatus struct {
	RecipientID  string `json:"recipient_id"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

// RegisterWebhooks mounts the Cloud API webhook endpoint.
func (s *CloudAPIService) RegisterWebhooks(r chi.Router) {
	r.Post("/webhook", s.WebhookHandler)
}

// WebhookHandler handles inbound Cloud API webhook requests. Malformed
// envelopes get 400; recognized events are queued and answered with 200.
func (s *CloudAPIService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		slog.Warn("CloudAPIService webhook body is not valid JSON", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(envelope.Entry) == 0 || len(envelope.Entry[0].Changes) == 0 {
		slog.Warn("CloudAPIService webhook envelope missing entry or changes")
		http.Error(w, "invalid request format", http.StatusBadRequest)
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				s.handleInbound(msg)
			}
			for _, status := range change.Value.Statuses {
				// Status updates are informational only.
				slog.Info("CloudAPIService message status update",
					"recipient_id", status.RecipientID,
					"status", status.Status,
					"conversation_id", status.Conversation.ID)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

// handleInbound converts one Cloud API message into an engine event.
func (s *CloudAPIService) handleInbound(msg cloudMessage) {
	event := models.IncomingMessage{From: msg.From, Time: parseUnixString(msg.Timestamp)}
	switch msg.Type {
	case "text":
		event.Kind = models.EventKindText
		event.Body = msg.Text.Body
	case "interactive":
		if msg.Interactive.Type != "list_reply" {
			slog.Debug("CloudAPIService ignoring interactive message", "interactive_type", msg.Interactive.Type)
			return
		}
		event.Kind = models.EventKindSelection
		event.Body = msg.Interactive.ListReply.ID
	default:
		slog.Debug("CloudAPIService ignoring unsupported message type", "type", msg.Type, "from", msg.From)
		return
	}

	s.safeEmit(event)
}

// safeEmit pushes an event into the responses channel, dropping it if the
// channel stays blocked. The read lock is held across the send so Stop
// cannot close the channel mid-emit.
func (s *CloudAPIService) safeEmit(event models.IncomingMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("CloudAPIService dropping inbound event (service stopped)", "from", event.From)
		return
	}

	select {
	case s.responses <- event:
		slog.Debug("CloudAPIService emitted inbound event", "from", event.From, "kind", event.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("CloudAPIService responses channel blocked, dropping event", "from", event.From)
	}
}

func parseUnixString(ts string) int64 {
	if ts == "" {
		return time.Now().Unix()
	}
	v, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now().Unix()
	}
	return v
}
