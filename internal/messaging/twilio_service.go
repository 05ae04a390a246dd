package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/obenan/reviewbridge/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration for the Twilio WhatsApp backend.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio backend.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending WhatsApp number, in
// "whatsapp:+1234567890" format.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioService implements Service using the Twilio WhatsApp API. Inbound
// events arrive through WebhookHandler.
type TwilioService struct {
	client    *twilio.RestClient
	from      string
	responses chan models.IncomingMessage
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a Twilio backend, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables for credentials not provided via options.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("TwilioService config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{
		client:    client,
		from:      cfg.FromNumber,
		responses: make(chan models.IncomingMessage, DefaultChannelBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient strips non-digits and validates length.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound events are pushed by the webhook handler.
func (s *TwilioService) Start(ctx context.Context) error { return nil }

// Stop marks the service stopped and closes the responses channel.
func (s *TwilioService) Stop() error {
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
func (s *TwilioService) Responses() <-chan models.IncomingMessage {
	return s.responses
}

// SendMessage sends a text message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	return s.create(to, body, "")
}

// SendImage sends an image message via Twilio using a media URL.
func (s *TwilioService) SendImage(ctx context.Context, to string, url string) error {
	return s.create(to, "", url)
}

func (s *TwilioService) create(to, body, mediaURL string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService recipient validation failed", "error", err, "to", to)
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonicalTo)
	params.SetFrom(s.from)
	if body != "" {
		params.SetBody(body)
	}
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService send failed", "error", err, "to", canonicalTo)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}
	slog.Debug("TwilioService message sent", "to", canonicalTo, "has_media", mediaURL != "")
	return nil
}

// RegisterWebhooks mounts the Twilio webhook endpoint.
func (s *TwilioService) RegisterWebhooks(r chi.Router) {
	r.Post("/webhook/twilio", s.WebhookHandler)
}

// WebhookHandler handles inbound Twilio webhook requests. It parses the
// form-encoded message and queues it as an engine event.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService failed to parse webhook form", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	// Sessions are keyed by bare digits across all backends.
	canonicalFrom, err := canonicalizePhone(from)
	if err != nil {
		slog.Warn("TwilioService webhook sender is not a valid phone number", "error", err, "from", from)
		http.Error(w, "invalid sender", http.StatusBadRequest)
		return
	}

	s.safeEmit(models.IncomingMessage{
		From: canonicalFrom,
		Kind: models.EventKindText,
		Body: body,
		Time: time.Now().Unix(),
	})
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// safeEmit holds the read lock across the send so Stop cannot close the
// channel mid-emit.
func (s *TwilioService) safeEmit(event models.IncomingMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound event (service stopped)", "from", event.From)
		return
	}

	select {
	case s.responses <- event:
		slog.Debug("TwilioService emitted inbound event", "from", event.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping event", "from", event.From)
	}
}
