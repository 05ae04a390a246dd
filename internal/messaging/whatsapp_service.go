package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obenan/reviewbridge/internal/models"
)

// WhatsAppSender is the part of the whatsapp client this service depends
// on.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	OnIncomingMessage(handler func(from, body string, at time.Time))
	Disconnect()
}

// WhatsAppService implements Service using a linked-device whatsmeow
// client.
type WhatsAppService struct {
	client    WhatsAppSender
	responses chan models.IncomingMessage
	mu        sync.RWMutex
	stopped   bool
}

// NewWhatsAppService creates a messaging service over the given whatsapp
// client.
func NewWhatsAppService(client WhatsAppSender) *WhatsAppService {
	return &WhatsAppService{
		client:    client,
		responses: make(chan models.IncomingMessage, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient strips non-digits and validates length.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the inbound event handler on the whatsmeow client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.client.OnIncomingMessage(func(from, body string, at time.Time) {
		s.safeEmit(models.IncomingMessage{
			From: from,
			Kind: models.EventKindText,
			Body: body,
			Time: at.Unix(),
		})
	})
	return nil
}

// Stop disconnects the client and closes the responses channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.client.Disconnect()
	close(s.responses)
	return nil
}

// Responses returns the channel of inbound platform events.
func (s *WhatsAppService) Responses() <-chan models.IncomingMessage {
	return s.responses
}

// SendMessage sends a text message through the linked device.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService recipient validation failed", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendImage sends the image URL as a text message; the linked-device
// transport relies on WhatsApp link previews instead of media uploads.
func (s *WhatsAppService) SendImage(ctx context.Context, to string, url string) error {
	return s.SendMessage(ctx, to, url)
}

// safeEmit holds the read lock across the send so Stop cannot close the
// channel mid-emit.
func (s *WhatsAppService) safeEmit(event models.IncomingMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService dropping inbound event (service stopped)", "from", event.From)
		return
	}

	select {
	case s.responses <- event:
		slog.Debug("WhatsAppService emitted inbound event", "from", event.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping event", "from", event.From)
	}
}
