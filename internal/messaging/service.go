// Package messaging provides pluggable message delivery backends for
// Review Bridge.
//
// A Service sends text and image messages to a recipient and surfaces
// inbound platform events as a channel of models.IncomingMessage. Backends
// exist for the WhatsApp Business Cloud API, Twilio, and a linked-device
// whatsmeow client.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/obenan/reviewbridge/internal/models"
)

// Channel defaults shared by all backends.
const (
	// DefaultChannelBufferSize is the buffer size of the responses channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds blocking emits into the responses
	// channel.
	DefaultChannelTimeout = 5 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each backend may have its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendImage sends an image message to a recipient; url references the
	// image.
	SendImage(ctx context.Context, to string, url string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of inbound platform events.
	Responses() <-chan models.IncomingMessage
}

// canonicalizePhone strips non-digits from a phone number and validates the
// result has at least 6 digits.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("Canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
