// Package models defines the core data structures for Review Bridge.
//
// It includes the per-user conversation session, inbound events from the
// messaging platform, and outbound messages handed to the delivery backend.
package models

import (
	"errors"
	"time"
)

// SessionState identifies where a user currently is in the review
// conversation.
type SessionState string

const (
	// StateAwaitingCommand is the initial state; the session waits for a
	// top-level command such as "org lpq".
	StateAwaitingCommand SessionState = "awaiting_command"
	// StateSelectingLocations means the user was shown the location menu.
	StateSelectingLocations SessionState = "selecting_locations"
	// StateSelectingSources means the user was shown the review source menu.
	StateSelectingSources SessionState = "selecting_sources"
	// StateAwaitingReviewQuestion means selections are complete and the user
	// may ask free-text questions about the reviews.
	StateAwaitingReviewQuestion SessionState = "awaiting_review_question"
	// StateProcessingReview is the transient state while an analytics call
	// is in flight.
	StateProcessingReview SessionState = "processing_review"
)

// IsValidSessionState checks if the given state is one of the defined
// conversation states.
func IsValidSessionState(s SessionState) bool {
	switch s {
	case StateAwaitingCommand, StateSelectingLocations, StateSelectingSources,
		StateAwaitingReviewQuestion, StateProcessingReview:
		return true
	default:
		return false
	}
}

// MessageDirection records whether a logged message was received or sent.
type MessageDirection string

const (
	// DirectionIncoming marks a message received from the user.
	DirectionIncoming MessageDirection = "incoming"
	// DirectionOutgoing marks a message sent to the user.
	DirectionOutgoing MessageDirection = "outgoing"
)

// MessageRecord is one entry in a session's audit log. The log is
// append-only and never read by transition logic.
type MessageRecord struct {
	Content   string           `json:"content"`
	Direction MessageDirection `json:"direction"`
	Timestamp time.Time        `json:"timestamp"`
}

// Session is the per-user conversation state record. It is owned by the
// session store and mutated only by the conversation engine between load
// and save.
type Session struct {
	UserID              string          `json:"user_id"`
	State               SessionState    `json:"state"`
	IsActive            bool            `json:"is_active"`
	SelectedLocations   []string        `json:"selected_locations,omitempty"`
	SelectedSources     []string        `json:"selected_sources,omitempty"`
	LastProcessingTime  *time.Time      `json:"last_processing_time,omitempty"`
	LastInteractionTime time.Time       `json:"last_interaction_time"`
	Messages            []MessageRecord `json:"messages,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewSession creates a fresh session for a user identifier with default
// state.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:              userID,
		State:               StateAwaitingCommand,
		LastInteractionTime: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ClearSelections drops both selection lists.
func (s *Session) ClearSelections() {
	s.SelectedLocations = nil
	s.SelectedSources = nil
}

// End deactivates the session and returns it to the command state. The
// record stays in storage for future reactivation.
func (s *Session) End() {
	s.IsActive = false
	s.State = StateAwaitingCommand
}

// CanProcess reports whether enough time has passed since the last
// analytics call to accept another review question. This is a debounce
// against duplicate webhook deliveries, not a user-visible rate limit.
func (s *Session) CanProcess(now time.Time, cooldown time.Duration) bool {
	if s.LastProcessingTime == nil {
		return true
	}
	return now.Sub(*s.LastProcessingTime) > cooldown
}

// MarkProcessing stamps the start of an analytics call. The timestamp never
// moves backwards.
func (s *Session) MarkProcessing(now time.Time) {
	if s.LastProcessingTime != nil && now.Before(*s.LastProcessingTime) {
		return
	}
	t := now
	s.LastProcessingTime = &t
}

// RecordMessage appends an entry to the session's audit log.
func (s *Session) RecordMessage(content string, direction MessageDirection, at time.Time) {
	s.Messages = append(s.Messages, MessageRecord{Content: content, Direction: direction, Timestamp: at})
}

// MessageKind distinguishes outbound message payloads.
type MessageKind string

const (
	// MessageKindText is a plain text message.
	MessageKindText MessageKind = "text"
	// MessageKindImage is an image message; the content is the image URL.
	MessageKindImage MessageKind = "image"
)

// OutboundMessage is one delivery call to the messaging backend.
type OutboundMessage struct {
	To      string      `json:"to"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"kind"`
}

// EventKind distinguishes inbound messaging-platform events.
type EventKind string

const (
	// EventKindText is a free-text message.
	EventKindText EventKind = "text"
	// EventKindSelection is a structured selection; the body carries the
	// selected option identifier.
	EventKindSelection EventKind = "selection"
)

// IncomingMessage represents one inbound event from the messaging platform.
type IncomingMessage struct {
	From string    `json:"from"`
	Kind EventKind `json:"kind"`
	Body string    `json:"body"`
	Time int64     `json:"time"`
}

// Error variables shared across modules.
var (
	ErrEmptyUserID     = errors.New("user identifier cannot be empty")
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrSessionNotFound = errors.New("session not found")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for HTTP responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
