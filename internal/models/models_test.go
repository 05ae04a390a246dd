package models

import (
	"testing"
	"time"
)

func TestIsValidSessionState(t *testing.T) {
	valid := []SessionState{
		StateAwaitingCommand, StateSelectingLocations, StateSelectingSources,
		StateAwaitingReviewQuestion, StateProcessingReview,
	}
	for _, s := range valid {
		if !IsValidSessionState(s) {
			t.Errorf("IsValidSessionState(%q) = false, want true", s)
		}
	}
	for _, s := range []SessionState{"", "unknown", "AWAITING_COMMAND"} {
		if IsValidSessionState(s) {
			t.Errorf("IsValidSessionState(%q) = true, want false", s)
		}
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("user1")
	if s.UserID != "user1" {
		t.Errorf("UserID = %q", s.UserID)
	}
	if s.State != StateAwaitingCommand {
		t.Errorf("State = %q, want %q", s.State, StateAwaitingCommand)
	}
	if s.IsActive {
		t.Error("new session should not be active")
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestCanProcess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Second

	s := NewSession("user1")
	if !s.CanProcess(now, cooldown) {
		t.Error("fresh session should be able to process")
	}

	s.MarkProcessing(now)
	if s.CanProcess(now.Add(2*time.Second), cooldown) {
		t.Error("should not process inside the cooldown window")
	}
	if s.CanProcess(now.Add(5*time.Second), cooldown) {
		t.Error("the window boundary is still inside the cooldown")
	}
	if !s.CanProcess(now.Add(6*time.Second), cooldown) {
		t.Error("should process after the cooldown window")
	}
}

func TestMarkProcessingIsMonotonic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("user1")
	s.MarkProcessing(now)
	s.MarkProcessing(now.Add(-time.Minute))
	if !s.LastProcessingTime.Equal(now) {
		t.Errorf("LastProcessingTime moved backwards: %v", s.LastProcessingTime)
	}
	s.MarkProcessing(now.Add(time.Minute))
	if !s.LastProcessingTime.Equal(now.Add(time.Minute)) {
		t.Errorf("LastProcessingTime did not advance: %v", s.LastProcessingTime)
	}
}

func TestEndAndClearSelections(t *testing.T) {
	s := NewSession("user1")
	s.IsActive = true
	s.State = StateAwaitingReviewQuestion
	s.SelectedLocations = []string{"a"}
	s.SelectedSources = []string{"b"}

	s.ClearSelections()
	if s.SelectedLocations != nil || s.SelectedSources != nil {
		t.Errorf("selections survived clear: %v / %v", s.SelectedLocations, s.SelectedSources)
	}

	s.End()
	if s.IsActive || s.State != StateAwaitingCommand {
		t.Errorf("End left session active=%v state=%q", s.IsActive, s.State)
	}
}

func TestRecordMessage(t *testing.T) {
	s := NewSession("user1")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.RecordMessage("hi", DirectionIncoming, at)
	s.RecordMessage("hello back", DirectionOutgoing, at.Add(time.Second))
	if len(s.Messages) != 2 {
		t.Fatalf("recorded %d messages, want 2", len(s.Messages))
	}
	if s.Messages[0].Direction != DirectionIncoming || s.Messages[1].Direction != DirectionOutgoing {
		t.Errorf("directions = %q, %q", s.Messages[0].Direction, s.Messages[1].Direction)
	}
}
