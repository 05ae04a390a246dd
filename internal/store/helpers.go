package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/obenan/reviewbridge/internal/models"
)

// marshalJSON encodes a value for a nullable JSON text column. Empty slices
// are stored as NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case []models.MessageRecord:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal column value: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(col sql.NullString) ([]string, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(col.String), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string list column: %w", err)
	}
	return out, nil
}

func unmarshalMessages(col sql.NullString) ([]models.MessageRecord, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var out []models.MessageRecord
	if err := json.Unmarshal([]byte(col.String), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message log column: %w", err)
	}
	return out, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession scans one sessions row into a models.Session.
func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var locations, sources, messages sql.NullString
	var lastProcessing sql.NullTime
	err := row.Scan(
		&s.UserID, &s.State, &s.IsActive, &locations, &sources,
		&lastProcessing, &s.LastInteractionTime, &messages, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.SelectedLocations, err = unmarshalStrings(locations); err != nil {
		return nil, err
	}
	if s.SelectedSources, err = unmarshalStrings(sources); err != nil {
		return nil, err
	}
	if s.Messages, err = unmarshalMessages(messages); err != nil {
		return nil, err
	}
	if lastProcessing.Valid {
		t := lastProcessing.Time
		s.LastProcessingTime = &t
	}
	return &s, nil
}

// sessionColumns marshals the variable-width session fields for insertion.
func sessionColumns(s models.Session) (locations, sources, messages interface{}, lastProcessing interface{}, err error) {
	if locations, err = marshalJSON(s.SelectedLocations); err != nil {
		return
	}
	if sources, err = marshalJSON(s.SelectedSources); err != nil {
		return
	}
	if messages, err = marshalJSON(s.Messages); err != nil {
		return
	}
	if s.LastProcessingTime != nil {
		lastProcessing = *s.LastProcessingTime
	}
	return
}
