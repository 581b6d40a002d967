// internal/models/application.go
package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrApplicationNotFound is returned by stores when no application has the requested id.
var ErrApplicationNotFound = errors.New("application not found")

// Application is a benefit claim for an assistive device.
type Application struct {
	ID            uuid.UUID       `json:"soknadId"`
	SubmitterID   string          `json:"fnrInnsender"`
	SubjectID     string          `json:"fnrBruker"`
	Status        Status          `json:"status"`
	Concerns      string          `json:"soknadGjelder,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"soknad,omitempty"`
	CreatedAt     time.Time       `json:"created"`
	UpdatedAt     time.Time       `json:"updated"`
}

// Candidate is an application linked to a case reference, as seen by the
// correlation engine. DecisionDate is nil while the decision is pending locally.
type Candidate struct {
	ApplicationID uuid.UUID
	Status        Status
	DecisionDate  *time.Time
}

// HasDecisionOn reports whether the candidate's decision date is the given calendar day.
func (c Candidate) HasDecisionOn(date time.Time) bool {
	return c.DecisionDate != nil && SameDay(*c.DecisionDate, date)
}

// DecisionPending reports whether no decision date is recorded yet.
func (c Candidate) DecisionPending() bool {
	return c.DecisionDate == nil
}

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// SameDay compares calendar days, ignoring time of day and location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
