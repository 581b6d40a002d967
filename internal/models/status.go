// internal/models/status.go
package models

// Status is the persisted lifecycle state of an application.
type Status string

const (
	StatusPendingUserConfirmation   Status = "VENTER_GODKJENNING"
	StatusConfirmed                 Status = "GODKJENT"
	StatusDeletedByUser             Status = "SLETTET"
	StatusExpired                   Status = "UTLØPT"
	StatusUnderCaseProcessing       Status = "UNDER_BEHANDLING"
	StatusDecisionApproved          Status = "VEDTAKSRESULTAT_INNVILGET"
	StatusDecisionPartiallyApproved Status = "VEDTAKSRESULTAT_DELVIS_INNVILGET"
	StatusDecisionRejected          Status = "VEDTAKSRESULTAT_AVSLÅTT"
	StatusDecisionOther             Status = "VEDTAKSRESULTAT_ANNET"
	StatusFulfillmentStarted        Status = "UTSENDING_STARTET"
)

var decisionStatuses = []Status{
	StatusDecisionApproved,
	StatusDecisionPartiallyApproved,
	StatusDecisionRejected,
	StatusDecisionOther,
}

// transitions is the complete table of legal status changes. States without
// an entry are terminal.
var transitions = map[Status][]Status{
	StatusPendingUserConfirmation:   {StatusConfirmed, StatusDeletedByUser, StatusExpired},
	StatusConfirmed:                 {StatusUnderCaseProcessing},
	StatusUnderCaseProcessing:       decisionStatuses,
	StatusDecisionApproved:          {StatusFulfillmentStarted},
	StatusDecisionPartiallyApproved: {StatusFulfillmentStarted},
	StatusDecisionRejected:          {StatusFulfillmentStarted},
	StatusDecisionOther:             {StatusFulfillmentStarted},
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPendingUserConfirmation,
		StatusConfirmed,
		StatusDeletedByUser,
		StatusExpired,
		StatusUnderCaseProcessing,
		StatusDecisionApproved,
		StatusDecisionPartiallyApproved,
		StatusDecisionRejected,
		StatusDecisionOther,
		StatusFulfillmentStarted,
	}
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether to is directly reachable from s.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outbound transitions. DELETED_BY_USER and
// EXPIRED are the terminal states; FULFILLMENT_STARTED is the end of the
// tracked lifecycle but is not treated as terminal for warnings.
func (s Status) Terminal() bool {
	return s == StatusDeletedByUser || s == StatusExpired
}

// IsDecision reports whether s is one of the DECISION_* states.
func (s Status) IsDecision() bool {
	for _, d := range decisionStatuses {
		if s == d {
			return true
		}
	}
	return false
}
