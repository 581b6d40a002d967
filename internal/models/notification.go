// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Outbound event names.
const (
	EventApplicationAwaitingConfirmation = "SøknadTilGodkjenning"
	EventApplicationReceivedByProxy      = "hm-SøknadMedFullmaktMottatt"
	EventApplicationConfirmed            = "hm-SøknadGodkjentAvBruker"
	EventApplicationDeleted              = "hm-SøknadSlettetAvBruker"
	EventApplicationExpired              = "hm-SøknadUtløpt"
	EventApplicationUnderProcessing      = "hm-SøknadUnderBehandling"
	EventDecisionResult                  = "hm-SøknadVedtaksresultat"
	EventFulfillmentStarted              = "hm-SøknadUtsendingStartet"
	EventOrderLineAdded                  = "hm-OrdrelinjeLagtTil"
)

// OutboundEvent is the envelope of every published message.
type OutboundEvent struct {
	EventName     string      `json:"eventName"`
	EventID       uuid.UUID   `json:"eventId"`
	CreatedAt     time.Time   `json:"opprettet"`
	ApplicationID uuid.UUID   `json:"soknadId"`
	SubjectID     string      `json:"fnrBruker"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}
