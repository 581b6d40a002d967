// internal/workers/application/submit-application/models.go
package submitapplication

import "encoding/json"

// Signature values of a new application.
const (
	SignatureUserConfirms   = "BRUKER_BEKREFTER"
	SignatureProxy          = "FULLMAKT"
	SignatureProxyExemption = "FRITAK_FRA_FULLMAKT"
)

type Input struct {
	EventID     string          `json:"eventId"`
	ID          string          `json:"soknadId"`
	Signature   string          `json:"signatur"`
	SubjectID   string          `json:"fnrBruker"`
	SubmitterID string          `json:"fnrInnsender"`
	Concerns    string          `json:"soknadGjelder"`
	Application json.RawMessage `json:"soknad"`
}

type Output struct {
	ApplicationID string `json:"soknadId"`
	Status        string `json:"status"`
	Created       bool   `json:"created"`
}

// awaitingConfirmation is the data of SøknadTilGodkjenning.
type awaitingConfirmation struct {
	Concerns    string `json:"soknadGjelder,omitempty"`
	SubmitterID string `json:"fnrInnsender"`
}

type receivedByProxy struct {
	Concerns    string `json:"soknadGjelder,omitempty"`
	SubmitterID string `json:"fnrInnsender"`
	Signature   string `json:"signatur"`
}
