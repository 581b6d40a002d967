// internal/workers/application/user-response/models.go
package userresponse

const (
	EventConfirmed = "godkjentAvBruker"
	EventDeleted   = "slettetAvBruker"
)

type Input struct {
	EventName     string `json:"eventName"`
	ApplicationID string `json:"soknadId"`
}

type Output struct {
	ApplicationID string `json:"soknadId"`
	Outcome       string `json:"outcome"`
}
