// internal/workers/case/decision-made/models.go
package decisionmade

const (
	EventInfotrygdDecision = "hm-VedtaksresultatFraInfotrygd"
	EventHotsakDecision    = "hm-VedtaksresultatFraHotsak"
)

type Input struct {
	EventName     string `json:"eventName"`
	ApplicationID string `json:"soknadId"`
	Code          string `json:"vedtaksresultat"`
	// DecisionDate is YYYY-MM-DD; empty while the date has not been synced.
	DecisionDate string `json:"vedtaksdato"`
}

type Output struct {
	ApplicationID string `json:"soknadId"`
	Status        string `json:"status"`
	Outcome       string `json:"outcome"`
	Announced     bool   `json:"announced"`
}

// decisionResult is the data of hm-SøknadVedtaksresultat.
type decisionResult struct {
	Outcome      string `json:"vedtaksresultat"`
	DecisionDate string `json:"vedtaksdato,omitempty"`
	CaseSystem   string `json:"fagsystem"`
}
