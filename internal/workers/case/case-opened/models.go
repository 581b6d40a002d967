// internal/workers/case/case-opened/models.go
package caseopened

const (
	EventInfotrygdCaseOpened = "hm-InfotrygdSakOpprettet"
	EventHotsakCaseOpened    = "hm-HotsakSakOpprettet"
)

// Input covers both case systems. Infotrygd schema version 2 sends block and
// case number combined.
type Input struct {
	ApplicationID      string `json:"soknadId"`
	Office             string `json:"trygdekontorNr"`
	Block              string `json:"saksblokk"`
	CaseNumber         string `json:"saksnr"`
	BlockAndCaseNumber string `json:"saksblokkOgSaksnr"`
	CaseID             string `json:"sakId"`
}

type Output struct {
	ApplicationID string `json:"soknadId"`
	CaseReference string `json:"saksreferanse"`
	LinkCreated   bool   `json:"linkCreated"`
	Outcome       string `json:"outcome"`
}

// underProcessing is the data of hm-SøknadUnderBehandling.
type underProcessing struct {
	CaseSystem    string `json:"fagsystem"`
	CaseReference string `json:"saksreferanse"`
}
