// internal/workers/fulfillment/order-line/models.go
package orderline

import (
	"encoding/json"

	"soknad-workers/internal/models"
)

const EventNewOrderLine = "hm-NyOrdrelinje"

type Input struct {
	EventID   string          `json:"eventId"`
	SubjectID string          `json:"fnrBruker"`
	Data      OrderLineData   `json:"data"`
	Raw       json.RawMessage `json:"-"`
}

// OrderLineData is the fulfillment record. It names the case either by
// Infotrygd block and number ("C13") or by Hotsak case id.
type OrderLineData struct {
	models.OrderLineKey
	ItemCode           string  `json:"artikkelnr"`
	Quantity           float64 `json:"antall"`
	Category           string  `json:"hjelpemiddeltype"`
	DecisionDate       string  `json:"vedtaksdato"`
	BlockAndCaseNumber string  `json:"saksblokkOgSaksnr"`
	HotsakCaseID       string  `json:"hotsakSaknummer"`
}

type Output struct {
	Correlation   string `json:"correlation"`
	ApplicationID string `json:"soknadId,omitempty"`
	Inserted      bool   `json:"inserted"`
	Notified      bool   `json:"notified"`
}

// orderLineAdded is the data of hm-OrdrelinjeLagtTil.
type orderLineAdded struct {
	ItemCode string  `json:"artikkelnr"`
	Quantity float64 `json:"antall"`
	Category string  `json:"hjelpemiddeltype"`
}

type fulfillmentStarted struct {
	OrderNumber string `json:"ordrenr"`
}
