// internal/models/order_line.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OrderLineKey is the natural key of a fulfillment record. It is unique no
// matter which application the line is attached to.
type OrderLineKey struct {
	ServiceRequestID string `json:"serviceforespørsel"`
	OrderNumber      string `json:"ordrenr"`
	LineNumber       int    `json:"ordrelinje"`
	SubLineNumber    int    `json:"delordrelinje"`
}

func (k OrderLineKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d", k.ServiceRequestID, k.OrderNumber, k.LineNumber, k.SubLineNumber)
}

// OrderLine is one ordered or shipped item against a decision.
type OrderLine struct {
	Key         OrderLineKey
	RecipientID string
	ItemCode    string
	Quantity    float64
	Category    string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// IsSubcomponent reports whether the line's category is one of the given
// sub-component categories (case-insensitive).
func (l OrderLine) IsSubcomponent(categories []string) bool {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(l.Category), c) {
			return true
		}
	}
	return false
}
