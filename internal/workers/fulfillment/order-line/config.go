// internal/workers/fulfillment/order-line/config.go
package orderline

import "time"

type Config struct {
	Timeout time.Duration
	// DebounceWindow suppresses a second user notification for the same
	// application within the window.
	DebounceWindow time.Duration
	// SubcomponentCategories never notify and never move the application.
	SubcomponentCategories []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:                15 * time.Second,
		DebounceWindow:         24 * time.Hour,
		SubcomponentCategories: []string{"Del"},
	}
}
