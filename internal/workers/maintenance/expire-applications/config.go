// internal/workers/maintenance/expire-applications/config.go
package expireapplications

import (
	"fmt"
	"time"

	"soknad-workers/internal/common/config"
)

type Config struct {
	// Timeout bounds one application's transition and notification.
	Timeout   time.Duration
	Threshold time.Duration
	RunAt     string // HH:MM
	Location  *time.Location
}

func LoadConfig(cfg config.ExpiryConfig) (*Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("expiry timezone %q: %w", cfg.Timezone, err)
	}
	if _, _, err := parseClock(cfg.RunAt); err != nil {
		return nil, err
	}
	return &Config{
		Timeout:   30 * time.Second,
		Threshold: cfg.Threshold(),
		RunAt:     cfg.RunAt,
		Location:  loc,
	}, nil
}
