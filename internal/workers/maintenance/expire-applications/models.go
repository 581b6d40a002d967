// internal/workers/maintenance/expire-applications/models.go
package expireapplications

import "time"

// Report summarizes one sweep.
type Report struct {
	StartedAt  time.Time `json:"startedAt"`
	Considered int       `json:"considered"`
	Expired    int       `json:"expired"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}
