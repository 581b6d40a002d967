// internal/workers/maintenance/expire-applications/scheduler.go
package expireapplications

import (
	"context"
	"fmt"
	"time"
)

func parseClock(hhmm string) (int, int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, 0, fmt.Errorf("expiry run_at %q: want HH:MM", hhmm)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first occurrence of hh:mm in loc strictly after now.
func NextRun(now time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	hour, minute, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next, nil
}

// Schedule runs the sweep once a day at the configured wall-clock time until
// ctx is cancelled.
func (h *Handler) Schedule(ctx context.Context) error {
	for {
		next, err := NextRun(h.now(), h.config.RunAt, h.config.Location)
		if err != nil {
			return err
		}
		h.logger.Info("next expiry sweep scheduled", map[string]interface{}{
			"at": next.Format(time.RFC3339),
		})

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := h.Execute(ctx); err != nil && ctx.Err() == nil {
			h.logger.Error("expiry sweep failed", map[string]interface{}{"error": err})
		}
	}
}
