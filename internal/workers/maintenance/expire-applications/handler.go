// internal/workers/maintenance/expire-applications/handler.go
package expireapplications

import (
	"context"
	"fmt"
	"time"

	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"
	"soknad-workers/internal/statemachine"

	"github.com/google/uuid"
)

const (
	TaskType = "expire-applications"
)

type Store interface {
	ListPendingConfirmation(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
}

type Notifier interface {
	Publish(ctx context.Context, routingKey, eventName string, ids notifier.CorrelationIDs, payload interface{}) error
}

type Handler struct {
	config   *Config
	store    Store
	machine  *statemachine.Machine
	notifier Notifier
	logger   logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewHandler(config *Config, store Store, machine *statemachine.Machine, n Notifier, log logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		config:   config,
		store:    store,
		machine:  machine,
		notifier: n,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
		metrics:  m,
		now:      time.Now,
	}
}

// Execute expires every application still awaiting confirmation after the
// threshold. A failing application is logged and counted; the rest of the
// batch still runs. Only the listing query can fail the sweep.
func (h *Handler) Execute(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: h.now().UTC()}
	cutoff := report.StartedAt.Add(-h.config.Threshold)

	ids, err := h.store.ListPendingConfirmation(ctx, cutoff)
	if err != nil {
		return report, err
	}
	report.Considered = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		applied, err := h.expire(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			h.metrics.ExpiryProcessed.WithLabelValues("failed").Inc()
			h.logger.Error("failed to expire application", map[string]interface{}{
				"applicationId": id.String(),
				"error":         err,
			})
		case applied:
			report.Expired++
			h.metrics.ExpiryProcessed.WithLabelValues("expired").Inc()
		default:
			report.Skipped++
			h.metrics.ExpiryProcessed.WithLabelValues("skipped").Inc()
		}
	}

	h.logger.Info("expiry sweep finished", map[string]interface{}{
		"cutoff":     cutoff.Format(time.RFC3339),
		"considered": report.Considered,
		"expired":    report.Expired,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	})
	return report, nil
}

func (h *Handler) expire(ctx context.Context, id uuid.UUID) (applied bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.NewInternalError(fmt.Errorf("panic: %v", p))
		}
	}()

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	result, err := h.machine.Transition(ctx, id, models.StatusExpired)
	if err != nil {
		return false, err
	}
	if !result.Applied() {
		return false, nil
	}

	app := result.Application
	if err := h.notifier.Publish(ctx, app.SubjectID, models.EventApplicationExpired, notifier.For(app), nil); err != nil {
		return true, err
	}
	return true, nil
}
