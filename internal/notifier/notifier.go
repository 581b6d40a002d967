// Package notifier publishes the outbound events that follow accepted
// transitions.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/models"

	"github.com/google/uuid"
)

// CorrelationIDs identify the application an event is about.
type CorrelationIDs struct {
	ApplicationID uuid.UUID
	SubjectID     string
	CorrelationID string
}

// For returns the ids of app.
func For(app *models.Application) CorrelationIDs {
	return CorrelationIDs{
		ApplicationID: app.ID,
		SubjectID:     app.SubjectID,
		CorrelationID: app.CorrelationID,
	}
}

type Notifier struct {
	publisher bus.Publisher
	logger    logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() uuid.UUID
}

func New(publisher bus.Publisher, log logger.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
		metrics:   m,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// Publish sends one event keyed by routingKey. Consumers deduplicate on
// (eventName, soknadId); callers only publish after an applied write.
func (n *Notifier) Publish(ctx context.Context, routingKey, eventName string, ids CorrelationIDs, payload interface{}) error {
	event := models.OutboundEvent{
		EventName:     eventName,
		EventID:       n.newID(),
		CreatedAt:     n.now().UTC(),
		ApplicationID: ids.ApplicationID,
		SubjectID:     ids.SubjectID,
		CorrelationID: ids.CorrelationID,
		Data:          payload,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.NewPublishFailedError(eventName, err)
	}
	if err := n.publisher.Publish(ctx, routingKey, body); err != nil {
		return errors.NewPublishFailedError(eventName, err)
	}

	n.metrics.NotificationsPublished.WithLabelValues(eventName).Inc()
	n.logger.Info("event published", map[string]interface{}{
		"eventName":     eventName,
		"eventId":       event.EventID.String(),
		"applicationId": ids.ApplicationID.String(),
	})
	return nil
}
