// Package statemachine is the single place application status is changed.
package statemachine

import (
	"context"
	stderrors "errors"

	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/models"

	"github.com/google/uuid"
)

// Outcome of a requested transition.
type Outcome string

const (
	// OutcomeApplied: the status changed; the caller publishes exactly one notification.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: a concurrent or earlier delivery already moved the status.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected: the target is not reachable from the current status.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTerminal: the application is deleted or expired; the event is dropped.
	OutcomeTerminal Outcome = "terminal"
)

// Store is the part of the application store the machine needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Application, error)
	SetStatus(ctx context.Context, id uuid.UUID, fromGuard *models.Status, to models.Status) (int64, error)
}

type Result struct {
	Outcome Outcome
	From    models.Status
	To      models.Status
	// Application is the record as read before the update, with Status set to
	// To when the transition was applied.
	Application *models.Application
}

// Applied reports whether the caller should publish a notification.
func (r Result) Applied() bool {
	return r.Outcome == OutcomeApplied
}

type Machine struct {
	store   Store
	logger  logger.Logger
	metrics *metrics.Metrics
}

func New(store Store, log logger.Logger, m *metrics.Metrics) *Machine {
	return &Machine{
		store:   store,
		logger:  log.WithFields(map[string]interface{}{"component": "statemachine"}),
		metrics: m,
	}
}

// Transition moves application id to status `to` if the transition table
// allows it. Only store failures and unknown applications are errors.
func (m *Machine) Transition(ctx context.Context, id uuid.UUID, to models.Status) (Result, error) {
	app, err := m.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, models.ErrApplicationNotFound) {
			return Result{To: to}, errors.NewApplicationNotFoundError(id.String())
		}
		return Result{To: to}, err
	}

	res := Result{From: app.Status, To: to, Application: app}
	fields := map[string]interface{}{
		"applicationId": id.String(),
		"from":          string(app.Status),
		"to":            string(to),
	}

	switch {
	case app.Status.Terminal():
		res.Outcome = OutcomeTerminal
		m.logger.Warn("event for application in terminal state dropped", fields)
	case app.Status == to:
		res.Outcome = OutcomeDuplicate
		m.logger.Info("application already in target status", fields)
	case !app.Status.CanTransitionTo(to):
		res.Outcome = OutcomeRejected
		m.logger.Warn("illegal status transition ignored", fields)
	default:
		current := app.Status
		rows, err := m.store.SetStatus(ctx, id, &current, to)
		if err != nil {
			return res, err
		}
		if rows == 0 {
			res.Outcome = OutcomeDuplicate
			m.logger.Info("status transition already applied", fields)
		} else {
			res.Outcome = OutcomeApplied
			app.Status = to
			m.logger.Info("status transition applied", fields)
		}
	}

	m.metrics.StatusTransitions.WithLabelValues(string(to), string(res.Outcome)).Inc()
	return res, nil
}
