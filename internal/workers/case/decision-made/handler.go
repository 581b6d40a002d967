// internal/workers/case/decision-made/handler.go
package decisionmade

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/validation"
	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"
	"soknad-workers/internal/statemachine"

	"github.com/google/uuid"
)

const (
	TaskType = "decision-made"
)

var schema = validation.MustValidator(validation.Schema{
	Accept:   []string{EventInfotrygdDecision, EventHotsakDecision},
	Required: []string{"soknadId", "vedtaksresultat"},
})

var systems = map[string]models.CaseSystem{
	EventInfotrygdDecision: models.CaseSystemInfotrygd,
	EventHotsakDecision:    models.CaseSystemHotsak,
}

type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Application, error)
	SaveDecision(ctx context.Context, d models.DecisionResult) (models.DecisionWrite, error)
}

type Notifier interface {
	Publish(ctx context.Context, routingKey, eventName string, ids notifier.CorrelationIDs, payload interface{}) error
}

type Handler struct {
	store    Store
	machine  *statemachine.Machine
	notifier Notifier
	logger   logger.Logger
}

func NewHandler(config *Config, store Store, machine *statemachine.Machine, n Notifier, log logger.Logger) *Handler {
	return &Handler{
		store:    store,
		machine:  machine,
		notifier: n,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, msg bus.Message) error {
	event, rejected := schema.Validate(msg.Value)
	if rejected != nil {
		h.logger.Debug("message not for handler", rejected.Fields())
		return nil
	}

	_, err := h.Execute(ctx, &Input{
		EventName:     event.Name(),
		ApplicationID: event.String("soknadId"),
		Code:          event.String("vedtaksresultat"),
		DecisionDate:  event.String("vedtaksdato"),
	})
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// execute records the decision before transitioning, so the correlation
// engine can match order lines against the date as soon as it is known.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	id, err := uuid.Parse(input.ApplicationID)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(fmt.Sprintf("invalid soknadId %q", input.ApplicationID))
	}

	var date *time.Time
	if input.DecisionDate != "" {
		d, err := models.ParseDate(input.DecisionDate)
		if err != nil {
			return nil, errors.NewInvalidPayloadError(fmt.Sprintf("invalid vedtaksdato %q", input.DecisionDate))
		}
		date = &d
	}

	outcome := models.DecisionOutcomeFromCode(input.Code)
	current, err := h.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, models.ErrApplicationNotFound) {
			return nil, errors.NewApplicationNotFoundError(id.String())
		}
		return nil, err
	}
	if current.Status.Terminal() {
		h.logger.Warn("decision for application in terminal state dropped", map[string]interface{}{
			"applicationId": id.String(),
			"status":        string(current.Status),
		})
		return &Output{ApplicationID: id.String(), Status: string(current.Status), Outcome: string(statemachine.OutcomeTerminal)}, nil
	}

	decision := models.DecisionResult{
		ApplicationID: id,
		System:        systems[input.EventName],
		Code:          input.Code,
		Outcome:       outcome,
		DecisionDate:  date,
	}
	write, err := h.store.SaveDecision(ctx, decision)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"applicationId": id.String(),
		"outcome":       string(outcome),
		"datePending":   date == nil,
		"write":         string(write),
	}
	if write == models.DecisionUnchanged {
		h.logger.Info("decision already recorded", fields)
	}

	result, err := h.machine.Transition(ctx, id, outcome.Status())
	if err != nil {
		return nil, err
	}

	output := &Output{ApplicationID: id.String(), Status: string(outcome.Status()), Outcome: string(result.Outcome)}
	if !result.Applied() && !advancedEarly(write, result) {
		return output, nil
	}

	app := result.Application
	payload := decisionResult{
		Outcome:    string(outcome),
		CaseSystem: string(decision.System),
	}
	if date != nil {
		payload.DecisionDate = date.Format(models.DateLayout)
	}
	if err := h.notifier.Publish(ctx, app.SubjectID, models.EventDecisionResult, notifier.For(app), payload); err != nil {
		return nil, err
	}

	output.Announced = true
	h.logger.Info("decision applied", fields)
	return output, nil
}

// advancedEarly reports a first decision for an application that an early
// delivered order line already moved past case processing. Its outcome has not
// been announced yet.
func advancedEarly(write models.DecisionWrite, result statemachine.Result) bool {
	if write != models.DecisionInserted || result.Outcome != statemachine.OutcomeRejected {
		return false
	}
	return result.From.IsDecision() || result.From == models.StatusFulfillmentStarted
}
