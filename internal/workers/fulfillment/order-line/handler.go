// internal/workers/fulfillment/order-line/handler.go
package orderline

import (
	"context"
	"fmt"
	"time"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/validation"
	"soknad-workers/internal/correlation"
	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"
	"soknad-workers/internal/statemachine"

	"github.com/google/uuid"
)

const (
	TaskType = "order-line"
)

var schema = validation.MustValidator(validation.Schema{
	Accept: []string{EventNewOrderLine},
	Required: []string{
		"fnrBruker",
		"data.serviceforespørsel",
		"data.ordrenr",
		"data.ordrelinje",
		"data.delordrelinje",
		"data.vedtaksdato",
	},
})

type Store interface {
	InsertOrderLine(ctx context.Context, line models.OrderLine, applicationID uuid.UUID, notified bool) (int64, error)
	RecentOrderLineNotified(ctx context.Context, applicationID uuid.UUID, within time.Duration) (bool, error)
}

type Correlator interface {
	Correlate(ctx context.Context, req correlation.Request) (correlation.Result, error)
}

type Notifier interface {
	Publish(ctx context.Context, routingKey, eventName string, ids notifier.CorrelationIDs, payload interface{}) error
}

type Handler struct {
	config     *Config
	store      Store
	correlator Correlator
	machine    *statemachine.Machine
	notifier   Notifier
	logger     logger.Logger
}

func NewHandler(config *Config, store Store, correlator Correlator, machine *statemachine.Machine, n Notifier, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		store:      store,
		correlator: correlator,
		machine:    machine,
		notifier:   n,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, msg bus.Message) error {
	event, rejected := schema.Validate(msg.Value)
	if rejected != nil {
		h.logger.Debug("message not for handler", rejected.Fields())
		return nil
	}

	var input Input
	if err := event.Decode(&input); err != nil {
		return errors.NewInvalidPayloadError(fmt.Sprintf("decode %s: %v", event.Name(), err))
	}
	input.Raw = event.Raw("data")
	if input.EventID == "" {
		input.EventID = msg.ID
	}

	_, err := h.Execute(ctx, &input)
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	date, err := models.ParseDate(input.Data.DecisionDate)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(fmt.Sprintf("invalid vedtaksdato %q", input.Data.DecisionDate))
	}
	ref, err := caseReference(input.Data)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(err.Error())
	}

	match, err := h.correlator.Correlate(ctx, correlation.Request{
		MessageID:    input.EventID,
		Identity:     input.SubjectID,
		CaseRef:      ref,
		DecisionDate: date,
	})
	if err != nil {
		return nil, err
	}
	output := &Output{Correlation: string(match.Outcome)}
	if !match.Matched() {
		return output, nil
	}
	output.ApplicationID = match.ApplicationID.String()

	line := models.OrderLine{
		Key:         input.Data.OrderLineKey,
		RecipientID: input.SubjectID,
		ItemCode:    input.Data.ItemCode,
		Quantity:    input.Data.Quantity,
		Category:    input.Data.Category,
		Payload:     input.Raw,
	}
	subcomponent := line.IsSubcomponent(h.config.SubcomponentCategories)

	debounced := false
	if !subcomponent {
		debounced, err = h.store.RecentOrderLineNotified(ctx, match.ApplicationID, h.config.DebounceWindow)
		if err != nil {
			return nil, err
		}
	}
	notify := !subcomponent && !debounced

	fields := map[string]interface{}{
		"applicationId": match.ApplicationID.String(),
		"orderLine":     line.Key.String(),
		"subcomponent":  subcomponent,
		"debounced":     debounced,
		"preDecision":   match.PreDecision,
	}

	rows, err := h.store.InsertOrderLine(ctx, line, match.ApplicationID, notify)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		h.logger.Info("order line already recorded, skipping", fields)
		return output, nil
	}
	output.Inserted = true

	if subcomponent {
		h.logger.Info("sub-component order line recorded", fields)
		return output, nil
	}

	app, err := h.advance(ctx, match, line)
	if err != nil {
		return nil, err
	}

	if notify && app != nil && !app.Status.Terminal() {
		payload := orderLineAdded{ItemCode: line.ItemCode, Quantity: line.Quantity, Category: line.Category}
		if err := h.notifier.Publish(ctx, app.SubjectID, models.EventOrderLineAdded, notifier.For(app), payload); err != nil {
			return nil, err
		}
		output.Notified = true
	}

	h.logger.Info("order line recorded", fields)
	return output, nil
}

// advance moves the application to fulfillment. A pre-decision match passes
// through the decision state without a notification: the registry confirmed
// that a decision exists, not its outcome, which decision-made announces when
// the case system reports it.
func (h *Handler) advance(ctx context.Context, match correlation.Result, line models.OrderLine) (*models.Application, error) {
	if match.PreDecision {
		if _, err := h.machine.Transition(ctx, match.ApplicationID, models.StatusDecisionApproved); err != nil {
			return nil, err
		}
	}

	res, err := h.machine.Transition(ctx, match.ApplicationID, models.StatusFulfillmentStarted)
	if err != nil {
		return nil, err
	}
	if res.Applied() {
		payload := fulfillmentStarted{OrderNumber: line.Key.OrderNumber}
		if err := h.notifier.Publish(ctx, res.Application.SubjectID, models.EventFulfillmentStarted, notifier.For(res.Application), payload); err != nil {
			return nil, err
		}
	}
	return res.Application, nil
}

func caseReference(data OrderLineData) (models.CaseReference, error) {
	if data.HotsakCaseID != "" {
		return models.NewHotsakReference(data.HotsakCaseID)
	}
	if data.BlockAndCaseNumber != "" {
		return models.ParseInfotrygdBlockAndNumber(data.BlockAndCaseNumber)
	}
	return models.CaseReference{}, fmt.Errorf("order line names no case")
}
