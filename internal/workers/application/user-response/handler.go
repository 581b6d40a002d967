// internal/workers/application/user-response/handler.go
package userresponse

import (
	"context"
	"fmt"

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
	TaskType = "user-response"
)

var schema = validation.MustValidator(validation.Schema{
	Accept:   []string{EventConfirmed, EventDeleted},
	Required: []string{"soknadId"},
})

// responses maps the user's answer to the target status and the event that
// announces it.
var responses = map[string]struct {
	to    models.Status
	event string
}{
	EventConfirmed: {models.StatusConfirmed, models.EventApplicationConfirmed},
	EventDeleted:   {models.StatusDeletedByUser, models.EventApplicationDeleted},
}

type Notifier interface {
	Publish(ctx context.Context, routingKey, eventName string, ids notifier.CorrelationIDs, payload interface{}) error
}

type Handler struct {
	machine  *statemachine.Machine
	notifier Notifier
	logger   logger.Logger
}

func NewHandler(config *Config, machine *statemachine.Machine, n Notifier, log logger.Logger) *Handler {
	return &Handler{
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

	_, err := h.Execute(ctx, &Input{EventName: event.Name(), ApplicationID: event.String("soknadId")})
	return err
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	response, ok := responses[input.EventName]
	if !ok {
		return nil, errors.NewInvalidPayloadError(fmt.Sprintf("unknown response %q", input.EventName))
	}
	id, err := uuid.Parse(input.ApplicationID)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(fmt.Sprintf("invalid soknadId %q", input.ApplicationID))
	}

	result, err := h.machine.Transition(ctx, id, response.to)
	if err != nil {
		return nil, err
	}
	output := &Output{ApplicationID: id.String(), Outcome: string(result.Outcome)}
	if !result.Applied() {
		return output, nil
	}

	app := result.Application
	if err := h.notifier.Publish(ctx, app.SubjectID, response.event, notifier.For(app), nil); err != nil {
		return nil, err
	}
	return output, nil
}
