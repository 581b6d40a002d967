// internal/workers/application/submit-application/handler.go
package submitapplication

import (
	"context"
	"fmt"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/validation"
	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"

	"github.com/google/uuid"
)

const (
	TaskType = "submit-application"
)

// submissionNamespace derives stable ids for submissions that carry none, so
// a redelivered submission maps to the same application.
var submissionNamespace = uuid.MustParse("3c1f0b5e-2f6a-4d8e-9c57-8f1d2b6a4e90")

var schema = validation.MustValidator(validation.Schema{
	Accept:   []string{"nySoknad"},
	Required: []string{"signatur", "fnrBruker", "soknad"},
})

type Store interface {
	Insert(ctx context.Context, app *models.Application) (int64, error)
}

type Notifier interface {
	Publish(ctx context.Context, routingKey, eventName string, ids notifier.CorrelationIDs, payload interface{}) error
}

type Handler struct {
	store    Store
	notifier Notifier
	logger   logger.Logger
}

func NewHandler(config *Config, store Store, n Notifier, log logger.Logger) *Handler {
	return &Handler{
		store:    store,
		notifier: n,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Handle implements bus.Handler.
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
	if input.ID == "" {
		input.ID = event.String("soknad.soknad.id")
	}
	if input.EventID == "" {
		input.EventID = msg.ID
	}

	_, err := h.Execute(ctx, &input)
	return err
}

// Execute stores the application and announces it. A replayed submission
// stores nothing and publishes nothing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	status, err := initialStatus(input.Signature)
	if err != nil {
		return nil, err
	}

	id, err := applicationID(input)
	if err != nil {
		return nil, err
	}

	submitter := input.SubmitterID
	if submitter == "" {
		submitter = input.SubjectID
	}
	correlationID := input.EventID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	app := &models.Application{
		ID:            id,
		SubmitterID:   submitter,
		SubjectID:     input.SubjectID,
		Status:        status,
		Concerns:      input.Concerns,
		CorrelationID: correlationID,
		Payload:       input.Application,
	}

	rows, err := h.store.Insert(ctx, app)
	if err != nil {
		return nil, err
	}

	output := &Output{ApplicationID: id.String(), Status: string(status), Created: rows == 1}
	if rows == 0 {
		h.logger.Info("application already stored, skipping", map[string]interface{}{
			"applicationId": id.String(),
		})
		return output, nil
	}

	eventName, payload := announcement(app, input.Signature)
	if err := h.notifier.Publish(ctx, app.SubjectID, eventName, notifier.For(app), payload); err != nil {
		return nil, err
	}

	h.logger.Info("application stored", map[string]interface{}{
		"applicationId": id.String(),
		"status":        string(status),
		"signature":     input.Signature,
	})
	return output, nil
}

func initialStatus(signature string) (models.Status, error) {
	switch signature {
	case SignatureUserConfirms:
		return models.StatusPendingUserConfirmation, nil
	case SignatureProxy, SignatureProxyExemption:
		return models.StatusConfirmed, nil
	default:
		return "", errors.NewInvalidPayloadError(fmt.Sprintf("unknown signature %q", signature))
	}
}

func applicationID(input *Input) (uuid.UUID, error) {
	if input.ID != "" {
		id, err := uuid.Parse(input.ID)
		if err != nil {
			return uuid.Nil, errors.NewInvalidPayloadError(fmt.Sprintf("invalid soknadId %q", input.ID))
		}
		return id, nil
	}
	if input.EventID != "" {
		return uuid.NewSHA1(submissionNamespace, []byte(input.EventID)), nil
	}
	return uuid.Nil, errors.NewInvalidPayloadError("submission carries neither soknadId nor eventId")
}

func announcement(app *models.Application, signature string) (string, interface{}) {
	if app.Status == models.StatusPendingUserConfirmation {
		return models.EventApplicationAwaitingConfirmation, awaitingConfirmation{
			Concerns:    app.Concerns,
			SubmitterID: app.SubmitterID,
		}
	}
	return models.EventApplicationReceivedByProxy, receivedByProxy{
		Concerns:    app.Concerns,
		SubmitterID: app.SubmitterID,
		Signature:   signature,
	}
}
