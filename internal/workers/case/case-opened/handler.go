// internal/workers/case/case-opened/handler.go
package caseopened

import (
	"context"
	stderrors "errors"
	"fmt"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/validation"
	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"
	"soknad-workers/internal/statemachine"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

const (
	TaskType = "case-opened"
)

var schema = validation.MustValidator(validation.Schema{
	Accept:   []string{EventInfotrygdCaseOpened, EventHotsakCaseOpened},
	Required: []string{"soknadId"},
})

type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Application, error)
	InsertCaseLink(ctx context.Context, link models.CaseLink) (int64, error)
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

	var input Input
	if err := event.Decode(&input); err != nil {
		return errors.NewInvalidPayloadError(fmt.Sprintf("decode %s: %v", event.Name(), err))
	}
	ref, err := reference(event, &input)
	if err != nil {
		return errors.NewInvalidPayloadError(err.Error())
	}

	_, err = h.Execute(ctx, &input, ref)
	return err
}

// reference dispatches on event name and schema version.
func reference(event *validation.Event, input *Input) (models.CaseReference, error) {
	switch {
	case event.Name() == EventHotsakCaseOpened:
		return models.NewHotsakReference(input.CaseID)
	case event.SchemaVersion() == "2":
		ref, err := models.ParseInfotrygdBlockAndNumber(input.BlockAndCaseNumber)
		if err != nil {
			return ref, err
		}
		return models.NewInfotrygdReference(input.Office, ref.Block, ref.CaseNumber)
	default:
		return models.NewInfotrygdReference(input.Office, input.Block, input.CaseNumber)
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input, ref models.CaseReference) (*Output, error) {
	return h.execute(ctx, input, ref)
}

// execute links the case and moves the application to case processing
// concurrently. Both are awaited and both errors are reported. The
// notification follows an applied transition even when the link failed, since
// a redelivery would find the transition already done. Deleted and expired
// applications are left untouched.
func (h *Handler) execute(ctx context.Context, input *Input, ref models.CaseReference) (*Output, error) {
	id, err := uuid.Parse(input.ApplicationID)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(fmt.Sprintf("invalid soknadId %q", input.ApplicationID))
	}

	current, err := h.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, models.ErrApplicationNotFound) {
			return nil, errors.NewApplicationNotFoundError(id.String())
		}
		return nil, err
	}
	if current.Status.Terminal() {
		h.logger.Warn("case opened for application in terminal state dropped", map[string]interface{}{
			"applicationId": id.String(),
			"caseRef":       ref.String(),
			"status":        string(current.Status),
		})
		return &Output{
			ApplicationID: id.String(),
			CaseReference: ref.Key(),
			Outcome:       string(statemachine.OutcomeTerminal),
		}, nil
	}

	var (
		linkRows int64
		result   statemachine.Result
	)
	p := pool.New().WithErrors()
	p.Go(func() error {
		rows, err := h.store.InsertCaseLink(ctx, models.CaseLink{ApplicationID: id, Reference: ref})
		linkRows = rows
		return err
	})
	p.Go(func() error {
		res, err := h.machine.Transition(ctx, id, models.StatusUnderCaseProcessing)
		result = res
		return err
	})
	waitErr := p.Wait()

	fields := map[string]interface{}{
		"applicationId": id.String(),
		"caseRef":       ref.String(),
		"linkCreated":   linkRows == 1,
		"outcome":       string(result.Outcome),
	}
	if linkRows == 0 && waitErr == nil {
		h.logger.Info("case link already recorded", fields)
	}

	if result.Applied() {
		app := result.Application
		payload := underProcessing{CaseSystem: string(ref.System), CaseReference: ref.Key()}
		if err := h.notifier.Publish(ctx, app.SubjectID, models.EventApplicationUnderProcessing, notifier.For(app), payload); err != nil {
			return nil, stderrors.Join(waitErr, err)
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}

	h.logger.Info("case opened", fields)
	return &Output{
		ApplicationID: id.String(),
		CaseReference: ref.Key(),
		LinkCreated:   linkRows == 1,
		Outcome:       string(result.Outcome),
	}, nil
}
