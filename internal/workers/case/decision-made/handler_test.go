// internal/workers/case/decision-made/handler_test.go
package decisionmade

import (
	"context"
	"fmt"
	"testing"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/models"
	"soknad-workers/internal/statemachine"
	"soknad-workers/internal/workers/workertest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appID = uuid.MustParse("62f68547-11ae-418c-8ab7-4d2af985bcd9")

func setup(t *testing.T, status models.Status) (*Handler, *workertest.Store, *workertest.Notifier) {
	s := workertest.NewStore()
	s.Put(models.Application{ID: appID, SubjectID: "12345678910", Status: status})
	n := &workertest.Notifier{}
	log := logger.NewTestLogger(t)
	return NewHandler(LoadConfig(), s, statemachine.New(s, log, metrics.NewUnregistered()), n, log), s, n
}

func decisionMessage(eventName, code, date string) bus.Message {
	raw := fmt.Sprintf(`{"eventName": %q, "soknadId": %q, "vedtaksresultat": %q`, eventName, appID, code)
	if date != "" {
		raw += fmt.Sprintf(`, "vedtaksdato": %q`, date)
	}
	return bus.Message{ID: "1-0", Value: []byte(raw + "}")}
}

func TestHandle_OutcomeMapping(t *testing.T) {
	tests := []struct {
		event string
		code  string
		want  models.Status
	}{
		{EventInfotrygdDecision, "I", models.StatusDecisionApproved},
		{EventInfotrygdDecision, "IM", models.StatusDecisionApproved},
		{EventInfotrygdDecision, "DI", models.StatusDecisionPartiallyApproved},
		{EventInfotrygdDecision, "A", models.StatusDecisionRejected},
		{EventInfotrygdDecision, "H", models.StatusDecisionOther},
		{EventHotsakDecision, "INNVILGET", models.StatusDecisionApproved},
		{EventHotsakDecision, "DELVIS_INNVILGET", models.StatusDecisionPartiallyApproved},
		{EventHotsakDecision, "AVSLÅTT", models.StatusDecisionRejected},
		{EventHotsakDecision, "HENLAGT", models.StatusDecisionOther},
	}
	for _, tt := range tests {
		t.Run(tt.event+"/"+tt.code, func(t *testing.T) {
			h, s, n := setup(t, models.StatusUnderCaseProcessing)

			require.NoError(t, h.Handle(context.Background(), decisionMessage(tt.event, tt.code, "2026-03-09")))
			assert.Equal(t, tt.want, s.StatusOf(appID))
			assert.Equal(t, []string{models.EventDecisionResult}, n.Names())
			require.NotNil(t, s.Decisions[appID].DecisionDate)
			assert.Equal(t, "2026-03-09", s.Decisions[appID].DecisionDate.Format(models.DateLayout))
		})
	}
}

func TestHandle_PendingDateFilledLater(t *testing.T) {
	h, s, n := setup(t, models.StatusUnderCaseProcessing)

	require.NoError(t, h.Handle(context.Background(), decisionMessage(EventInfotrygdDecision, "I", "")))
	assert.Nil(t, s.Decisions[appID].DecisionDate)
	assert.Equal(t, models.StatusDecisionApproved, s.StatusOf(appID))
	require.Len(t, n.Events, 1)
	assert.Equal(t, "", n.Events[0].Payload.(decisionResult).DecisionDate)

	require.NoError(t, h.Handle(context.Background(), decisionMessage(EventInfotrygdDecision, "I", "2026-03-09")))
	require.NotNil(t, s.Decisions[appID].DecisionDate)
	assert.Len(t, n.Events, 1, "date sync must not announce the decision again")
}

func TestHandle_FirstDecisionAfterEarlyFulfillment(t *testing.T) {
	h, s, n := setup(t, models.StatusFulfillmentStarted)

	require.NoError(t, h.Handle(context.Background(), decisionMessage(EventInfotrygdDecision, "DI", "2026-03-09")))
	assert.Equal(t, models.StatusFulfillmentStarted, s.StatusOf(appID))
	assert.Equal(t, models.OutcomePartiallyApproved, s.Decisions[appID].Outcome)
	require.Equal(t, []string{models.EventDecisionResult}, n.Names())
	assert.Equal(t, decisionResult{
		Outcome:      string(models.OutcomePartiallyApproved),
		DecisionDate: "2026-03-09",
		CaseSystem:   string(models.CaseSystemInfotrygd),
	}, n.Events[0].Payload)

	require.NoError(t, h.Handle(context.Background(), decisionMessage(EventInfotrygdDecision, "DI", "2026-03-09")))
	assert.Len(t, n.Events, 1)
}

func TestHandle_KnownDecisionNotRepeatedAfterFulfillment(t *testing.T) {
	h, s, n := setup(t, models.StatusFulfillmentStarted)
	_, err := s.SaveDecision(context.Background(), models.DecisionResult{
		ApplicationID: appID, System: models.CaseSystemInfotrygd, Code: "I", Outcome: models.OutcomeApproved,
	})
	require.NoError(t, err)

	output, err := h.Execute(context.Background(), &Input{
		EventName: EventInfotrygdDecision, ApplicationID: appID.String(), Code: "I", DecisionDate: "2026-03-09",
	})
	require.NoError(t, err)
	assert.False(t, output.Announced)
	assert.NotNil(t, s.Decisions[appID].DecisionDate)
	assert.Empty(t, n.Events)
}

func TestHandle_DecisionBeforeCaseProcessingIsNotAnnounced(t *testing.T) {
	h, s, n := setup(t, models.StatusConfirmed)

	require.NoError(t, h.Handle(context.Background(), decisionMessage(EventHotsakDecision, "INNVILGET", "2026-03-09")))
	assert.Equal(t, models.StatusConfirmed, s.StatusOf(appID))
	assert.Empty(t, n.Events)
}

func TestHandle_TerminalApplicationIsNotAnnounced(t *testing.T) {
	h, s, n := setup(t, models.StatusDeletedByUser)

	output, err := h.Execute(context.Background(), &Input{
		EventName: EventHotsakDecision, ApplicationID: appID.String(), Code: "INNVILGET", DecisionDate: "2026-03-09",
	})
	require.NoError(t, err)
	assert.Equal(t, string(statemachine.OutcomeTerminal), output.Outcome)
	assert.Empty(t, s.Decisions)
	assert.Empty(t, n.Events)
}

func TestHandle_UnknownApplicationIsRetried(t *testing.T) {
	h, s, _ := setup(t, models.StatusUnderCaseProcessing)

	_, err := h.Execute(context.Background(), &Input{
		EventName: EventHotsakDecision, ApplicationID: uuid.New().String(), Code: "INNVILGET",
	})
	assert.True(t, errors.Is(err, errors.ErrCodeApplicationNotFound))
	assert.True(t, errors.IsRetryable(err))
	assert.Empty(t, s.Decisions)
}

func TestHandle_InvalidDate(t *testing.T) {
	h, s, _ := setup(t, models.StatusUnderCaseProcessing)

	err := h.Handle(context.Background(), decisionMessage(EventHotsakDecision, "INNVILGET", "09.03.2026"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPayload))
	assert.Empty(t, s.Decisions)
}

func TestHandle_StoreFailure(t *testing.T) {
	h, s, n := setup(t, models.StatusUnderCaseProcessing)
	s.Err = errors.NewDatabaseInsertFailedError("decision_results", fmt.Errorf("timeout"))

	err := h.Handle(context.Background(), decisionMessage(EventHotsakDecision, "INNVILGET", "2026-03-09"))
	assert.True(t, errors.IsRetryable(err))
	assert.Empty(t, n.Events)
}
