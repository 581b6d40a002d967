package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db, logger.NewTestLogger(t))
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

// ==========================
// Applications
// ==========================

func TestGet(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, submitter_id, subject_id, status`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "submitter_id", "subject_id", "status", "concerns", "correlation_id", "payload", "created_at", "updated_at",
		}).AddRow(id.String(), "10987654321", "12345678910", "VENTER_GODKJENNING", "Rullator", "corr-1", []byte(`{"a":1}`), created, created))

	app, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, app.ID)
	assert.Equal(t, models.StatusPendingUserConfirmation, app.Status)
	assert.Equal(t, "12345678910", app.SubjectID)
	assert.JSONEq(t, `{"a":1}`, string(app.Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, submitter_id`).WithArgs(id).WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrApplicationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_QueryError(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, submitter_id`).WithArgs(id).WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.Get(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDatabaseQueryFailed))
	assert.True(t, errors.IsRetryable(err))
}

func TestInsert_Idempotent(t *testing.T) {
	s, mock := newTestStore(t)
	app := &models.Application{
		ID:          uuid.New(),
		SubmitterID: "12345678910",
		SubjectID:   "12345678910",
		Status:      models.StatusPendingUserConfirmation,
	}

	insert := regexp.QuoteMeta(`INSERT INTO applications`)
	mock.ExpectExec(insert).
		WithArgs(app.ID, "12345678910", "12345678910", "VENTER_GODKJENNING", "", "", "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := s.Insert(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = s.Insert(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RejectsUnknownStatus(t *testing.T) {
	s, mock := newTestStore(t)

	_, err := s.Insert(context.Background(), &models.Application{ID: uuid.New(), Status: "NOPE"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPayload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Status
// ==========================

func TestSetStatus_Guarded(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()
	from := models.StatusPendingUserConfirmation

	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs(id, "GODKJENT", "VENTER_GODKJENNING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO status_history`).
		WithArgs(id, "VENTER_GODKJENNING", "GODKJENT").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rows, err := s.SetStatus(context.Background(), id, &from, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus_GuardFailedWritesNoHistory(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()
	from := models.StatusPendingUserConfirmation

	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs(id, "UTLØPT", "VENTER_GODKJENNING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := s.SetStatus(context.Background(), id, &from, models.StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus_HistoryFailureIsNonCritical(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs(id, "GODKJENT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO status_history`).
		WillReturnError(fmt.Errorf("disk full"))

	rows, err := s.SetStatus(context.Background(), id, nil, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Correlation inputs
// ==========================

func TestFindCandidates(t *testing.T) {
	s, mock := newTestStore(t)
	ref, err := models.ParseInfotrygdBlockAndNumber("C13")
	require.NoError(t, err)

	withDate, pending := uuid.New(), uuid.New()
	decided := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM applications a\s+JOIN case_links c`).
		WithArgs("12345678910", "INFOTRYGD", "C13").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "decision_date"}).
			AddRow(withDate.String(), "VEDTAKSRESULTAT_INNVILGET", decided).
			AddRow(pending.String(), "UNDER_BEHANDLING", nil))

	candidates, err := s.FindCandidates(context.Background(), "12345678910", ref)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, withDate, candidates[0].ApplicationID)
	assert.True(t, candidates[0].HasDecisionOn(decided))
	assert.Equal(t, pending, candidates[1].ApplicationID)
	assert.True(t, candidates[1].DecisionPending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCaseLink(t *testing.T) {
	s, mock := newTestStore(t)
	ref, err := models.NewInfotrygdReference("0301", "A", "01")
	require.NoError(t, err)
	link := models.CaseLink{ApplicationID: uuid.New(), Reference: ref}

	mock.ExpectExec(`INSERT INTO case_links`).
		WithArgs(link.ApplicationID, "INFOTRYGD", "0301A01", "A01").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := s.InsertCaseLink(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDecision_PendingDate(t *testing.T) {
	s, mock := newTestStore(t)
	d := models.DecisionResult{
		ApplicationID: uuid.New(),
		System:        models.CaseSystemHotsak,
		Code:          "INNVILGET",
		Outcome:       models.OutcomeApproved,
	}
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO decision_results`).
		WithArgs(d.ApplicationID, "HOTSAK", "INNVILGET", "INNVILGET", nil).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(`ON CONFLICT \(application_id\) DO UPDATE`).
		WithArgs(d.ApplicationID, "HOTSAK", "INNVILGET", "INNVILGET", "2026-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectQuery(`RETURNING \(xmax = 0\)`).
		WithArgs(d.ApplicationID, "HOTSAK", "INNVILGET", "INNVILGET", "2026-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}))

	write, err := s.SaveDecision(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionInserted, write)

	d.DecisionDate = &date
	write, err = s.SaveDecision(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDateFilled, write)

	write, err = s.SaveDecision(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionUnchanged, write)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDecision_Error(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`INSERT INTO decision_results`).WillReturnError(assert.AnError)

	_, err := s.SaveDecision(context.Background(), models.DecisionResult{ApplicationID: uuid.New(), Outcome: models.OutcomeRejected})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestInsertOrderLine_DuplicateKey(t *testing.T) {
	s, mock := newTestStore(t)
	appID := uuid.New()
	line := models.OrderLine{
		Key:         models.OrderLineKey{ServiceRequestID: "SR1", OrderNumber: "100", LineNumber: 1},
		RecipientID: "12345678910",
		ItemCode:    "123456",
		Quantity:    1,
		Category:    "Hjelpemiddel",
	}

	mock.ExpectExec(`INSERT INTO order_lines`).
		WithArgs("SR1", "100", 1, 0, appID, "12345678910", "123456", 1.0, "Hjelpemiddel", true, "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := s.InsertOrderLine(context.Background(), line, appID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = s.InsertOrderLine(context.Background(), line, appID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentOrderLineNotified(t *testing.T) {
	s, mock := newTestStore(t)
	appID := uuid.New()

	mock.ExpectQuery(`created_at > now\(\) - \$2 \* interval '1 second'`).
		WithArgs(appID, float64(86400)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	notified, err := s.RecentOrderLineNotified(context.Background(), appID, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Sweep and lookups
// ==========================

func TestListPendingConfirmation(t *testing.T) {
	s, mock := newTestStore(t)
	a, b := uuid.New(), uuid.New()
	cutoff := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id FROM applications`).
		WithArgs("VENTER_GODKJENNING", cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(a.String()).AddRow(b.String()))

	ids, err := s.ListPendingConfirmation(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookups(t *testing.T) {
	s, mock := newTestStore(t)
	appID := uuid.New()

	mock.ExpectQuery(`SELECT case_key FROM case_links`).
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows([]string{"case_key"}).AddRow("1001"))
	mock.ExpectQuery(`SELECT correlation_id FROM applications`).
		WithArgs(appID).
		WillReturnError(sql.ErrNoRows)

	caseID, ok, err := s.FindCaseIDFor(context.Background(), appID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1001", caseID)

	_, ok, err = s.FindCorrelationIDFor(context.Background(), appID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS applications`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Contains(t, schemaSQL, "PRIMARY KEY (service_request_id, order_number, line_number, sub_line_number)")
	assert.Contains(t, schemaSQL, "PRIMARY KEY (application_id, case_system)")
	assert.NoError(t, mock.ExpectationsWereMet())
}
