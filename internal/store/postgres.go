// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/models"

	"github.com/google/uuid"
)

//go:embed schema.sql
var schemaSQL string

// Store is the PostgreSQL application store. It is the only writer of
// application status. Every write is conditional: a write that finds the row
// already in place, or the guard already moved, reports 0 rows instead of
// failing.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
		now:    time.Now,
	}
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.NewDatabaseQueryFailedError("ensure schema", err)
	}
	return nil
}

// Get returns the application or models.ErrApplicationNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var (
		app     models.Application
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, submitter_id, subject_id, status, concerns, correlation_id, payload, created_at, updated_at
		FROM applications
		WHERE id = $1`, id).Scan(
		&app.ID, &app.SubmitterID, &app.SubjectID, &app.Status, &app.Concerns,
		&app.CorrelationID, &payload, &app.CreatedAt, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrApplicationNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("get application", err)
	}
	app.Payload = json.RawMessage(payload)
	return &app, nil
}

// Insert stores a new application. 0 rows means the id already exists.
func (s *Store) Insert(ctx context.Context, app *models.Application) (int64, error) {
	if !app.Status.Valid() {
		return 0, errors.NewInvalidPayloadError(fmt.Sprintf("unknown status %q", app.Status))
	}
	createdAt := app.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	payload := app.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (
			id, submitter_id, subject_id, status, concerns, correlation_id, payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO NOTHING`,
		app.ID, app.SubmitterID, app.SubjectID, string(app.Status), app.Concerns,
		app.CorrelationID, string(payload), createdAt,
	)
	if err != nil {
		return 0, errors.NewDatabaseInsertFailedError("applications", err)
	}
	return res.RowsAffected()
}

// SetStatus moves an application to `to`. With a non-nil fromGuard the update
// only applies while the current status equals *fromGuard. The returned row
// count is 0 when the guard did not hold.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, fromGuard *models.Status, to models.Status) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if fromGuard != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE applications SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3`, id, string(to), string(*fromGuard))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE applications SET status = $2, updated_at = now()
			WHERE id = $1`, id, string(to))
	}
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("set status", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("set status", err)
	}
	if rows == 0 {
		return 0, nil
	}

	// history is non-critical: log and continue
	var from interface{}
	if fromGuard != nil {
		from = string(*fromGuard)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO status_history (application_id, from_status, to_status)
		VALUES ($1, $2, $3)`, id, from, string(to)); err != nil {
		s.logger.Warn("status history insert failed", map[string]interface{}{
			"error":         err,
			"applicationId": id.String(),
			"to":            string(to),
		})
	}
	return rows, nil
}

// FindCandidates returns the subject's applications linked to ref, with their
// locally recorded decision date (nil while pending).
func (s *Store) FindCandidates(ctx context.Context, identity string, ref models.CaseReference) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.status, d.decision_date
		FROM applications a
		JOIN case_links c ON c.application_id = a.id
		LEFT JOIN decision_results d ON d.application_id = a.id
		WHERE a.subject_id = $1 AND c.case_system = $2 AND c.match_key = $3
		ORDER BY a.created_at`, identity, string(ref.System), ref.MatchKey())
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("find candidates", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var (
			c    models.Candidate
			date sql.NullTime
		)
		if err := rows.Scan(&c.ApplicationID, &c.Status, &date); err != nil {
			return nil, errors.NewDatabaseQueryFailedError("find candidates", err)
		}
		if date.Valid {
			d := date.Time
			c.DecisionDate = &d
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("find candidates", err)
	}
	return candidates, nil
}

// InsertCaseLink records the case for an application. 0 rows means the
// application already has a case in that system.
func (s *Store) InsertCaseLink(ctx context.Context, link models.CaseLink) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO case_links (application_id, case_system, case_key, match_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (application_id, case_system) DO NOTHING`,
		link.ApplicationID, string(link.Reference.System), link.Reference.Key(), link.Reference.MatchKey(),
	)
	if err != nil {
		return 0, errors.NewCaseLinkFailedError(err)
	}
	return res.RowsAffected()
}

// SaveDecision records the decision, or fills in the date of a pending one.
// xmax is 0 only for a freshly inserted row.
func (s *Store) SaveDecision(ctx context.Context, d models.DecisionResult) (models.DecisionWrite, error) {
	var date interface{}
	if d.DecisionDate != nil {
		date = d.DecisionDate.Format(models.DateLayout)
	}
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO decision_results (application_id, case_system, code, outcome, decision_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (application_id) DO UPDATE
		SET decision_date = EXCLUDED.decision_date, updated_at = now()
		WHERE decision_results.decision_date IS NULL AND EXCLUDED.decision_date IS NOT NULL
		RETURNING (xmax = 0)`,
		d.ApplicationID, string(d.System), d.Code, string(d.Outcome), date,
	).Scan(&inserted)
	switch {
	case err == sql.ErrNoRows:
		return models.DecisionUnchanged, nil
	case err != nil:
		return models.DecisionUnchanged, errors.NewDatabaseInsertFailedError("decision_results", err)
	case inserted:
		return models.DecisionInserted, nil
	default:
		return models.DecisionDateFilled, nil
	}
}

// InsertOrderLine attaches an order line to an application. 0 rows means the
// natural key was already recorded.
func (s *Store) InsertOrderLine(ctx context.Context, line models.OrderLine, applicationID uuid.UUID, notified bool) (int64, error) {
	payload := line.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_lines (
			service_request_id, order_number, line_number, sub_line_number,
			application_id, recipient_id, item_code, quantity, category, notified, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (service_request_id, order_number, line_number, sub_line_number) DO NOTHING`,
		line.Key.ServiceRequestID, line.Key.OrderNumber, line.Key.LineNumber, line.Key.SubLineNumber,
		applicationID, line.RecipientID, line.ItemCode, line.Quantity, line.Category, notified, string(payload),
	)
	if err != nil {
		return 0, errors.NewDatabaseInsertFailedError("order_lines", err)
	}
	return res.RowsAffected()
}

// RecentOrderLineNotified reports whether an order line for the application
// triggered a user notification within the window.
func (s *Store) RecentOrderLineNotified(ctx context.Context, applicationID uuid.UUID, within time.Duration) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM order_lines
			WHERE application_id = $1 AND notified
			  AND created_at > now() - $2 * interval '1 second'
		)`, applicationID, within.Seconds()).Scan(&exists)
	if err != nil {
		return false, errors.NewDatabaseQueryFailedError("recent order line", err)
	}
	return exists, nil
}

// ListPendingConfirmation returns applications awaiting user confirmation
// that were created before olderThan, oldest first.
func (s *Store) ListPendingConfirmation(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM applications
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at`, string(models.StatusPendingUserConfirmation), olderThan)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list pending confirmation", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewDatabaseQueryFailedError("list pending confirmation", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list pending confirmation", err)
	}
	return ids, nil
}

// FindCaseIDFor returns the key of the most recently linked case.
func (s *Store) FindCaseIDFor(ctx context.Context, applicationID uuid.UUID) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `
		SELECT case_key FROM case_links
		WHERE application_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, applicationID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewDatabaseQueryFailedError("find case id", err)
	}
	return key, true, nil
}

// FindCorrelationIDFor returns the correlation id recorded at submission.
func (s *Store) FindCorrelationIDFor(ctx context.Context, applicationID uuid.UUID) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT correlation_id FROM applications WHERE id = $1`, applicationID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewDatabaseQueryFailedError("find correlation id", err)
	}
	return id, id != "", nil
}
