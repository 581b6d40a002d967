// Package workertest holds in-memory doubles shared by the handler tests.
package workertest

import (
	"context"
	"sync"
	"time"

	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"

	"github.com/google/uuid"
)

// Store is an in-memory application store with the same conditional-write
// semantics as the PostgreSQL store.
type Store struct {
	mu           sync.Mutex
	Applications map[uuid.UUID]*models.Application
	CaseLinks    map[uuid.UUID][]models.CaseLink
	Decisions    map[uuid.UUID]models.DecisionResult
	OrderLines   map[models.OrderLineKey]StoredOrderLine

	// Err, when set, is returned by every call.
	Err error
	Now func() time.Time
}

type StoredOrderLine struct {
	Line          models.OrderLine
	ApplicationID uuid.UUID
	Notified      bool
	CreatedAt     time.Time
}

func NewStore() *Store {
	return &Store{
		Applications: make(map[uuid.UUID]*models.Application),
		CaseLinks:    make(map[uuid.UUID][]models.CaseLink),
		Decisions:    make(map[uuid.UUID]models.DecisionResult),
		OrderLines:   make(map[models.OrderLineKey]StoredOrderLine),
		Now:          time.Now,
	}
}

// Put stores app as-is, replacing any earlier version.
func (s *Store) Put(app models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = s.Now()
	}
	s.Applications[app.ID] = &app
}

// StatusOf returns the current status, or "" when absent.
func (s *Store) StatusOf(id uuid.UUID) models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok := s.Applications[id]; ok {
		return app.Status
	}
	return ""
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	app, ok := s.Applications[id]
	if !ok {
		return nil, models.ErrApplicationNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *Store) Insert(_ context.Context, app *models.Application) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if _, ok := s.Applications[app.ID]; ok {
		return 0, nil
	}
	cp := *app
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.Now()
	}
	s.Applications[app.ID] = &cp
	return 1, nil
}

func (s *Store) SetStatus(_ context.Context, id uuid.UUID, fromGuard *models.Status, to models.Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	app, ok := s.Applications[id]
	if !ok || (fromGuard != nil && app.Status != *fromGuard) {
		return 0, nil
	}
	app.Status = to
	app.UpdatedAt = s.Now()
	return 1, nil
}

func (s *Store) InsertCaseLink(_ context.Context, link models.CaseLink) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	for _, existing := range s.CaseLinks[link.ApplicationID] {
		if existing.Reference.System == link.Reference.System {
			return 0, nil
		}
	}
	s.CaseLinks[link.ApplicationID] = append(s.CaseLinks[link.ApplicationID], link)
	return 1, nil
}

func (s *Store) SaveDecision(_ context.Context, d models.DecisionResult) (models.DecisionWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return models.DecisionUnchanged, s.Err
	}
	existing, ok := s.Decisions[d.ApplicationID]
	if !ok {
		s.Decisions[d.ApplicationID] = d
		return models.DecisionInserted, nil
	}
	if existing.DecisionDate == nil && d.DecisionDate != nil {
		existing.DecisionDate = d.DecisionDate
		s.Decisions[d.ApplicationID] = existing
		return models.DecisionDateFilled, nil
	}
	return models.DecisionUnchanged, nil
}

func (s *Store) FindCandidates(_ context.Context, identity string, ref models.CaseReference) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Candidate
	for id, links := range s.CaseLinks {
		app := s.Applications[id]
		if app == nil || app.SubjectID != identity {
			continue
		}
		for _, l := range links {
			if l.Reference.System != ref.System || l.Reference.MatchKey() != ref.MatchKey() {
				continue
			}
			c := models.Candidate{ApplicationID: id, Status: app.Status}
			if d, ok := s.Decisions[id]; ok {
				c.DecisionDate = d.DecisionDate
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) InsertOrderLine(_ context.Context, line models.OrderLine, applicationID uuid.UUID, notified bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if _, ok := s.OrderLines[line.Key]; ok {
		return 0, nil
	}
	s.OrderLines[line.Key] = StoredOrderLine{Line: line, ApplicationID: applicationID, Notified: notified, CreatedAt: s.Now()}
	return 1, nil
}

func (s *Store) RecentOrderLineNotified(_ context.Context, applicationID uuid.UUID, within time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	cutoff := s.Now().Add(-within)
	for _, l := range s.OrderLines {
		if l.ApplicationID == applicationID && l.Notified && l.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListPendingConfirmation(_ context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var ids []uuid.UUID
	for id, app := range s.Applications {
		if app.Status == models.StatusPendingUserConfirmation && app.CreatedAt.Before(olderThan) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Published is one recorded notification.
type Published struct {
	RoutingKey string
	EventName  string
	IDs        notifier.CorrelationIDs
	Payload    interface{}
}

// Notifier records notifications instead of publishing them.
type Notifier struct {
	mu     sync.Mutex
	Events []Published
	Err    error
}

func (n *Notifier) Publish(_ context.Context, routingKey, eventName string, ids notifier.CorrelationIDs, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Events = append(n.Events, Published{RoutingKey: routingKey, EventName: eventName, IDs: ids, Payload: payload})
	return nil
}

// Names returns the published event names in order.
func (n *Notifier) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, len(n.Events))
	for i, e := range n.Events {
		names[i] = e.EventName
	}
	return names
}
