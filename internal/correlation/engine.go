// Package correlation resolves order lines, which carry no application id, to
// the application they belong to.
//
// A missed correlation is followed up manually; a wrong one credits the wrong
// person with a delivery. Every ambiguous branch therefore ends in no match.
package correlation

import (
	"context"
	"time"

	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/models"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeMatched     Outcome = "matched"
	OutcomePreDecision Outcome = "pre_decision"
	OutcomeAmbiguous   Outcome = "ambiguous"
	OutcomeUnmatched   Outcome = "unmatched"
	OutcomeDenied      Outcome = "denied"
)

// CandidateFinder is the store query behind correlation.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, identity string, ref models.CaseReference) ([]models.Candidate, error)
}

// DecisionVerifier confirms decisions not yet recorded locally.
type DecisionVerifier interface {
	DecisionExists(ctx context.Context, identity string, ref models.CaseReference, date time.Time) (bool, error)
}

// InvestigationSink records misses for manual follow-up.
type InvestigationSink interface {
	RecordMiss(ctx context.Context, miss Miss) error
}

type Request struct {
	MessageID    string
	Identity     string
	CaseRef      models.CaseReference
	DecisionDate time.Time
}

type Result struct {
	Outcome       Outcome
	ApplicationID uuid.UUID
	// PreDecision is set when the match relied on the registry because the
	// decision was not yet recorded locally.
	PreDecision bool
	Candidates  int
}

// Matched reports whether ApplicationID is set.
func (r Result) Matched() bool {
	return r.Outcome == OutcomeMatched || r.Outcome == OutcomePreDecision
}

type Engine struct {
	finder   CandidateFinder
	verifier DecisionVerifier
	sink     InvestigationSink
	denyList map[string]struct{}
	logger   logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewEngine builds an Engine. sink may be nil.
func NewEngine(finder CandidateFinder, verifier DecisionVerifier, sink InvestigationSink, denyList []string, log logger.Logger, m *metrics.Metrics) *Engine {
	deny := make(map[string]struct{}, len(denyList))
	for _, id := range denyList {
		deny[id] = struct{}{}
	}
	return &Engine{
		finder:   finder,
		verifier: verifier,
		sink:     sink,
		denyList: deny,
		logger:   log.WithFields(map[string]interface{}{"component": "correlation"}),
		metrics:  m,
		now:      time.Now,
	}
}

// Correlate resolves req to at most one application. Only store failures are
// returned as errors; every other outcome is a Result.
func (e *Engine) Correlate(ctx context.Context, req Request) (Result, error) {
	fields := map[string]interface{}{
		"messageId":    req.MessageID,
		"caseRef":      req.CaseRef.String(),
		"decisionDate": req.DecisionDate.Format(models.DateLayout),
	}

	if _, denied := e.denyList[req.MessageID]; denied && req.MessageID != "" {
		e.logger.Warn("skipping deny-listed message", fields)
		return e.finish(Result{Outcome: OutcomeDenied}), nil
	}

	candidates, err := e.finder.FindCandidates(ctx, req.Identity, req.CaseRef)
	if err != nil {
		return Result{}, err
	}

	// Deleted and expired applications take no further side effects, so
	// they neither match nor make a live match ambiguous.
	var exact, pending []models.Candidate
	terminal := 0
	for _, c := range candidates {
		switch {
		case c.Status.Terminal():
			terminal++
		case c.HasDecisionOn(req.DecisionDate):
			exact = append(exact, c)
		case c.DecisionPending():
			pending = append(pending, c)
		}
	}
	fields["candidates"] = len(candidates)
	fields["exact"] = len(exact)
	fields["pending"] = len(pending)
	fields["terminal"] = terminal

	switch {
	case len(exact) == 1:
		fields["applicationId"] = exact[0].ApplicationID.String()
		e.logger.Info("order line correlated", fields)
		return e.finish(Result{Outcome: OutcomeMatched, ApplicationID: exact[0].ApplicationID, Candidates: len(candidates)}), nil

	case len(exact) > 1:
		e.metrics.CorrelationAmbiguous.Inc()
		e.logger.Error("order line matches several applications, not correlated", fields)
		e.recordMiss(ctx, req, OutcomeAmbiguous, len(candidates), len(exact), len(pending))
		return e.finish(Result{Outcome: OutcomeAmbiguous, Candidates: len(candidates)}), nil

	case len(pending) == 1:
		exists, err := e.verifier.DecisionExists(ctx, req.Identity, req.CaseRef, req.DecisionDate)
		if err != nil {
			fields["error"] = err
			e.logger.Warn("decision verification failed, order line not correlated", fields)
		} else if exists {
			fields["applicationId"] = pending[0].ApplicationID.String()
			e.logger.Info("order line correlated before decision was recorded", fields)
			return e.finish(Result{
				Outcome:       OutcomePreDecision,
				ApplicationID: pending[0].ApplicationID,
				PreDecision:   true,
				Candidates:    len(candidates),
			}), nil
		} else {
			e.logger.Warn("registry has no matching decision, order line not correlated", fields)
		}
	default:
		e.logger.Warn("no unique candidate for order line, needs manual investigation", fields)
	}

	e.recordMiss(ctx, req, OutcomeUnmatched, len(candidates), len(exact), len(pending))
	return e.finish(Result{Outcome: OutcomeUnmatched, Candidates: len(candidates)}), nil
}

func (e *Engine) finish(r Result) Result {
	e.metrics.CorrelationOutcomes.WithLabelValues(string(r.Outcome)).Inc()
	return r
}

func (e *Engine) recordMiss(ctx context.Context, req Request, outcome Outcome, candidates, exact, pending int) {
	if e.sink == nil {
		return
	}
	miss := Miss{
		MessageID:    req.MessageID,
		Outcome:      outcome,
		CaseSystem:   string(req.CaseRef.System),
		CaseRef:      req.CaseRef.MatchKey(),
		DecisionDate: req.DecisionDate.Format(models.DateLayout),
		Candidates:   candidates,
		Exact:        exact,
		Pending:      pending,
		RecordedAt:   e.now().UTC(),
	}
	if err := e.sink.RecordMiss(ctx, miss); err != nil {
		e.logger.Warn("failed to record correlation miss", map[string]interface{}{
			"error":     err,
			"messageId": req.MessageID,
		})
	}
}
