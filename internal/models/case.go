// internal/models/case.go
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaseSystem identifies which case-management system owns a case.
type CaseSystem string

const (
	// CaseSystemInfotrygd is the legacy system with composite references.
	CaseSystemInfotrygd CaseSystem = "INFOTRYGD"
	// CaseSystemHotsak is the modern system with opaque case ids.
	CaseSystemHotsak CaseSystem = "HOTSAK"
)

var (
	officePattern      = regexp.MustCompile(`^\d{4}$`)
	blockNumberPattern = regexp.MustCompile(`^([A-ZÆØÅ])(\d{2})$`)
)

// CaseReference ties an application to a case record. Infotrygd references are
// office number + block letter + case number; Hotsak references carry CaseID.
type CaseReference struct {
	System     CaseSystem `json:"system"`
	Office     string     `json:"trygdekontorNr,omitempty"`
	Block      string     `json:"saksblokk,omitempty"`
	CaseNumber string     `json:"saksnr,omitempty"`
	CaseID     string     `json:"sakId,omitempty"`
}

// NewInfotrygdReference validates and builds a legacy composite reference.
// office may be empty when the source only knows block and number.
func NewInfotrygdReference(office, block, number string) (CaseReference, error) {
	if office != "" && !officePattern.MatchString(office) {
		return CaseReference{}, fmt.Errorf("invalid office number %q", office)
	}
	if !blockNumberPattern.MatchString(block + number) {
		return CaseReference{}, fmt.Errorf("invalid block/case number %q%q", block, number)
	}
	return CaseReference{System: CaseSystemInfotrygd, Office: office, Block: block, CaseNumber: number}, nil
}

// ParseInfotrygdBlockAndNumber parses the combined "C13" form used by fulfillment events.
func ParseInfotrygdBlockAndNumber(s string) (CaseReference, error) {
	m := blockNumberPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return CaseReference{}, fmt.Errorf("invalid block and case number %q", s)
	}
	return CaseReference{System: CaseSystemInfotrygd, Block: m[1], CaseNumber: m[2]}, nil
}

// NewHotsakReference builds a modern opaque reference.
func NewHotsakReference(caseID string) (CaseReference, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return CaseReference{}, fmt.Errorf("empty case id")
	}
	return CaseReference{System: CaseSystemHotsak, CaseID: caseID}, nil
}

// Key is the full canonical reference, e.g. "0301A01" or a Hotsak id.
func (r CaseReference) Key() string {
	if r.System == CaseSystemHotsak {
		return r.CaseID
	}
	return r.Office + r.Block + r.CaseNumber
}

// MatchKey is the part of the reference fulfillment events carry. Legacy
// fulfillment events omit the office number, so only block and number match.
func (r CaseReference) MatchKey() string {
	if r.System == CaseSystemHotsak {
		return r.CaseID
	}
	return r.Block + r.CaseNumber
}

func (r CaseReference) String() string {
	return string(r.System) + ":" + r.Key()
}

// CaseLink associates an application with one case in one case system.
type CaseLink struct {
	ApplicationID uuid.UUID
	Reference     CaseReference
	CreatedAt     time.Time
}

// DecisionOutcome is a case system's outcome for an application.
type DecisionOutcome string

const (
	OutcomeApproved          DecisionOutcome = "INNVILGET"
	OutcomePartiallyApproved DecisionOutcome = "DELVIS_INNVILGET"
	OutcomeRejected          DecisionOutcome = "AVSLÅTT"
	OutcomeOther             DecisionOutcome = "ANNET"
)

// DecisionOutcomeFromCode maps legacy one/two-letter codes and modern outcome
// names onto the normalized outcome set.
func DecisionOutcomeFromCode(code string) DecisionOutcome {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "I", "IM", "INNVILGET":
		return OutcomeApproved
	case "DI", "DELVIS_INNVILGET":
		return OutcomePartiallyApproved
	case "A", "AVSLÅTT", "AVSLATT":
		return OutcomeRejected
	default:
		return OutcomeOther
	}
}

// Status returns the DECISION_* status for the outcome.
func (o DecisionOutcome) Status() Status {
	switch o {
	case OutcomeApproved:
		return StatusDecisionApproved
	case OutcomePartiallyApproved:
		return StatusDecisionPartiallyApproved
	case OutcomeRejected:
		return StatusDecisionRejected
	default:
		return StatusDecisionOther
	}
}

// DecisionResult is the decision recorded for an application. DecisionDate is
// nil while pending; it may be filled exactly once.
type DecisionResult struct {
	ApplicationID uuid.UUID
	System        CaseSystem
	Code          string
	Outcome       DecisionOutcome
	DecisionDate  *time.Time
}

// DecisionWrite reports what saving a decision changed.
type DecisionWrite string

const (
	DecisionUnchanged  DecisionWrite = "unchanged"
	DecisionInserted   DecisionWrite = "inserted"
	DecisionDateFilled DecisionWrite = "date_filled"
)
