package assessment

import (
	"errors"
	"fmt"
)

// Turn errors returned by the engine.
var (
	ErrSessionComplete      = errors.New("assessment already completed")
	ErrAssessmentIncomplete = errors.New("assessment has unanswered questions")
	ErrEmergencyPending     = errors.New("emergency protocol awaiting acknowledgement")
	ErrNoPendingEmergency   = errors.New("no emergency awaiting acknowledgement")
)

// ValidationError reports a missing or empty answer to a required question.
type ValidationError struct {
	QuestionID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.QuestionID, e.Reason)
}

// UnknownQuestionError means an id does not exist in the catalog. When the
// flow controller produces one it is a defect, not a user error.
type UnknownQuestionError struct {
	QuestionID string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("unknown question: %s", e.QuestionID)
}

// ScoringError describes a clinical item whose value could not be scored.
// It is recorded on the analysis and reported to the fraud analyzer; scoring
// functions never return it.
type ScoringError struct {
	QuestionID string
	Instrument string
	Raw        string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("%s item %s: unscorable value %q", e.Instrument, e.QuestionID, e.Raw)
}

// PersistenceError wraps a failure from a snapshot repository. Store
// implementations log it and report a boolean failure to the engine.
type PersistenceError struct {
	Op     string
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s snapshot for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
