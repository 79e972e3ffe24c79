package assessment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SideEffect is something the caller should act on after a turn. The engine
// only reports side effects; it never performs them.
type SideEffect interface {
	Kind() string
}

// EmergencyTriggered is emitted when a turn records a new emergency.
type EmergencyTriggered struct {
	QuestionID string             `json:"questionId"`
	Reason     string             `json:"reason"`
	Protocol   *EmergencyProtocol `json:"protocol"`
}

// EmergencyAcknowledged is emitted when a pending emergency is acknowledged.
type EmergencyAcknowledged struct {
	AcknowledgedBy string    `json:"acknowledgedBy"`
	AcknowledgedAt time.Time `json:"acknowledgedAt"`
}

// PointsEligible is emitted when domains become complete during a turn.
type PointsEligible struct {
	CompletedDomains []string  `json:"completedDomains"`
	RiskLevel        RiskLevel `json:"riskLevel"`
}

// AssessmentCompleted is emitted once, on the turn that finalizes results.
type AssessmentCompleted struct {
	SessionID string    `json:"sessionId"`
	RiskLevel RiskLevel `json:"riskLevel"`
}

func (EmergencyTriggered) Kind() string    { return "emergency_triggered" }
func (EmergencyAcknowledged) Kind() string { return "emergency_acknowledged" }
func (PointsEligible) Kind() string        { return "points_eligible" }
func (AssessmentCompleted) Kind() string   { return "assessment_completed" }

// TurnResult is the outcome of one engine call.
type TurnResult struct {
	Session      Session                  `json:"session"`
	NextQuestion *Question                `json:"nextQuestion,omitempty"`
	Emergency    *EmergencyProtocol       `json:"emergency,omitempty"`
	Results      *HealthAssessmentResults `json:"results,omitempty"`
	Complete     bool                     `json:"complete"`
	SideEffects  []SideEffect             `json:"-"`
}

// Engine runs assessment turns. It holds only immutable configuration, so a
// single Engine serves every user concurrently.
type Engine struct {
	catalog  *Catalog
	flow     *FlowController
	detector *Detector
	now      func() time.Time
	newID    func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithContacts sets the crisis contacts placed on emergency protocols.
func WithContacts(c Contacts) EngineOption {
	return func(e *Engine) { e.detector = NewDetector(c) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.newID = gen }
}

func NewEngine(catalog *Catalog, opts ...EngineOption) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("engine requires a catalog")
	}
	flow, err := NewFlowController(catalog)
	if err != nil {
		return nil, fmt.Errorf("build flow controller: %w", err)
	}
	e := &Engine{
		catalog:  catalog,
		flow:     flow,
		detector: NewDetector(DefaultContacts()),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the catalog the engine was built with.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Start opens a new session for userID positioned on the first question.
func (e *Engine) Start(userID string) TurnResult {
	now := e.now().UTC()
	s := Session{
		ID:          e.newID(),
		UserID:      userID,
		Responses:   Responses{},
		Stage:       StageTriage,
		StartedAt:   now,
		LastSavedAt: now,
	}
	res, _ := e.advance(s, Responses{}, nil, now)
	return res
}

// SubmitResponse records one answer and runs a full turn: emergency check,
// scoring and next question selection. The input session is not modified.
func (e *Engine) SubmitResponse(s Session, a Answer) (TurnResult, error) {
	if s.Complete() {
		return TurnResult{}, ErrSessionComplete
	}
	q, ok := e.catalog.lookup(a.QuestionID)
	if !ok {
		return TurnResult{}, &UnknownQuestionError{QuestionID: a.QuestionID}
	}
	now := e.now().UTC()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	resp, err := Normalize(q, a)
	if err != nil {
		return TurnResult{}, err
	}

	prev := s.Responses
	c := s.Clone()
	if c.Responses == nil {
		c.Responses = Responses{}
	}
	c.Responses[q.ID] = resp
	c.LastSavedAt = now

	var effects []SideEffect
	if ev := e.detector.Evaluate(q.ID, resp, c.Responses); ev.EmergencyDetected && !c.Emergency.Pending() {
		c.Emergency = &EmergencyRecord{
			Protocol:   ev.EmergencyProtocol,
			Reason:     ev.Reason,
			DetectedAt: now,
		}
		effects = append(effects, EmergencyTriggered{
			QuestionID: q.ID,
			Reason:     ev.Reason,
			Protocol:   ev.EmergencyProtocol.clone(),
		})
	}
	return e.advance(c, prev, effects, now)
}

// AcknowledgeEmergency clears the pending flag of a session's emergency and
// resumes question selection. The protocol stays on the session.
func (e *Engine) AcknowledgeEmergency(s Session, by string) (TurnResult, error) {
	if !s.Emergency.Pending() {
		return TurnResult{}, ErrNoPendingEmergency
	}
	now := e.now().UTC()
	c := s.Clone()
	c.Emergency.Acknowledged = true
	c.Emergency.AcknowledgedBy = by
	c.Emergency.AcknowledgedAt = &now
	c.LastSavedAt = now
	effects := []SideEffect{EmergencyAcknowledged{AcknowledgedBy: by, AcknowledgedAt: now}}
	return e.advance(c, c.Responses, effects, now)
}

// Resume returns the question under the session's stored pointer. The
// pointer is trusted as saved; responses are not replayed.
func (e *Engine) Resume(s Session) (TurnResult, error) {
	res := TurnResult{Session: s.Clone()}
	if s.Complete() {
		res.Results = s.Results.Clone()
		res.Complete = true
		return res, nil
	}
	if s.Emergency.Pending() {
		res.Emergency = s.Emergency.Protocol.clone()
		return res, nil
	}
	q, err := e.catalog.QuestionAt(s.CurrentDomainIndex, s.CurrentQuestionIndex)
	if err != nil {
		if s.CurrentQuestionID == "" {
			return TurnResult{}, fmt.Errorf("resume session %s: %w", s.ID, err)
		}
		if q, err = e.catalog.Question(s.CurrentQuestionID); err != nil {
			return TurnResult{}, fmt.Errorf("resume session %s: %w", s.ID, err)
		}
	}
	res.NextQuestion = q
	return res, nil
}

// Finalize returns the results of a session whose flow is exhausted. It is
// idempotent: a session that already has results gets the stored copy, with
// the fraud analysis redone against timing when the caller supplies it.
func (e *Engine) Finalize(s Session, timing *Timing) (*HealthAssessmentResults, error) {
	if s.Results != nil {
		r := s.Results.Clone()
		if timing != nil {
			// Caller timing replaces the timestamp estimate made at completion.
			fa := AnalyzeFraud(s.Responses, timing)
			r.FraudDetectionScore, r.FraudFlags = fa.Score, fa.Flags
		}
		return r, nil
	}
	if s.Emergency.Pending() {
		return nil, ErrEmergencyPending
	}
	analysis := Analyze(s.Responses)
	if q, _ := e.flow.next(s.Responses, analysis, s.Stage); q != nil {
		return nil, ErrAssessmentIncomplete
	}
	res := buildResults(s, e.completedDomains(s.Responses, analysis, StageComplete), timing, e.now().UTC())
	return &res, nil
}

// advance selects the next question for c, or finalizes it when the flow is
// exhausted. prev is the response set before this turn.
func (e *Engine) advance(c Session, prev Responses, effects []SideEffect, now time.Time) (TurnResult, error) {
	analysis := Analyze(c.Responses)

	if c.Emergency.Pending() {
		return TurnResult{
			Session:     c,
			Emergency:   c.Emergency.Protocol.clone(),
			SideEffects: effects,
		}, nil
	}

	before := e.completedDomains(prev, Analyze(prev), c.Stage)
	q, stage := e.flow.next(c.Responses, analysis, c.Stage)
	if q == nil {
		return e.complete(c, before, effects, now), nil
	}

	di, qi, err := e.catalog.Position(q.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("position next question: %w", err)
	}
	c.Stage = stage
	c.CurrentDomain = q.Domain
	c.CurrentQuestionID = q.ID

	remaining := e.flow.Remaining(c.Responses, analysis, stage)
	answered := len(c.Responses)
	eta := estimateMinutes(len(remaining), answered, c.LastSavedAt.Sub(c.StartedAt))
	c = UpdateProgress(c, di, qi, progressPercent(answered, len(remaining)), eta)

	after := e.completedDomains(c.Responses, analysis, stage)
	if added := newDomains(before, after); len(added) > 0 {
		effects = append(effects, PointsEligible{CompletedDomains: added, RiskLevel: standingLevel(c.Responses)})
	}

	return TurnResult{Session: c, NextQuestion: q.clone(), SideEffects: effects}, nil
}

func (e *Engine) complete(c Session, before []string, effects []SideEffect, now time.Time) TurnResult {
	analysis := Analyze(c.Responses)
	domains := e.completedDomains(c.Responses, analysis, StageComplete)
	results := buildResults(c, domains, nil, now)

	c.Stage = StageComplete
	c.CurrentQuestionID = ""
	c = UpdateProgress(c, c.CurrentDomainIndex, c.CurrentQuestionIndex, 100, 0)
	c.CompletedAt = &now
	c.Results = &results

	if added := newDomains(before, domains); len(added) > 0 {
		effects = append(effects, PointsEligible{CompletedDomains: added, RiskLevel: results.RiskLevel})
	}
	effects = append(effects, AssessmentCompleted{SessionID: c.ID, RiskLevel: results.RiskLevel})

	return TurnResult{
		Session:     c,
		Results:     results.Clone(),
		Complete:    true,
		SideEffects: effects,
	}
}

// completedDomains lists, in catalog order, the domains with at least one
// answer and no planned question left.
func (e *Engine) completedDomains(responses Responses, analysis Analysis, stage Stage) []string {
	pending := make(map[string]bool)
	if stage != StageComplete {
		for _, id := range e.flow.Remaining(responses, analysis, stage) {
			if q, ok := e.catalog.lookup(id); ok {
				pending[q.Domain] = true
			}
		}
	}
	answered := make(map[string]bool)
	for id := range responses {
		if q, ok := e.catalog.lookup(id); ok {
			answered[q.Domain] = true
		}
	}
	out := []string{}
	for _, d := range e.catalog.domains {
		if answered[d] && !pending[d] {
			out = append(out, d)
		}
	}
	return out
}

func newDomains(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, d := range before {
		seen[d] = true
	}
	var out []string
	for _, d := range after {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out
}
