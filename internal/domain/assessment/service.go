package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/onboarding/internal/platform/submission"
)

// ErrNoActiveSession means the user has no stored snapshot.
var ErrNoActiveSession = errors.New("no active assessment")

// EventSubmissionCompleted is the event type sent with submissions.
const EventSubmissionCompleted = "assessment.completed"

// Submitter delivers a finalized payload to the external clinical API.
type Submitter interface {
	Submit(ctx context.Context, eventType string, body interface{}) (*submission.Delivery, error)
}

// Turn is a TurnResult plus whether its session reached storage.
type Turn struct {
	TurnResult
	Persisted bool
}

// repoStore adapts a SnapshotRepository to the boolean Store contract.
type repoStore struct {
	repo SnapshotRepository
	log  zerolog.Logger
}

// NewStore wraps repo as a Store that logs failures instead of returning them.
func NewStore(repo SnapshotRepository, logger zerolog.Logger) Store {
	return &repoStore{repo: repo, log: logger}
}

func (s *repoStore) Save(ctx context.Context, sess Session) bool {
	data, err := Serialize(sess)
	if err == nil {
		err = s.repo.Put(ctx, sess.UserID, sess.ID, data)
	}
	if err != nil {
		s.fail(&PersistenceError{Op: "save", UserID: sess.UserID, Err: err})
		return false
	}
	return true
}

func (s *repoStore) Load(ctx context.Context, userID string) (Session, bool) {
	data, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, false
	}
	if err == nil {
		var sess Session
		if sess, err = Deserialize(data); err == nil {
			return sess, true
		}
	}
	s.fail(&PersistenceError{Op: "load", UserID: userID, Err: err})
	return Session{}, false
}

func (s *repoStore) Clear(ctx context.Context, userID string) {
	if err := s.repo.Delete(ctx, userID); err != nil {
		s.fail(&PersistenceError{Op: "clear", UserID: userID, Err: err})
	}
}

func (s *repoStore) fail(err *PersistenceError) {
	s.log.Error().Err(err.Err).Str("op", err.Op).Str("user_id", err.UserID).Msg("snapshot persistence failed")
}

// userLocks serializes turns per user. Entries are dropped once unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// Service runs engine turns against stored snapshots.
type Service struct {
	engine    *Engine
	store     Store
	results   ResultRepository
	submitter Submitter
	version   string
	locks     *userLocks
	log       zerolog.Logger
}

// NewService wires the engine to storage. submitter may be nil, in which
// case every submission takes the degraded path.
func NewService(engine *Engine, store Store, results ResultRepository, submitter Submitter, version string, logger zerolog.Logger) *Service {
	if version == "" {
		version = engine.Catalog().Version()
	}
	return &Service{
		engine:    engine,
		store:     store,
		results:   results,
		submitter: submitter,
		version:   version,
		locks:     newUserLocks(),
		log:       logger,
	}
}

// Start opens a fresh session, replacing any stored snapshot. A snapshot
// with an unacknowledged emergency is never replaced.
func (s *Service) Start(ctx context.Context, userID string) (*Turn, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	if prev, ok := s.store.Load(ctx, userID); ok && prev.Emergency.Pending() {
		s.log.Warn().Str("user_id", userID).Str("session_id", prev.ID).Msg("restart refused, emergency pending")
		return nil, ErrEmergencyPending
	}
	res := s.engine.Start(userID)
	s.log.Info().Str("user_id", userID).Str("session_id", res.Session.ID).Msg("assessment started")
	return &Turn{TurnResult: res, Persisted: s.store.Save(ctx, res.Session)}, nil
}

// Current resumes the stored session at its saved pointer.
func (s *Service) Current(ctx context.Context, userID string) (*Turn, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	sess, ok := s.store.Load(ctx, userID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	res, err := s.engine.Resume(sess)
	if err != nil {
		return nil, err
	}
	return &Turn{TurnResult: res, Persisted: true}, nil
}

// Respond records one answer for the user's stored session.
func (s *Service) Respond(ctx context.Context, userID string, a Answer) (*Turn, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	sess, ok := s.store.Load(ctx, userID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	res, err := s.engine.SubmitResponse(sess, a)
	if err != nil {
		return nil, err
	}
	turn := &Turn{TurnResult: res, Persisted: s.store.Save(ctx, res.Session)}
	s.handleSideEffects(ctx, res)
	return turn, nil
}

// AcknowledgeEmergency records who acknowledged the pending emergency.
func (s *Service) AcknowledgeEmergency(ctx context.Context, userID, by string) (*Turn, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	sess, ok := s.store.Load(ctx, userID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	res, err := s.engine.AcknowledgeEmergency(sess, by)
	if err != nil {
		return nil, err
	}
	turn := &Turn{TurnResult: res, Persisted: s.store.Save(ctx, res.Session)}
	s.handleSideEffects(ctx, res)
	return turn, nil
}

// Submit finalizes the session if needed and delivers it externally. A
// failed delivery is not an error: the degraded response is returned.
func (s *Service) Submit(ctx context.Context, userID string, timing *Timing) (SubmissionResponse, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	sess, ok := s.store.Load(ctx, userID)
	if !ok {
		return SubmissionResponse{}, ErrNoActiveSession
	}
	results, err := s.engine.Finalize(sess, timing)
	if err != nil {
		return SubmissionResponse{}, err
	}
	s.storeResults(ctx, results)

	if s.submitter == nil {
		s.log.Warn().Str("user_id", userID).Str("session_id", sess.ID).Msg("submission endpoint not configured")
		return DegradedSubmission(results.RiskLevel, fmt.Errorf("submission endpoint not configured")), nil
	}

	payload := NewSubmissionPayload(results, sess.StartedAt, s.version)
	delivery, err := s.submitter.Submit(ctx, EventSubmissionCompleted, payload)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("session_id", sess.ID).Msg("submission failed, returning degraded response")
		return DegradedSubmission(results.RiskLevel, err), nil
	}
	if delivery.Response != nil && !delivery.Response.Success {
		s.log.Warn().Str("user_id", userID).Str("session_id", sess.ID).Msg("submission not accepted, returning degraded response")
		return DegradedSubmission(results.RiskLevel, submission.ErrNotAccepted), nil
	}
	s.log.Info().Str("user_id", userID).Str("session_id", sess.ID).Str("delivery_id", delivery.ID).Msg("assessment submitted")
	return acceptedSubmission(results, delivery), nil
}

// acceptedSubmission merges the clinical API's reply into the local results.
// The external risk level can raise the local one but never lower it.
func acceptedSubmission(results *HealthAssessmentResults, delivery *submission.Delivery) SubmissionResponse {
	resp := SubmissionResponse{
		Success:        true,
		SubmissionID:   delivery.ID,
		StatusCode:     delivery.StatusCode,
		RiskAssessment: MinimalRiskAssessment{RiskLevel: results.RiskLevel},
		NextSteps:      results.NextSteps,
		Results:        results,
	}
	ext := delivery.Response
	if ext == nil {
		return resp
	}
	resp.Message = ext.Message
	if g := ext.GamificationRewards; g != nil {
		resp.GamificationRewards = &GamificationRewards{Points: g.Points, Badges: g.Badges}
	}
	if ra := ext.RiskAssessment; ra != nil {
		if lvl := RiskLevel(ra.Level); lvl.Valid() {
			resp.RiskAssessment.RiskLevel = maxRisk(results.RiskLevel, lvl)
		}
		resp.RiskAssessment.Score = ra.Score
		resp.RiskAssessment.PrimaryConcerns = ra.PrimaryConcerns
	}
	if len(ext.NextSteps) > 0 {
		steps := make([]NextStep, 0, len(ext.NextSteps))
		for _, st := range ext.NextSteps {
			steps = append(steps, NextStep{Action: st.Action, Description: st.Description, Priority: st.Priority})
		}
		resp.NextSteps = steps
	}
	return resp
}

// Clear removes the stored session.
func (s *Service) Clear(ctx context.Context, userID string) {
	unlock := s.locks.lock(userID)
	defer unlock()
	s.store.Clear(ctx, userID)
}

// Question looks up a catalog entry.
func (s *Service) Question(id string) (*Question, error) {
	return s.engine.Catalog().Question(id)
}

func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*StoredResult, error) {
	return s.results.GetByID(ctx, id)
}

func (s *Service) ListResults(ctx context.Context, limit, offset int) ([]*StoredResult, int, error) {
	return s.results.List(ctx, limit, offset)
}

func (s *Service) ListResultsByUser(ctx context.Context, userID string, limit, offset int) ([]*StoredResult, int, error) {
	return s.results.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) handleSideEffects(ctx context.Context, res TurnResult) {
	for _, eff := range res.SideEffects {
		switch e := eff.(type) {
		case EmergencyTriggered:
			s.log.Warn().
				Str("user_id", res.Session.UserID).
				Str("session_id", res.Session.ID).
				Str("question_id", e.QuestionID).
				Str("reason", e.Reason).
				Msg("emergency protocol triggered")
		case EmergencyAcknowledged:
			s.log.Info().
				Str("user_id", res.Session.UserID).
				Str("session_id", res.Session.ID).
				Str("acknowledged_by", e.AcknowledgedBy).
				Msg("emergency acknowledged")
		case PointsEligible:
			s.log.Info().
				Str("user_id", res.Session.UserID).
				Strs("domains", e.CompletedDomains).
				Msg("domains completed")
		case AssessmentCompleted:
			s.log.Info().
				Str("user_id", res.Session.UserID).
				Str("session_id", e.SessionID).
				Str("risk_level", string(e.RiskLevel)).
				Msg("assessment completed")
			if res.Results != nil {
				s.storeResults(ctx, res.Results)
			}
		}
	}
}

func (s *Service) storeResults(ctx context.Context, r *HealthAssessmentResults) {
	if s.results == nil {
		return
	}
	err := s.results.Create(ctx, &StoredResult{
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		RiskLevel:      r.RiskLevel,
		TotalRiskScore: r.TotalRiskScore,
		FraudScore:     r.FraudDetectionScore,
		Results:        r.Clone(),
		CreatedAt:      r.Timestamp,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", r.UserID).Str("session_id", r.SessionID).Msg("store assessment results")
	}
}
