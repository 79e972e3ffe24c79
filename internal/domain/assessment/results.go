package assessment

import (
	"math"
	"time"
)

// Next step priorities.
const (
	PriorityImmediate = "immediate"
	PriorityHigh      = "high"
	PriorityMedium    = "medium"
	PriorityLow       = "low"
)

// NextStep is one follow-up action offered to the user.
type NextStep struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// HealthAssessmentResults is the immutable output of a completed session.
type HealthAssessmentResults struct {
	SessionID           string             `json:"sessionId"`
	UserID              string             `json:"userId"`
	Responses           Responses          `json:"responses"`
	RiskScores          map[string]float64 `json:"riskScores"`
	CompletedDomains    []string           `json:"completedDomains"`
	TotalRiskScore      float64            `json:"totalRiskScore"`
	RiskLevel           RiskLevel          `json:"riskLevel"`
	RiskStratification  RiskStratification `json:"riskStratification"`
	Recommendations     []string           `json:"recommendations"`
	NextSteps           []NextStep         `json:"nextSteps"`
	FraudDetectionScore float64            `json:"fraudDetectionScore"`
	FraudFlags          []string           `json:"fraudFlags"`
	ICD10Codes          []string           `json:"icd10Codes"`
	ClinicalDecisions   []ClinicalDecision `json:"clinicalDecisions"`
	AccuracyScore       float64            `json:"accuracyScore"`
	EmergencyProtocol   *EmergencyProtocol `json:"emergencyProtocol,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
}

// Clone returns a deep copy so stored results cannot be mutated by callers.
func (r *HealthAssessmentResults) Clone() *HealthAssessmentResults {
	if r == nil {
		return nil
	}
	c := *r
	c.Responses = r.Responses.clone()
	c.RiskScores = make(map[string]float64, len(r.RiskScores))
	for k, v := range r.RiskScores {
		c.RiskScores[k] = v
	}
	c.CompletedDomains = copyStrings(r.CompletedDomains)
	c.Recommendations = copyStrings(r.Recommendations)
	if r.NextSteps != nil {
		c.NextSteps = append(make([]NextStep, 0, len(r.NextSteps)), r.NextSteps...)
	}
	c.FraudFlags = copyStrings(r.FraudFlags)
	c.ICD10Codes = copyStrings(r.ICD10Codes)
	if r.ClinicalDecisions != nil {
		c.ClinicalDecisions = make([]ClinicalDecision, len(r.ClinicalDecisions))
		for i, d := range r.ClinicalDecisions {
			d.RecommendedActions = copyStrings(d.RecommendedActions)
			c.ClinicalDecisions[i] = d
		}
	}
	c.RiskStratification.PrimaryConcerns = copyStrings(r.RiskStratification.PrimaryConcerns)
	c.EmergencyProtocol = r.EmergencyProtocol.clone()
	return &c
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

// buildResults computes results for a response set. completedDomains must
// already be in catalog order.
func buildResults(s Session, completedDomains []string, timing *Timing, now time.Time) HealthAssessmentResults {
	decisions := AnalyzeComprehensive(s.Responses)
	strat := Stratify(s.Responses, decisions)
	scores := RiskScores(s.Responses)
	fraud := AnalyzeFraud(s.Responses, timing)

	var protocol *EmergencyProtocol
	if s.Emergency != nil {
		protocol = s.Emergency.Protocol.clone()
	}

	return HealthAssessmentResults{
		SessionID:           s.ID,
		UserID:              s.UserID,
		Responses:           s.Responses.clone(),
		RiskScores:          scores,
		CompletedDomains:    completedDomains,
		TotalRiskScore:      TotalRiskScore(scores),
		RiskLevel:           strat.Level,
		RiskStratification:  strat,
		Recommendations:     flattenActions(decisions),
		NextSteps:           nextSteps(strat, protocol),
		FraudDetectionScore: fraud.Score,
		FraudFlags:          fraud.Flags,
		ICD10Codes:          icdCodes(decisions),
		ClinicalDecisions:   decisions,
		AccuracyScore:       math.Round(meanConfidence(decisions)*10) / 10,
		EmergencyProtocol:   protocol,
		Timestamp:           now,
	}
}

// icdCodes lists distinct codes in first-seen order.
func icdCodes(decisions []ClinicalDecision) []string {
	seen := make(map[string]bool, len(decisions))
	out := []string{}
	for _, d := range decisions {
		if d.ICD10Code == "" || seen[d.ICD10Code] {
			continue
		}
		seen[d.ICD10Code] = true
		out = append(out, d.ICD10Code)
	}
	return out
}

func flattenActions(decisions []ClinicalDecision) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, d := range decisions {
		for _, a := range d.RecommendedActions {
			if seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func nextSteps(strat RiskStratification, protocol *EmergencyProtocol) []NextStep {
	var steps []NextStep
	if protocol != nil {
		steps = append(steps, NextStep{
			Action:      "contact_crisis_support",
			Description: "Reach a crisis line or emergency service now",
			Priority:    PriorityImmediate,
		})
	}
	switch strat.Level {
	case RiskCritical, RiskHigh:
		steps = append(steps, NextStep{
			Action:      "schedule_urgent_consultation",
			Description: "A clinician will contact you within 24 hours",
			Priority:    PriorityHigh,
		})
	case RiskModerate:
		steps = append(steps, NextStep{
			Action:      "schedule_consultation",
			Description: "Book a primary care consultation within a week",
			Priority:    PriorityMedium,
		})
	default:
		steps = append(steps, NextStep{
			Action:      "routine_follow_up",
			Description: "Keep up routine care and repeat the assessment in a month",
			Priority:    PriorityLow,
		})
	}
	return append(steps, NextStep{
		Action:      "complete_profile",
		Description: "Finish your health profile",
		Priority:    PriorityLow,
	})
}

// SubmissionMetadata accompanies the responses sent to the external API.
type SubmissionMetadata struct {
	Version          string             `json:"version"`
	CompletedAt      time.Time          `json:"completed_at"`
	TimeTakenSeconds int64              `json:"time_taken_seconds"`
	DomainsCompleted []string           `json:"domains_completed"`
	RiskScores       map[string]float64 `json:"risk_scores"`
	FraudScore       float64            `json:"fraud_score"`
}

// SubmissionPayload is the body posted to the external submission API.
type SubmissionPayload struct {
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	Responses map[string]Value   `json:"responses"`
	Metadata  SubmissionMetadata `json:"metadata"`
}

// NewSubmissionPayload builds the external payload for a finalized session.
func NewSubmissionPayload(r *HealthAssessmentResults, startedAt time.Time, version string) SubmissionPayload {
	values := make(map[string]Value, len(r.Responses))
	for id, resp := range r.Responses {
		values[id] = resp.Value
	}
	var taken int64
	if !startedAt.IsZero() && r.Timestamp.After(startedAt) {
		taken = int64(r.Timestamp.Sub(startedAt).Seconds())
	}
	scores := make(map[string]float64, len(r.RiskScores))
	for k, v := range r.RiskScores {
		scores[k] = v
	}
	return SubmissionPayload{
		SessionID: r.SessionID,
		UserID:    r.UserID,
		Responses: values,
		Metadata: SubmissionMetadata{
			Version:          version,
			CompletedAt:      r.Timestamp,
			TimeTakenSeconds: taken,
			DomainsCompleted: append([]string(nil), r.CompletedDomains...),
			RiskScores:       scores,
			FraudScore:       r.FraudDetectionScore,
		},
	}
}

// MinimalRiskAssessment is what survives a failed submission. Score and
// PrimaryConcerns are only filled from an accepted external reply.
type MinimalRiskAssessment struct {
	RiskLevel       RiskLevel `json:"riskLevel"`
	Score           *float64  `json:"score,omitempty"`
	PrimaryConcerns []string  `json:"primaryConcerns,omitempty"`
}

// GamificationRewards are the points and badges granted by the clinical API.
type GamificationRewards struct {
	Points int      `json:"points"`
	Badges []string `json:"badges,omitempty"`
}

// SubmissionResponse is the outcome of delivering results externally.
// Degraded is set when delivery failed and a local fallback was returned.
type SubmissionResponse struct {
	Success             bool                     `json:"success"`
	Degraded            bool                     `json:"degraded"`
	SubmissionID        string                   `json:"submissionId,omitempty"`
	StatusCode          int                      `json:"statusCode,omitempty"`
	RiskAssessment      MinimalRiskAssessment    `json:"riskAssessment"`
	NextSteps           []NextStep               `json:"nextSteps"`
	GamificationRewards *GamificationRewards     `json:"gamificationRewards,omitempty"`
	Message             string                   `json:"message,omitempty"`
	Results             *HealthAssessmentResults `json:"results,omitempty"`
	Error               string                   `json:"error,omitempty"`
}

// DegradedSubmission is returned when the external submission fails. It
// keeps the locally computed risk level and nothing else.
func DegradedSubmission(level RiskLevel, err error) SubmissionResponse {
	resp := SubmissionResponse{
		Success:        false,
		Degraded:       true,
		RiskAssessment: MinimalRiskAssessment{RiskLevel: level},
		NextSteps:      []NextStep{},
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
