package assessment

import (
	"math"
	"time"
)

// defaultSecondsPerQuestion is the pace assumed before any answer is timed.
const defaultSecondsPerQuestion = 20

// EmergencyRecord is the emergency side channel of a session. It is set by
// the detector and only cleared from pending by an explicit acknowledgement.
type EmergencyRecord struct {
	Protocol       *EmergencyProtocol `json:"protocol"`
	Reason         string             `json:"reason"`
	DetectedAt     time.Time          `json:"detectedAt"`
	Acknowledged   bool               `json:"acknowledged"`
	AcknowledgedBy string             `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time         `json:"acknowledgedAt,omitempty"`
}

// Pending reports whether an emergency is waiting for acknowledgement.
func (e *EmergencyRecord) Pending() bool {
	return e != nil && !e.Acknowledged
}

func (e *EmergencyRecord) clone() *EmergencyRecord {
	if e == nil {
		return nil
	}
	c := *e
	c.Protocol = e.Protocol.clone()
	if e.AcknowledgedAt != nil {
		t := *e.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	return &c
}

// Session is one user's assessment in progress. The engine never keeps a
// session; callers pass it in and get an updated copy back.
type Session struct {
	ID                            string                   `json:"id"`
	UserID                        string                   `json:"userId"`
	Responses                     Responses                `json:"responses"`
	Stage                         Stage                    `json:"stage"`
	CurrentDomain                 string                   `json:"currentDomain"`
	CurrentDomainIndex            int                      `json:"currentDomainIndex"`
	CurrentQuestionIndex          int                      `json:"currentQuestionIndex"`
	CurrentQuestionID             string                   `json:"currentQuestionId,omitempty"`
	Progress                      float64                  `json:"progress"`
	EstimatedTimeRemainingMinutes int                      `json:"estimatedTimeRemainingMinutes"`
	Emergency                     *EmergencyRecord         `json:"emergency,omitempty"`
	StartedAt                     time.Time                `json:"startedAt"`
	LastSavedAt                   time.Time                `json:"lastSavedAt"`
	CompletedAt                   *time.Time               `json:"completedAt,omitempty"`
	Results                       *HealthAssessmentResults `json:"results,omitempty"`
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	c := s
	c.Responses = s.Responses.clone()
	c.Emergency = s.Emergency.clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Results = s.Results.Clone()
	return c
}

// Complete reports whether the session has been finalized.
func (s Session) Complete() bool {
	return s.Stage == StageComplete && s.Results != nil
}

// UpdateProgress moves the session pointer and merges progress. Progress
// never decreases and always stays within 0..100.
func UpdateProgress(s Session, domainIndex, questionIndex int, progress float64, etaMinutes int) Session {
	c := s.Clone()
	c.CurrentDomainIndex = domainIndex
	c.CurrentQuestionIndex = questionIndex
	c.Progress = clamp(math.Max(s.Progress, progress), 0, 100)
	if etaMinutes < 0 {
		etaMinutes = 0
	}
	c.EstimatedTimeRemainingMinutes = etaMinutes
	return c
}

// estimateMinutes projects the time left from the pace so far.
func estimateMinutes(remaining, answered int, elapsed time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	pace := float64(defaultSecondsPerQuestion)
	if answered > 0 && elapsed > 0 {
		pace = elapsed.Seconds() / float64(answered)
	}
	return int(math.Ceil(float64(remaining) * pace / 60))
}

// progressPercent is the share of the planned path already answered.
func progressPercent(answered, remaining int) float64 {
	total := answered + remaining
	if total == 0 {
		return 0
	}
	return round1(float64(answered) / float64(total) * 100)
}
