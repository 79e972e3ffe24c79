package assessment

import "fmt"

// ContactEntry is one emergency contact shown with a protocol.
type ContactEntry struct {
	Type         string `json:"type" mapstructure:"type"`
	Name         string `json:"name" mapstructure:"name"`
	Phone        string `json:"phone" mapstructure:"phone"`
	Available24h bool   `json:"available24h" mapstructure:"available24h"`
}

const (
	ContactCrisisLine        = "crisis_line"
	ContactEmergencyServices = "emergency_services"
)

// Emergency reasons recorded on a protocol.
const (
	ReasonTriageCritical   = "triage_critical"
	ReasonSuicidalIdeation = "suicidal_ideation"
	ReasonIndeterminate    = "indeterminate_safety_answer"
)

// EmergencyProtocol overrides normal flow when a safety-critical answer is
// detected. Only the Detector builds one.
type EmergencyProtocol struct {
	Severity              RiskLevel      `json:"severity"`
	Reason                string         `json:"reason"`
	TriggerQuestionID     string         `json:"triggerQuestionId"`
	ImmediateActions      []string       `json:"immediateActions"`
	ContactInformation    []ContactEntry `json:"contactInformation"`
	FollowUpRequired      bool           `json:"followUpRequired"`
	EstimatedTimeToSafety int            `json:"estimatedTimeToSafety"`
	SafetyPlan            []string       `json:"safetyPlan"`
}

// HasContact reports whether the protocol lists a contact of the given type.
func (p *EmergencyProtocol) HasContact(contactType string) bool {
	for _, c := range p.ContactInformation {
		if c.Type == contactType {
			return true
		}
	}
	return false
}

func (p *EmergencyProtocol) clone() *EmergencyProtocol {
	if p == nil {
		return nil
	}
	c := *p
	c.ImmediateActions = append([]string(nil), p.ImmediateActions...)
	c.ContactInformation = append([]ContactEntry(nil), p.ContactInformation...)
	c.SafetyPlan = append([]string(nil), p.SafetyPlan...)
	return &c
}

// Contacts configures the phone numbers placed on every protocol.
type Contacts struct {
	CrisisLineName  string
	CrisisLinePhone string
	EmergencyName   string
	EmergencyPhone  string
}

// DefaultContacts are the Brazilian national crisis line (CVV) and the
// mobile emergency service (SAMU).
func DefaultContacts() Contacts {
	return Contacts{
		CrisisLineName:  "CVV - Centro de Valorização da Vida",
		CrisisLinePhone: "188",
		EmergencyName:   "SAMU",
		EmergencyPhone:  "192",
	}
}

// EmergencyEvaluation is the outcome of evaluating one incoming response.
type EmergencyEvaluation struct {
	EmergencyDetected bool               `json:"emergencyDetected"`
	EmergencyProtocol *EmergencyProtocol `json:"emergencyProtocol,omitempty"`
	RiskLevel         RiskLevel          `json:"riskLevel"`
	Reason            string             `json:"reason,omitempty"`
}

// Detector evaluates safety-critical answers. It holds only configuration.
type Detector struct {
	contacts Contacts
}

func NewDetector(contacts Contacts) *Detector {
	if contacts.CrisisLinePhone == "" {
		contacts = DefaultContacts()
	}
	return &Detector{contacts: contacts}
}

// Evaluate checks one incoming response. resp must already be normalized;
// responses is the full set including resp. An answer to a safety-critical
// question that cannot be read is escalated, never treated as low risk.
func (d *Detector) Evaluate(questionID string, resp Response, responses Responses) EmergencyEvaluation {
	switch questionID {
	case QuestionTriage:
		n, ok := numberOf(resp)
		if !ok {
			return d.detected(questionID, ReasonIndeterminate)
		}
		level := TriageLevel(n)
		if level == RiskCritical {
			return d.detected(questionID, ReasonTriageCritical)
		}
		return EmergencyEvaluation{RiskLevel: level}

	case QuestionSuicideItem:
		n, ok := itemScore(resp)
		if !ok {
			return d.detected(questionID, ReasonIndeterminate)
		}
		if n > 0 {
			return d.detected(questionID, ReasonSuicidalIdeation)
		}
	}
	return EmergencyEvaluation{RiskLevel: standingLevel(responses)}
}

// PHQ9Result is the PHQ-9 score plus the protocol raised by item 9.
type PHQ9Result struct {
	InstrumentScore
	EmergencyProtocol *EmergencyProtocol `json:"emergencyProtocol,omitempty"`
}

// AnalyzePHQ9 scores the PHQ-9 and attaches an emergency protocol whenever
// item 9 is positive, whatever the other items say.
func (d *Detector) AnalyzePHQ9(responses Responses) PHQ9Result {
	res := PHQ9Result{InstrumentScore: ScorePHQ9(responses)}
	if resp, ok := responses[QuestionSuicideItem]; ok {
		if ev := d.Evaluate(QuestionSuicideItem, resp, responses); ev.EmergencyDetected {
			res.EmergencyProtocol = ev.EmergencyProtocol
		}
	}
	return res
}

func (d *Detector) detected(questionID, reason string) EmergencyEvaluation {
	return EmergencyEvaluation{
		EmergencyDetected: true,
		EmergencyProtocol: d.protocol(questionID, reason),
		RiskLevel:         RiskCritical,
		Reason:            reason,
	}
}

func (d *Detector) protocol(questionID, reason string) *EmergencyProtocol {
	actions := []string{
		fmt.Sprintf("Call %s on %s now, free and available 24 hours", d.contacts.CrisisLineName, d.contacts.CrisisLinePhone),
		"Stay with someone you trust until you feel safe",
		fmt.Sprintf("If you are in immediate danger, call %s on %s", d.contacts.EmergencyName, d.contacts.EmergencyPhone),
	}
	if reason == ReasonSuicidalIdeation {
		actions = append(actions, "Keep away from anything you could use to hurt yourself")
	}
	contacts := []ContactEntry{
		{Type: ContactCrisisLine, Name: d.contacts.CrisisLineName, Phone: d.contacts.CrisisLinePhone, Available24h: true},
		{Type: ContactEmergencyServices, Name: d.contacts.EmergencyName, Phone: d.contacts.EmergencyPhone, Available24h: true},
	}
	plan := []string{
		"Stay in a safe place",
		"Contact someone you trust",
		fmt.Sprintf("Call %s if you feel you might act on these thoughts", d.contacts.EmergencyPhone),
		"Remember that this feeling will pass",
	}
	return &EmergencyProtocol{
		Severity:              RiskCritical,
		Reason:                reason,
		TriggerQuestionID:     questionID,
		ImmediateActions:      actions,
		ContactInformation:    contacts,
		FollowUpRequired:      true,
		EstimatedTimeToSafety: 15,
		SafetyPlan:            plan,
	}
}

// standingLevel is the triage level already established for a session, low
// until triage has been answered.
func standingLevel(responses Responses) RiskLevel {
	t := AnalyzeTriage(responses)
	if !t.Answered {
		return RiskLow
	}
	return t.Level
}

func numberOf(resp Response) (float64, bool) {
	if resp.Malformed || resp.Value.Kind != KindNumber {
		return 0, false
	}
	return resp.Value.Number, true
}
