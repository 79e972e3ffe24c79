package assessment

import (
	"testing"
)

func TestDetector_TriageCritical(t *testing.T) {
	d := NewDetector(DefaultContacts())
	r := numbers(map[string]float64{QuestionTriage: 1})

	ev := d.Evaluate(QuestionTriage, r[QuestionTriage], r)
	if !ev.EmergencyDetected {
		t.Fatal("expected emergency for wellbeing 1")
	}
	if ev.RiskLevel != RiskCritical {
		t.Errorf("expected critical, got %s", ev.RiskLevel)
	}
	p := ev.EmergencyProtocol
	if p == nil {
		t.Fatal("expected protocol")
	}
	if !p.HasContact(ContactCrisisLine) {
		t.Error("expected crisis line contact")
	}
	var phone string
	for _, c := range p.ContactInformation {
		if c.Type == ContactCrisisLine {
			phone = c.Phone
			if !c.Available24h {
				t.Error("expected crisis line available 24h")
			}
		}
	}
	if phone != "188" {
		t.Errorf("expected crisis line phone 188, got %q", phone)
	}
	if len(p.SafetyPlan) == 0 || len(p.ImmediateActions) == 0 {
		t.Error("expected safety plan and immediate actions")
	}
	if !p.FollowUpRequired {
		t.Error("expected follow up required")
	}
	if p.TriggerQuestionID != QuestionTriage || p.Reason != ReasonTriageCritical {
		t.Errorf("unexpected trigger %s/%s", p.TriggerQuestionID, p.Reason)
	}
}

func TestDetector_TriageNonCritical(t *testing.T) {
	d := NewDetector(DefaultContacts())
	r := numbers(map[string]float64{QuestionTriage: 2})
	ev := d.Evaluate(QuestionTriage, r[QuestionTriage], r)
	if ev.EmergencyDetected {
		t.Fatal("unexpected emergency for wellbeing 2")
	}
	if ev.RiskLevel != RiskHigh {
		t.Errorf("expected high, got %s", ev.RiskLevel)
	}
}

func TestDetector_SuicideItemAlwaysTriggers(t *testing.T) {
	d := NewDetector(DefaultContacts())
	for _, v := range []float64{1, 2, 3} {
		values := map[string]float64{QuestionTriage: 10, QuestionSuicideItem: v}
		for _, id := range PHQ9Items[:8] {
			values[id] = 0
		}
		r := numbers(values)

		ev := d.Evaluate(QuestionSuicideItem, r[QuestionSuicideItem], r)
		if !ev.EmergencyDetected || ev.Reason != ReasonSuicidalIdeation {
			t.Errorf("phq9_9=%v: expected suicidal ideation emergency, got %+v", v, ev)
		}
		if res := d.AnalyzePHQ9(r); res.EmergencyProtocol == nil {
			t.Errorf("phq9_9=%v: expected AnalyzePHQ9 to carry a protocol", v)
		}
	}
}

func TestDetector_SuicideItemZero(t *testing.T) {
	d := NewDetector(DefaultContacts())
	r := numbers(map[string]float64{QuestionTriage: 5, QuestionSuicideItem: 0})
	ev := d.Evaluate(QuestionSuicideItem, r[QuestionSuicideItem], r)
	if ev.EmergencyDetected {
		t.Fatal("unexpected emergency")
	}
	if ev.RiskLevel != RiskModerate {
		t.Errorf("expected standing triage level moderate, got %s", ev.RiskLevel)
	}
	if res := d.AnalyzePHQ9(r); res.EmergencyProtocol != nil {
		t.Error("unexpected protocol on AnalyzePHQ9")
	}
}

func TestDetector_MalformedSafetyAnswerFailsClosed(t *testing.T) {
	d := NewDetector(DefaultContacts())
	for _, id := range []string{QuestionTriage, QuestionSuicideItem} {
		r := malformed(Responses{}, id, "prefer not to say")
		ev := d.Evaluate(id, r[id], r)
		if !ev.EmergencyDetected || ev.Reason != ReasonIndeterminate {
			t.Errorf("%s: expected indeterminate emergency, got %+v", id, ev)
		}
	}
}

func TestDetector_NonSafetyQuestionBeforeTriage(t *testing.T) {
	d := NewDetector(DefaultContacts())
	r := numbers(map[string]float64{QuestionPainLevel: 3})
	ev := d.Evaluate(QuestionPainLevel, r[QuestionPainLevel], r)
	if ev.EmergencyDetected || ev.RiskLevel != RiskLow {
		t.Errorf("expected no emergency and low standing level, got %+v", ev)
	}
}

func TestDetector_CustomContacts(t *testing.T) {
	d := NewDetector(Contacts{
		CrisisLineName:  "Lifeline",
		CrisisLinePhone: "988",
		EmergencyName:   "Emergency",
		EmergencyPhone:  "911",
	})
	r := numbers(map[string]float64{QuestionTriage: 1})
	p := d.Evaluate(QuestionTriage, r[QuestionTriage], r).EmergencyProtocol
	if p.ContactInformation[0].Phone != "988" || p.ContactInformation[1].Phone != "911" {
		t.Errorf("unexpected contacts: %+v", p.ContactInformation)
	}
}

func TestEmergencyProtocol_CloneIsIndependent(t *testing.T) {
	d := NewDetector(DefaultContacts())
	r := numbers(map[string]float64{QuestionTriage: 1})
	p := d.Evaluate(QuestionTriage, r[QuestionTriage], r).EmergencyProtocol
	c := p.clone()
	c.ContactInformation[0].Phone = "000"
	c.SafetyPlan[0] = "changed"
	if p.ContactInformation[0].Phone == "000" || p.SafetyPlan[0] == "changed" {
		t.Error("clone shares slices with original")
	}
}
