package assessment

import (
	"testing"
)

func newTestFlow(t *testing.T) *FlowController {
	t.Helper()
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	f, err := NewFlowController(cat)
	if err != nil {
		t.Fatalf("new flow controller: %v", err)
	}
	return f
}

func nextID(f *FlowController, r Responses, stage Stage) string {
	q := f.SelectNextQuestion(r, Analyze(r), stage)
	if q == nil {
		return ""
	}
	return q.ID
}

func TestFlow_StartsWithTriage(t *testing.T) {
	f := newTestFlow(t)
	if got := nextID(f, Responses{}, StageTriage); got != QuestionTriage {
		t.Errorf("expected %s, got %s", QuestionTriage, got)
	}
}

func TestFlow_NonLowTriageEntersTargeted(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 5})
	if got := nextID(f, r, StageTriage); got != "phq9_1" {
		t.Errorf("expected phq9_1, got %s", got)
	}
	if got := f.NextStage(r, Analyze(r), StageTriage); got != StageTargeted {
		t.Errorf("expected targeted stage, got %s", got)
	}
}

func TestFlow_LowTriageSkipsTargeted(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 8})
	if got := nextID(f, r, StageTriage); got != QuestionPainLevel {
		t.Errorf("expected %s, got %s", QuestionPainLevel, got)
	}
	if got := f.NextStage(r, Analyze(r), StageTriage); got != StageSpecialized {
		t.Errorf("expected specialized stage, got %s", got)
	}
}

func TestFlow_PositivePHQ2AsksSafetyItemNext(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 5, "phq9_1": 2, "phq9_2": 0})
	if got := nextID(f, r, StageTargeted); got != QuestionSuicideItem {
		t.Errorf("expected %s, got %s", QuestionSuicideItem, got)
	}

	r["phq9_9"] = Response{QuestionID: "phq9_9", Value: NumberValue(0)}
	if got := nextID(f, r, StageTargeted); got != "phq9_3" {
		t.Errorf("expected phq9_3 after the safety item, got %s", got)
	}
}

func TestFlow_NegativePHQ2SkipsToGAD7(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 5, "phq9_1": 0, "phq9_2": 0})
	if got := nextID(f, r, StageTargeted); got != "gad7_1" {
		t.Errorf("expected gad7_1, got %s", got)
	}
}

func TestFlow_PHQ2NeedsBothItems(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 5, "phq9_1": 3})
	if got := nextID(f, r, StageTargeted); got != "phq9_2" {
		t.Errorf("expected phq9_2, got %s", got)
	}
}

func TestFlow_StageNeverMovesBackwards(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 5})
	if got := nextID(f, r, StageSpecialized); got != QuestionPainLevel {
		t.Errorf("expected specialized question, got %s", got)
	}
}

func TestFlow_ChronicPainFollowUp(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{
		QuestionTriage:      8,
		QuestionPainLevel:   8,
		"sleep_hours":       7,
		QuestionCigarettes:  0,
		QuestionOverallMood: 8,
	})
	r[QuestionSmoker] = Response{QuestionID: QuestionSmoker, Value: BoolValue(false)}
	r["chronic_conditions"] = Response{QuestionID: "chronic_conditions", Value: ListValue("none")}

	if got := nextID(f, r, StageSpecialized); got != QuestionPainDuration {
		t.Errorf("expected %s, got %s", QuestionPainDuration, got)
	}

	r[QuestionPainLevel] = Response{QuestionID: QuestionPainLevel, Value: NumberValue(3)}
	if got := nextID(f, r, StageSpecialized); got != "additional_concerns" {
		t.Errorf("expected additional_concerns without pain follow-up, got %s", got)
	}
}

func TestFlow_DepressionFollowUp(t *testing.T) {
	f := newTestFlow(t)
	values := map[string]float64{
		QuestionTriage:      4,
		QuestionPainLevel:   0,
		"sleep_hours":       7,
		QuestionCigarettes:  0,
		QuestionOverallMood: 4,
	}
	for _, id := range PHQ9Items {
		values[id] = 2
	}
	values[QuestionSuicideItem] = 0
	for _, id := range GAD7Items {
		values[id] = 0
	}
	r := numbers(values)
	r[QuestionSmoker] = Response{QuestionID: QuestionSmoker, Value: BoolValue(false)}
	r["chronic_conditions"] = Response{QuestionID: "chronic_conditions", Value: ListValue("none")}

	if got := nextID(f, r, StageSpecialized); got != "mh_prior_treatment" {
		t.Errorf("expected mh_prior_treatment, got %s", got)
	}
}

func TestFlow_NilOnlyWhenExhausted(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{
		QuestionTriage:      9,
		QuestionPainLevel:   1,
		"sleep_hours":       8,
		QuestionCigarettes:  0,
		QuestionOverallMood: 9,
	})
	r[QuestionSmoker] = Response{QuestionID: QuestionSmoker, Value: BoolValue(false)}
	r["chronic_conditions"] = Response{QuestionID: "chronic_conditions", Value: ListValue("none")}
	if got := nextID(f, r, StageSpecialized); got != "additional_concerns" {
		t.Fatalf("expected additional_concerns, got %s", got)
	}

	r["additional_concerns"] = Response{QuestionID: "additional_concerns", Value: TextValue("")}
	if q := f.SelectNextQuestion(r, Analyze(r), StageSpecialized); q != nil {
		t.Errorf("expected nil, got %s", q.ID)
	}
	if got := f.NextStage(r, Analyze(r), StageSpecialized); got != StageComplete {
		t.Errorf("expected complete, got %s", got)
	}
}

func TestFlow_Deterministic(t *testing.T) {
	f := newTestFlow(t)
	r := numbers(map[string]float64{QuestionTriage: 3, "phq9_1": 1, "phq9_2": 2})
	a := Analyze(r)
	first := f.SelectNextQuestion(r, a, StageTargeted)
	for i := 0; i < 5; i++ {
		if got := f.SelectNextQuestion(r, a, StageTargeted); got.ID != first.ID {
			t.Fatalf("call %d returned %s, first returned %s", i, got.ID, first.ID)
		}
	}
	if len(r) != 3 {
		t.Errorf("selection mutated responses: %v", r)
	}
}

func TestFlow_Remaining(t *testing.T) {
	f := newTestFlow(t)
	rem := f.Remaining(Responses{}, Analyze(Responses{}), StageTriage)
	if len(rem) == 0 || rem[0] != QuestionTriage {
		t.Fatalf("expected triage first, got %v", rem)
	}
	// Unanswered triage assumes targeted screening.
	found := false
	for _, id := range rem {
		if id == "phq9_1" {
			found = true
		}
	}
	if !found {
		t.Error("expected phq9_1 in planned path")
	}
}

func TestNewFlowController_MissingQuestion(t *testing.T) {
	cat, err := ParseCatalog([]byte(`
version: "test"
domains: [triage]
questions:
  - id: triage_wellbeing
    text: "How are you?"
    type: emergency_scale
    domain: triage
    required: true
`))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	if _, err := NewFlowController(cat); err == nil {
		t.Error("expected error for catalog without flow questions")
	}
}
