package assessment

import (
	"testing"
	"time"
)

func TestUpdateProgress_NeverDecreases(t *testing.T) {
	s := Session{ID: "s-1", UserID: "u-1", Progress: 40}

	got := UpdateProgress(s, 1, 2, 30, 5)
	if got.Progress != 40 {
		t.Errorf("expected progress to stay at 40, got %v", got.Progress)
	}
	if got.CurrentDomainIndex != 1 || got.CurrentQuestionIndex != 2 {
		t.Errorf("pointer not updated: %d/%d", got.CurrentDomainIndex, got.CurrentQuestionIndex)
	}

	got = UpdateProgress(got, 1, 3, 55, 4)
	if got.Progress != 55 {
		t.Errorf("expected 55, got %v", got.Progress)
	}
	if s.Progress != 40 {
		t.Error("input session was modified")
	}
}

func TestUpdateProgress_Clamped(t *testing.T) {
	got := UpdateProgress(Session{}, 0, 0, 150, -3)
	if got.Progress != 100 {
		t.Errorf("expected 100, got %v", got.Progress)
	}
	if got.EstimatedTimeRemainingMinutes != 0 {
		t.Errorf("expected eta 0, got %d", got.EstimatedTimeRemainingMinutes)
	}
}

func TestEstimateMinutes(t *testing.T) {
	if got := estimateMinutes(3, 0, 0); got != 1 {
		t.Errorf("default pace: expected 1 minute for 3 questions, got %d", got)
	}
	if got := estimateMinutes(4, 2, 2*time.Minute); got != 4 {
		t.Errorf("observed pace: expected 4 minutes, got %d", got)
	}
	if got := estimateMinutes(0, 5, time.Minute); got != 0 {
		t.Errorf("expected 0 when nothing remains, got %d", got)
	}
}

func testSession() Session {
	started := time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)
	r := numbers(map[string]float64{QuestionTriage: 5, "phq9_1": 1})
	r["chronic_conditions"] = Response{QuestionID: "chronic_conditions", Value: ListValue("asthma"), Timestamp: started}
	r["phq9_2"] = Response{QuestionID: "phq9_2", Value: TextValue("often"), Malformed: true}
	return Session{
		ID:                            "sess-1",
		UserID:                        "user-1",
		Responses:                     r,
		Stage:                         StageTargeted,
		CurrentDomain:                 "anxiety",
		CurrentDomainIndex:            2,
		CurrentQuestionIndex:          3,
		CurrentQuestionID:             "gad7_4",
		Progress:                      37.5,
		EstimatedTimeRemainingMinutes: 6,
		StartedAt:                     started,
		LastSavedAt:                   started.Add(3 * time.Minute),
	}
}

func TestSnapshot_RoundTripPreservesPointer(t *testing.T) {
	s := testSession()
	data, err := Serialize(s)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if got.ID != s.ID || got.UserID != s.UserID || got.Stage != s.Stage {
		t.Errorf("identity not preserved: %+v", got)
	}
	if got.CurrentDomainIndex != 2 || got.CurrentQuestionIndex != 3 || got.CurrentQuestionID != "gad7_4" {
		t.Errorf("pointer not preserved: %d/%d %s", got.CurrentDomainIndex, got.CurrentQuestionIndex, got.CurrentQuestionID)
	}
	if got.Progress != 37.5 || got.EstimatedTimeRemainingMinutes != 6 {
		t.Errorf("progress not preserved: %v/%d", got.Progress, got.EstimatedTimeRemainingMinutes)
	}
	if !got.StartedAt.Equal(s.StartedAt) || !got.LastSavedAt.Equal(s.LastSavedAt) {
		t.Errorf("timestamps not preserved")
	}
	if len(got.Responses) != len(s.Responses) {
		t.Fatalf("expected %d responses, got %d", len(s.Responses), len(got.Responses))
	}
	if !got.Responses["phq9_2"].Malformed {
		t.Error("malformed marker lost")
	}
	if l := got.Responses["chronic_conditions"].Value; l.Kind != KindList || l.List[0] != "asthma" {
		t.Errorf("list value lost: %+v", l)
	}
	if n, ok := got.Responses.Number(QuestionTriage); !ok || n != 5 {
		t.Errorf("numeric value lost: %v %v", n, ok)
	}
}

func TestSnapshot_EmergencySurvives(t *testing.T) {
	s := testSession()
	d := NewDetector(DefaultContacts())
	r := numbers(map[string]float64{QuestionTriage: 1})
	ev := d.Evaluate(QuestionTriage, r[QuestionTriage], r)
	s.Emergency = &EmergencyRecord{Protocol: ev.EmergencyProtocol, Reason: ev.Reason, DetectedAt: s.StartedAt}

	data, err := Serialize(s)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !got.Emergency.Pending() {
		t.Fatal("expected pending emergency after restore")
	}
	if !got.Emergency.Protocol.HasContact(ContactCrisisLine) {
		t.Error("protocol contacts lost")
	}
}

func TestDeserialize_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"missing user": `{"responses":{},"metadata":{"sessionId":"s"}}`,
		"bad stage":    `{"responses":{},"metadata":{"userId":"u","stage":"emergency"}}`,
	}
	for name, doc := range cases {
		if _, err := Deserialize([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := testSession()
	c := s.Clone()
	c.Responses["new"] = Response{QuestionID: "new"}
	v := c.Responses["chronic_conditions"]
	v.Value.List[0] = "changed"
	if _, ok := s.Responses["new"]; ok {
		t.Error("clone shares response map")
	}
	if s.Responses["chronic_conditions"].Value.List[0] != "asthma" {
		t.Error("clone shares list values")
	}
}
