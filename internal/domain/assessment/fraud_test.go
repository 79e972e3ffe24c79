package assessment

import (
	"testing"
	"time"
)

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func TestAnalyzeFraud_Clean(t *testing.T) {
	r := numbers(map[string]float64{QuestionTriage: 7, QuestionOverallMood: 6, QuestionCigarettes: 0})
	r[QuestionSmoker] = Response{QuestionID: QuestionSmoker, Value: BoolValue(false)}

	fa := AnalyzeFraud(r, nil)
	if fa.Score != 0 {
		t.Errorf("expected score 0, got %v", fa.Score)
	}
	if fa.Flags == nil || len(fa.Flags) != 0 {
		t.Errorf("expected empty non-nil flags, got %#v", fa.Flags)
	}
}

func TestAnalyzeFraud_MalformedClinicalValue(t *testing.T) {
	r := malformed(numbers(map[string]float64{QuestionTriage: 5}), "phq9_1", "abc")

	fa := AnalyzeFraud(r, nil)
	if !hasFlag(fa.Flags, FlagMalformed+"phq9_1") {
		t.Errorf("expected malformed flag, got %v", fa.Flags)
	}
	if fa.Score < weightMalformed {
		t.Errorf("expected score >= %v, got %v", weightMalformed, fa.Score)
	}
	if got := ScorePHQ9(r).ItemScores["phq9_1"]; got != 0 {
		t.Errorf("expected malformed item to contribute 0, got %d", got)
	}
}

func TestAnalyzeFraud_SmokingContradiction(t *testing.T) {
	r := numbers(map[string]float64{QuestionCigarettes: 10})
	r[QuestionSmoker] = Response{QuestionID: QuestionSmoker, Value: BoolValue(false)}

	fa := AnalyzeFraud(r, nil)
	if !hasFlag(fa.Flags, FlagSmokingConflict) {
		t.Errorf("expected smoking contradiction, got %v", fa.Flags)
	}
	if fa.Score != weightContradiction {
		t.Errorf("expected score %v, got %v", weightContradiction, fa.Score)
	}
}

func TestAnalyzeFraud_MoodContradiction(t *testing.T) {
	fa := AnalyzeFraud(numbers(map[string]float64{QuestionTriage: 9, QuestionOverallMood: 2}), nil)
	if !hasFlag(fa.Flags, FlagMoodConflict) {
		t.Errorf("expected mood contradiction, got %v", fa.Flags)
	}
	fa = AnalyzeFraud(numbers(map[string]float64{QuestionTriage: 9, QuestionOverallMood: 5}), nil)
	if hasFlag(fa.Flags, FlagMoodConflict) {
		t.Errorf("unexpected mood contradiction for a gap of 4: %v", fa.Flags)
	}
}

func TestAnalyzeFraud_UniformResponses(t *testing.T) {
	values := map[string]float64{}
	for _, id := range GAD7Items {
		values[id] = 2
	}
	fa := AnalyzeFraud(numbers(values), nil)
	if !hasFlag(fa.Flags, FlagUniformResponses) {
		t.Errorf("expected uniform flag, got %v", fa.Flags)
	}

	values["gad7_3"] = 1
	if fa := AnalyzeFraud(numbers(values), nil); hasFlag(fa.Flags, FlagUniformResponses) {
		t.Errorf("unexpected uniform flag: %v", fa.Flags)
	}
}

func TestAnalyzeFraud_Timing(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := numbers(map[string]float64{QuestionTriage: 7, QuestionPainLevel: 1, "sleep_hours": 8, QuestionOverallMood: 7})

	fast := AnalyzeFraud(r, &Timing{StartedAt: start, CompletedAt: start.Add(4 * time.Second)})
	if !hasFlag(fast.Flags, FlagTooFast) {
		t.Errorf("expected too fast flag, got %v", fast.Flags)
	}

	slow := AnalyzeFraud(r, &Timing{StartedAt: start, CompletedAt: start.Add(4 * time.Hour)})
	if !hasFlag(slow.Flags, FlagTooSlow) {
		t.Errorf("expected too slow flag, got %v", slow.Flags)
	}

	normal := AnalyzeFraud(r, &Timing{StartedAt: start, CompletedAt: start.Add(2 * time.Minute)})
	if hasFlag(normal.Flags, FlagTooFast) || hasFlag(normal.Flags, FlagTooSlow) {
		t.Errorf("unexpected timing flags: %v", normal.Flags)
	}
}

func TestAnalyzeFraud_TimingFromTimestamps(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := Responses{}
	for i, id := range []string{QuestionTriage, QuestionPainLevel, "sleep_hours"} {
		r[id] = Response{QuestionID: id, Value: NumberValue(7), Timestamp: start.Add(time.Duration(i) * 500 * time.Millisecond)}
	}
	if fa := AnalyzeFraud(r, nil); !hasFlag(fa.Flags, FlagTooFast) {
		t.Errorf("expected too fast flag from timestamps, got %v", fa.Flags)
	}
}

func TestAnalyzeFraud_ScoreClamped(t *testing.T) {
	r := Responses{}
	for _, id := range PHQ9Items {
		malformed(r, id, "x")
	}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fa := AnalyzeFraud(r, &Timing{StartedAt: start, CompletedAt: start.Add(time.Second)})
	if fa.Score != 1 {
		t.Errorf("expected score clamped to 1, got %v", fa.Score)
	}
	if fa.Score < 0 || fa.Score > 1 {
		t.Errorf("score %v out of range", fa.Score)
	}
}
