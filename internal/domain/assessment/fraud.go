package assessment

import (
	"math"
	"sort"
	"time"
)

// FraudAnalysis is advisory metadata about response quality. It never
// changes risk level and never blocks completion.
type FraudAnalysis struct {
	Score float64  `json:"score"`
	Flags []string `json:"flags"`
}

// Timing is optional caller-supplied completion timing.
type Timing struct {
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

const (
	weightMalformed     = 0.15
	weightContradiction = 0.30
	weightUniform       = 0.15
	weightTooFast       = 0.30
	weightTooSlow       = 0.10

	minSecondsPerAnswer = 2.0
	maxSecondsPerAnswer = 30 * 60.0
	moodGapThreshold    = 5.0
	uniformMinItems     = 7
)

// Flag prefixes.
const (
	FlagMalformed        = "validation:malformed_value:"
	FlagSmokingConflict  = "contradiction:smoking"
	FlagMoodConflict     = "contradiction:mood"
	FlagUniformResponses = "pattern:uniform_responses"
	FlagTooFast          = "timing:too_fast"
	FlagTooSlow          = "timing:too_slow"
)

// AnalyzeFraud scores a response set for inconsistent or low-effort
// answering. timing may be nil, in which case response timestamps are used
// when there are at least two of them.
func AnalyzeFraud(responses Responses, timing *Timing) FraudAnalysis {
	var score float64
	flags := []string{}

	for _, id := range responses.Malformed() {
		score += weightMalformed
		flags = append(flags, FlagMalformed+id)
	}

	if smoker, ok := responses.Bool(QuestionSmoker); ok && !smoker {
		if cigs, ok := responses.Number(QuestionCigarettes); ok && cigs > 0 {
			score += weightContradiction
			flags = append(flags, FlagSmokingConflict)
		}
	}

	if wellbeing, ok := responses.Number(QuestionTriage); ok {
		if mood, ok := responses.Number(QuestionOverallMood); ok && math.Abs(wellbeing-mood) >= moodGapThreshold {
			score += weightContradiction
			flags = append(flags, FlagMoodConflict)
		}
	}

	if uniformInstrumentAnswers(responses) {
		score += weightUniform
		flags = append(flags, FlagUniformResponses)
	}

	if perAnswer, ok := secondsPerAnswer(responses, timing); ok {
		switch {
		case perAnswer < minSecondsPerAnswer:
			score += weightTooFast
			flags = append(flags, FlagTooFast)
		case perAnswer > maxSecondsPerAnswer:
			score += weightTooSlow
			flags = append(flags, FlagTooSlow)
		}
	}

	return FraudAnalysis{Score: clamp(math.Round(score*100)/100, 0, 1), Flags: flags}
}

// uniformInstrumentAnswers detects straight-lining: enough instrument items
// answered and every one of them the same non-zero score.
func uniformInstrumentAnswers(responses Responses) bool {
	var values []int
	for _, items := range [][]string{PHQ9Items, GAD7Items} {
		for _, id := range items {
			resp, ok := responses[id]
			if !ok {
				continue
			}
			n, valid := itemScore(resp)
			if !valid {
				return false
			}
			values = append(values, n)
		}
	}
	if len(values) < uniformMinItems || values[0] == 0 {
		return false
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func secondsPerAnswer(responses Responses, timing *Timing) (float64, bool) {
	n := len(responses)
	if n == 0 {
		return 0, false
	}
	if timing != nil && !timing.StartedAt.IsZero() && timing.CompletedAt.After(timing.StartedAt) {
		return timing.CompletedAt.Sub(timing.StartedAt).Seconds() / float64(n), true
	}

	stamps := make([]time.Time, 0, n)
	for _, r := range responses {
		if !r.Timestamp.IsZero() {
			stamps = append(stamps, r.Timestamp)
		}
	}
	if len(stamps) < 2 {
		return 0, false
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	span := stamps[len(stamps)-1].Sub(stamps[0]).Seconds()
	return span / float64(len(stamps)-1), true
}
