package assessment

import (
	"sort"
)

// Severity labels shared by instrument scores and clinical decisions.
type Severity string

const (
	SeverityNone             Severity = "none"
	SeverityMinimal          Severity = "minimal"
	SeverityMild             Severity = "mild"
	SeverityModerate         Severity = "moderate"
	SeverityModeratelySevere Severity = "moderately_severe"
	SeveritySevere           Severity = "severe"
	SeverityCritical         Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone: 0, SeverityMinimal: 1, SeverityMild: 2, SeverityModerate: 3,
	SeverityModeratelySevere: 4, SeveritySevere: 5, SeverityCritical: 6,
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// RiskLevel is the ordered risk band used for stratification and triage.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{RiskLow: 0, RiskModerate: 1, RiskHigh: 2, RiskCritical: 3}

// AtLeast reports whether r is as high as other or higher.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

func maxRisk(a, b RiskLevel) RiskLevel {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}

// Item ids of the scored instruments, in administration order.
var (
	PHQ9Items = []string{"phq9_1", "phq9_2", "phq9_3", "phq9_4", "phq9_5", "phq9_6", "phq9_7", "phq9_8", "phq9_9"}
	GAD7Items = []string{"gad7_1", "gad7_2", "gad7_3", "gad7_4", "gad7_5", "gad7_6", "gad7_7"}
)

const (
	QuestionTriage       = "triage_wellbeing"
	QuestionSuicideItem  = "phq9_9"
	QuestionPainLevel    = "pain_level"
	QuestionPainDuration = "pain_duration"
	QuestionSmoker       = "smoker"
	QuestionCigarettes   = "cigarettes_per_day"
	QuestionOverallMood  = "overall_mood"
)

type band struct {
	upTo     int
	severity Severity
}

// Published PHQ-9 cutoffs (Kroenke, Spitzer & Williams 2001).
var phq9Bands = []band{
	{4, SeverityMinimal},
	{9, SeverityMild},
	{14, SeverityModerate},
	{19, SeverityModeratelySevere},
	{27, SeveritySevere},
}

// Published GAD-7 cutoffs (Spitzer et al. 2006). There is no
// moderately-severe band.
var gad7Bands = []band{
	{4, SeverityMinimal},
	{9, SeverityMild},
	{14, SeverityModerate},
	{21, SeveritySevere},
}

func classify(total int, bands []band) Severity {
	for _, b := range bands {
		if total <= b.upTo {
			return b.severity
		}
	}
	return bands[len(bands)-1].severity
}

// PHQ9Severity maps a PHQ-9 total onto its severity band.
func PHQ9Severity(total int) Severity { return classify(total, phq9Bands) }

// GAD7Severity maps a GAD-7 total onto its severity band.
func GAD7Severity(total int) Severity { return classify(total, gad7Bands) }

// Responses is the per-session answer set keyed by question id.
type Responses map[string]Response

// Has reports whether id has been answered.
func (r Responses) Has(id string) bool {
	_, ok := r[id]
	return ok
}

// Number returns the numeric value of a well-formed answer.
func (r Responses) Number(id string) (float64, bool) {
	resp, ok := r[id]
	if !ok || resp.Malformed || resp.Value.Kind != KindNumber {
		return 0, false
	}
	return resp.Value.Number, true
}

// Bool returns the boolean value of a well-formed answer.
func (r Responses) Bool(id string) (bool, bool) {
	resp, ok := r[id]
	if !ok || resp.Malformed || resp.Value.Kind != KindBoolean {
		return false, false
	}
	return resp.Value.Bool, true
}

// Text returns the string value of a well-formed answer.
func (r Responses) Text(id string) (string, bool) {
	resp, ok := r[id]
	if !ok || resp.Malformed || resp.Value.Kind != KindString {
		return "", false
	}
	return resp.Value.Text, true
}

// Malformed returns the sorted ids of answers that failed type coercion.
func (r Responses) Malformed() []string {
	var out []string
	for id, resp := range r {
		if resp.Malformed {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (r Responses) clone() Responses {
	out := make(Responses, len(r))
	for k, v := range r {
		if v.Value.List != nil {
			v.Value.List = append([]string(nil), v.Value.List...)
		}
		out[k] = v
	}
	return out
}

// InstrumentScore is the aggregate of one scored instrument.
// Total always equals the sum of ItemScores.
type InstrumentScore struct {
	Instrument     string          `json:"instrument"`
	ItemScores     map[string]int  `json:"itemScores"`
	Total          int             `json:"total"`
	MaxTotal       int             `json:"maxTotal"`
	Severity       Severity        `json:"severity"`
	AnsweredItems  int             `json:"answeredItems"`
	MissingItems   []string        `json:"missingItems,omitempty"`
	MalformedItems []string        `json:"malformedItems,omitempty"`
	ScoringErrors  []*ScoringError `json:"-"`
}

// Complete reports whether every item of the instrument was answered.
func (s InstrumentScore) Complete() bool {
	return len(s.MissingItems) == 0
}

// Started reports whether at least one item was answered.
func (s InstrumentScore) Started() bool {
	return s.AnsweredItems > 0
}

func scoreInstrument(instrument string, items []string, bands []band, responses Responses) InstrumentScore {
	score := InstrumentScore{
		Instrument: instrument,
		ItemScores: make(map[string]int, len(items)),
		MaxTotal:   3 * len(items),
	}
	for _, id := range items {
		resp, ok := responses[id]
		if !ok {
			score.MissingItems = append(score.MissingItems, id)
			score.ItemScores[id] = 0
			continue
		}
		score.AnsweredItems++
		n, valid := itemScore(resp)
		if !valid {
			score.MalformedItems = append(score.MalformedItems, id)
			score.ScoringErrors = append(score.ScoringErrors, &ScoringError{
				QuestionID: id, Instrument: instrument, Raw: resp.Value.String(),
			})
		}
		score.ItemScores[id] = n
		score.Total += n
	}
	score.Severity = classify(score.Total, bands)
	return score
}

// itemScore returns the 0..3 score of an instrument item. Anything else
// scores 0 and is reported invalid.
func itemScore(resp Response) (int, bool) {
	if resp.Malformed || resp.Value.Kind != KindNumber {
		return 0, false
	}
	n := resp.Value.Number
	if n < 0 || n > 3 || n != float64(int(n)) {
		return 0, false
	}
	return int(n), true
}

// ScorePHQ9 sums and classifies the PHQ-9 items present in responses.
func ScorePHQ9(responses Responses) InstrumentScore {
	return scoreInstrument(InstrumentPHQ9, PHQ9Items, phq9Bands, responses)
}

// AnalyzeGAD7 sums and classifies the GAD-7 items present in responses.
func AnalyzeGAD7(responses Responses) InstrumentScore {
	return scoreInstrument(InstrumentGAD7, GAD7Items, gad7Bands, responses)
}

// TriageResult is the outcome of the single triage question.
type TriageResult struct {
	Answered  bool      `json:"answered"`
	Malformed bool      `json:"malformed,omitempty"`
	Wellbeing float64   `json:"wellbeing"`
	Level     RiskLevel `json:"level"`
}

// TriageLevel maps a 1..10 wellbeing answer onto a risk band.
func TriageLevel(wellbeing float64) RiskLevel {
	switch {
	case wellbeing <= 1:
		return RiskCritical
	case wellbeing <= 3:
		return RiskHigh
	case wellbeing <= 6:
		return RiskModerate
	default:
		return RiskLow
	}
}

// AnalyzeTriage classifies the triage answer. A missing or malformed answer
// is critical: severity that cannot be determined is never low.
func AnalyzeTriage(responses Responses) TriageResult {
	if !responses.Has(QuestionTriage) {
		return TriageResult{Level: RiskCritical}
	}
	n, valid := responses.Number(QuestionTriage)
	if !valid {
		return TriageResult{Answered: true, Malformed: true, Level: RiskCritical}
	}
	return TriageResult{Answered: true, Wellbeing: n, Level: TriageLevel(n)}
}

// SuicideItemPositive reports whether PHQ-9 item 9 requires the emergency
// protocol: any value above zero, or a value that cannot be read.
func SuicideItemPositive(responses Responses) bool {
	resp, ok := responses[QuestionSuicideItem]
	if !ok {
		return false
	}
	n, valid := itemScore(resp)
	return !valid || n > 0
}

// Analysis is everything the flow controller needs to know about the current
// response set. It is derived, never stored.
type Analysis struct {
	Triage        TriageResult    `json:"triage"`
	PHQ9          InstrumentScore `json:"phq9"`
	GAD7          InstrumentScore `json:"gad7"`
	PainLevel     float64         `json:"painLevel"`
	PainAnswered  bool            `json:"painAnswered"`
	SafetyConcern bool            `json:"safetyConcern"`
	Malformed     []string        `json:"malformed,omitempty"`
}

// Analyze derives the Analysis for a response set. It is pure.
func Analyze(responses Responses) Analysis {
	a := Analysis{
		Triage:    AnalyzeTriage(responses),
		PHQ9:      ScorePHQ9(responses),
		GAD7:      AnalyzeGAD7(responses),
		Malformed: responses.Malformed(),
	}
	a.PainLevel, a.PainAnswered = responses.Number(QuestionPainLevel)
	a.SafetyConcern = SuicideItemPositive(responses) ||
		(a.Triage.Answered && a.Triage.Level == RiskCritical)
	return a
}

// PHQ2Positive reports whether either of the first two PHQ items is 2 or more.
func (a Analysis) PHQ2Positive() bool {
	return a.PHQ9.ItemScores["phq9_1"] >= 2 || a.PHQ9.ItemScores["phq9_2"] >= 2
}
