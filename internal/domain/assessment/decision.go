package assessment

import (
	"math"
	"sort"
)

// Intervention windows, in minutes.
const (
	interveneNow       = 0
	interveneDay       = 24 * 60
	interveneThreeDays = 3 * interveneDay
	interveneWeek      = 7 * interveneDay
	interveneMonth     = 30 * interveneDay
)

var interventionBySeverity = map[Severity]int{
	SeverityCritical:         interveneNow,
	SeveritySevere:           interveneDay,
	SeverityModeratelySevere: interveneThreeDays,
	SeverityModerate:         interveneWeek,
	SeverityMild:             interveneMonth,
	SeverityMinimal:          interveneMonth,
}

var interventionByRisk = map[RiskLevel]int{
	RiskCritical: interveneNow,
	RiskHigh:     interveneDay,
	RiskModerate: interveneWeek,
	RiskLow:      interveneMonth,
}

// ClinicalDecision is one screening conclusion with its ICD-10 code.
type ClinicalDecision struct {
	Condition          string   `json:"condition"`
	ICD10Code          string   `json:"icd10Code"`
	Severity           Severity `json:"severity"`
	ConfidenceLevel    int      `json:"confidenceLevel"`
	RecommendedActions []string `json:"recommendedActions"`
	TimeToIntervention int      `json:"timeToIntervention"`
}

// AnalyzeComprehensive merges every instrument into a decision list, most
// severe first, then most urgent, then by condition name.
func AnalyzeComprehensive(responses Responses) []ClinicalDecision {
	out := []ClinicalDecision{}

	if d, ok := suicideDecision(responses); ok {
		out = append(out, d)
	}
	if d, ok := depressionDecision(ScorePHQ9(responses)); ok {
		out = append(out, d)
	}
	if d, ok := anxietyDecision(AnalyzeGAD7(responses)); ok {
		out = append(out, d)
	}
	if d, ok := distressDecision(AnalyzeTriage(responses)); ok {
		out = append(out, d)
	}
	if d, ok := painDecision(responses); ok {
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri > rj
		}
		if out[i].TimeToIntervention != out[j].TimeToIntervention {
			return out[i].TimeToIntervention < out[j].TimeToIntervention
		}
		return out[i].Condition < out[j].Condition
	})
	return out
}

func suicideDecision(responses Responses) (ClinicalDecision, bool) {
	resp, ok := responses[QuestionSuicideItem]
	if !ok || !SuicideItemPositive(responses) {
		return ClinicalDecision{}, false
	}
	confidence := 95
	if _, valid := itemScore(resp); !valid {
		confidence = 70
	}
	return ClinicalDecision{
		Condition:       "Suicidal ideation",
		ICD10Code:       "R45.851",
		Severity:        SeverityCritical,
		ConfidenceLevel: confidence,
		RecommendedActions: []string{
			"Immediate safety assessment by a mental health professional",
			"Share crisis line contacts and a written safety plan",
			"Follow up within 24 hours",
		},
		TimeToIntervention: interveneNow,
	}, true
}

func depressionDecision(s InstrumentScore) (ClinicalDecision, bool) {
	if !s.Started() || !s.Severity.AtLeast(SeverityMild) {
		return ClinicalDecision{}, false
	}
	d := ClinicalDecision{
		Condition:          "Major depressive disorder, single episode",
		Severity:           s.Severity,
		ConfidenceLevel:    instrumentConfidence(s),
		TimeToIntervention: interventionBySeverity[s.Severity],
	}
	switch s.Severity {
	case SeverityMild:
		d.ICD10Code = "F32.0"
		d.RecommendedActions = []string{
			"Watchful waiting with a repeat PHQ-9 at follow-up",
			"Offer psychoeducation and self-care resources",
		}
	case SeverityModerate:
		d.ICD10Code = "F32.1"
		d.RecommendedActions = []string{
			"Primary care visit to agree a treatment plan",
			"Consider counseling or psychotherapy",
		}
	default:
		d.ICD10Code = "F32.2"
		d.RecommendedActions = []string{
			"Refer to psychiatry",
			"Consider antidepressant treatment combined with psychotherapy",
		}
	}
	return d, true
}

func anxietyDecision(s InstrumentScore) (ClinicalDecision, bool) {
	if !s.Started() || !s.Severity.AtLeast(SeverityMild) {
		return ClinicalDecision{}, false
	}
	d := ClinicalDecision{
		Severity:           s.Severity,
		ConfidenceLevel:    instrumentConfidence(s),
		TimeToIntervention: interventionBySeverity[s.Severity],
	}
	if s.Severity == SeverityMild {
		d.Condition = "Anxiety disorder, unspecified"
		d.ICD10Code = "F41.9"
		d.RecommendedActions = []string{
			"Offer anxiety self-management resources",
			"Repeat GAD-7 at follow-up",
		}
		return d, true
	}
	d.Condition = "Generalized anxiety disorder"
	d.ICD10Code = "F41.1"
	d.RecommendedActions = []string{
		"Refer for cognitive behavioral therapy",
		"Primary care review of treatment options",
	}
	return d, true
}

func distressDecision(t TriageResult) (ClinicalDecision, bool) {
	if !t.Answered || !t.Level.AtLeast(RiskHigh) {
		return ClinicalDecision{}, false
	}
	sev := SeveritySevere
	if t.Level == RiskCritical {
		sev = SeverityCritical
	}
	confidence := 70
	if t.Malformed {
		confidence = 40
	}
	return ClinicalDecision{
		Condition:       "Acute emotional distress",
		ICD10Code:       "R45.89",
		Severity:        sev,
		ConfidenceLevel: confidence,
		RecommendedActions: []string{
			"Care team outreach to check on wellbeing",
		},
		TimeToIntervention: interventionBySeverity[sev],
	}, true
}

func painDecision(responses Responses) (ClinicalDecision, bool) {
	level, ok := responses.Number(QuestionPainLevel)
	if !ok || level < 4 {
		return ClinicalDecision{}, false
	}
	duration, hasDuration := responses.Text(QuestionPainDuration)
	chronic := duration == "3_to_6_months" || duration == "more_than_6_months"

	sev := SeverityMild
	switch {
	case level >= 9:
		sev = SeveritySevere
	case level >= 7:
		sev = SeverityModerate
	}
	confidence := 60
	if hasDuration {
		confidence = 75
	}

	if chronic && level >= 7 {
		return ClinicalDecision{
			Condition:       "Chronic pain",
			ICD10Code:       "G89.29",
			Severity:        sev,
			ConfidenceLevel: confidence,
			RecommendedActions: []string{
				"Refer to a pain management program",
				"Assess functional impact and current analgesic use",
			},
			TimeToIntervention: interventionBySeverity[sev],
		}, true
	}
	return ClinicalDecision{
		Condition:       "Pain, unspecified",
		ICD10Code:       "R52",
		Severity:        sev,
		ConfidenceLevel: confidence,
		RecommendedActions: []string{
			"Primary care evaluation of pain",
		},
		TimeToIntervention: interventionBySeverity[sev],
	}, true
}

// instrumentConfidence scales with how much of the instrument was answered
// and drops for every item that could not be scored.
func instrumentConfidence(s InstrumentScore) int {
	items := len(s.ItemScores)
	if items == 0 {
		return 0
	}
	valid := s.AnsweredItems - len(s.MalformedItems)
	c := 50 + 40*valid/items
	c -= 10 * len(s.MalformedItems)
	if c < 10 {
		c = 10
	}
	return c
}

// RiskStratification is the overall risk band of a response set.
// EscalationRequired is always true when Level is critical.
type RiskStratification struct {
	Level              RiskLevel `json:"level"`
	ConfidenceScore    int       `json:"confidenceScore"`
	PrimaryConcerns    []string  `json:"primaryConcerns"`
	TimeToIntervention int       `json:"timeToIntervention"`
	EscalationRequired bool      `json:"escalationRequired"`
}

// Stratify derives the overall risk band from the response set and its
// clinical decisions.
func Stratify(responses Responses, decisions []ClinicalDecision) RiskStratification {
	level := RiskLow

	triage := AnalyzeTriage(responses)
	if triage.Answered {
		level = maxRisk(level, triage.Level)
	}
	if SuicideItemPositive(responses) {
		level = RiskCritical
	}

	phq := ScorePHQ9(responses)
	gad := AnalyzeGAD7(responses)
	switch {
	case phq.Severity.AtLeast(SeverityModeratelySevere), gad.Severity.AtLeast(SeveritySevere):
		level = maxRisk(level, RiskHigh)
	case phq.Severity.AtLeast(SeverityModerate), gad.Severity.AtLeast(SeverityModerate):
		level = maxRisk(level, RiskModerate)
	}
	if pain, ok := responses.Number(QuestionPainLevel); ok && pain >= 7 {
		level = maxRisk(level, RiskModerate)
	}

	concerns := make([]string, 0, len(decisions))
	for _, d := range decisions {
		concerns = append(concerns, d.Condition)
	}

	return RiskStratification{
		Level:              level,
		ConfidenceScore:    stratificationConfidence(triage, decisions),
		PrimaryConcerns:    concerns,
		TimeToIntervention: interventionByRisk[level],
		EscalationRequired: level.AtLeast(RiskHigh),
	}
}

func stratificationConfidence(triage TriageResult, decisions []ClinicalDecision) int {
	if len(decisions) == 0 {
		if triage.Answered && !triage.Malformed {
			return 80
		}
		return 50
	}
	return int(math.Round(meanConfidence(decisions)))
}

func meanConfidence(decisions []ClinicalDecision) float64 {
	if len(decisions) == 0 {
		return 0
	}
	sum := 0
	for _, d := range decisions {
		sum += d.ConfidenceLevel
	}
	return float64(sum) / float64(len(decisions))
}

// RiskScores maps each assessed domain to a 0..100 score.
func RiskScores(responses Responses) map[string]float64 {
	scores := make(map[string]float64)

	triage := AnalyzeTriage(responses)
	if triage.Answered {
		if triage.Malformed {
			scores["triage"] = 100
		} else {
			scores["triage"] = round1(clamp((10-triage.Wellbeing)/9*100, 0, 100))
		}
	}
	if phq := ScorePHQ9(responses); phq.Started() {
		scores["mental_health"] = round1(float64(phq.Total) / float64(phq.MaxTotal) * 100)
	}
	if gad := AnalyzeGAD7(responses); gad.Started() {
		scores["anxiety"] = round1(float64(gad.Total) / float64(gad.MaxTotal) * 100)
	}
	if pain, ok := responses.Number(QuestionPainLevel); ok {
		scores["pain"] = round1(clamp(pain*10, 0, 100))
	}
	if s, ok := lifestyleScore(responses); ok {
		scores["lifestyle"] = s
	}
	return scores
}

func lifestyleScore(responses Responses) (float64, bool) {
	answered := false
	score := 0.0
	if smoker, ok := responses.Bool(QuestionSmoker); ok {
		answered = true
		if smoker {
			score += 40
		}
	}
	if cigs, ok := responses.Number(QuestionCigarettes); ok {
		answered = true
		if cigs > 10 {
			score += 30
		}
	}
	if sleep, ok := responses.Number("sleep_hours"); ok {
		answered = true
		if sleep < 6 || sleep > 10 {
			score += 30
		}
	}
	return clamp(score, 0, 100), answered
}

// TotalRiskScore is the mean of the domain scores.
func TotalRiskScore(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return round1(sum / float64(len(scores)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
