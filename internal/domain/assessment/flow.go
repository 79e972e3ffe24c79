package assessment

// Stage is a flow controller state. Stages only move forward.
type Stage string

const (
	StageTriage      Stage = "triage"
	StageTargeted    Stage = "targeted"
	StageSpecialized Stage = "specialized"
	StageComplete    Stage = "complete"
)

var stageOrder = []Stage{StageTriage, StageTargeted, StageSpecialized, StageComplete}

func stageIndex(s Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

var (
	phq9FollowUpOrder = []string{"phq9_9", "phq9_3", "phq9_4", "phq9_5", "phq9_6", "phq9_7", "phq9_8"}

	specializedBaseline = []string{
		QuestionPainLevel, "sleep_hours", QuestionSmoker, QuestionCigarettes,
		QuestionOverallMood, "chronic_conditions",
	}
	painFollowUps       = []string{QuestionPainDuration, "pain_interference"}
	depressionFollowUps = []string{"mh_prior_treatment", "mh_current_support"}
	anxietyFollowUps    = []string{"anxiety_panic_attacks"}
	closingQuestions    = []string{"additional_concerns"}
)

// painFollowUpThreshold is the pain_level from which chronic pain follow-up
// questions are asked.
const painFollowUpThreshold = 7

// FlowController selects the next question. It holds only the catalog and
// is safe to share between sessions.
type FlowController struct {
	catalog *Catalog
}

// NewFlowController checks that every question the flow can select exists in
// the catalog.
func NewFlowController(catalog *Catalog) (*FlowController, error) {
	ids := []string{QuestionTriage}
	ids = append(ids, PHQ9Items...)
	ids = append(ids, GAD7Items...)
	for _, group := range [][]string{specializedBaseline, painFollowUps, depressionFollowUps, anxietyFollowUps, closingQuestions} {
		ids = append(ids, group...)
	}
	for _, id := range ids {
		if _, ok := catalog.lookup(id); !ok {
			return nil, &UnknownQuestionError{QuestionID: id}
		}
	}
	return &FlowController{catalog: catalog}, nil
}

// SelectNextQuestion returns the next question to ask, or nil when the
// assessment is complete. Identical arguments always give the same answer.
func (f *FlowController) SelectNextQuestion(responses Responses, analysis Analysis, stage Stage) *Question {
	q, _ := f.next(responses, analysis, stage)
	if q == nil {
		return nil
	}
	return q.clone()
}

// NextStage returns the stage owning the next question, or StageComplete.
func (f *FlowController) NextStage(responses Responses, analysis Analysis, stage Stage) Stage {
	_, s := f.next(responses, analysis, stage)
	return s
}

func (f *FlowController) next(responses Responses, analysis Analysis, stage Stage) (*Question, Stage) {
	for i := stageIndex(stage); i < len(stageOrder)-1; i++ {
		s := stageOrder[i]
		for _, id := range candidates(s, responses, analysis) {
			if responses.Has(id) {
				continue
			}
			return f.catalog.byID[id], s
		}
	}
	return nil, StageComplete
}

// Remaining lists the questions still expected from stage onward, assuming
// an unanswered triage routes into targeted screening.
func (f *FlowController) Remaining(responses Responses, analysis Analysis, stage Stage) []string {
	if !analysis.Triage.Answered {
		analysis.Triage = TriageResult{Answered: true, Level: RiskModerate}
	}
	var out []string
	for i := stageIndex(stage); i < len(stageOrder)-1; i++ {
		for _, id := range candidates(stageOrder[i], responses, analysis) {
			if !responses.Has(id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func candidates(s Stage, responses Responses, analysis Analysis) []string {
	switch s {
	case StageTriage:
		return []string{QuestionTriage}
	case StageTargeted:
		return targetedCandidates(responses, analysis)
	case StageSpecialized:
		return specializedCandidates(analysis)
	}
	return nil
}

// targetedCandidates: PHQ-2 first; a positive PHQ-2 asks the safety item
// before the rest of the PHQ-9; GAD-7 follows.
func targetedCandidates(responses Responses, analysis Analysis) []string {
	if !analysis.Triage.Answered || analysis.Triage.Level == RiskLow {
		return nil
	}
	out := []string{"phq9_1", "phq9_2"}
	if responses.Has("phq9_1") && responses.Has("phq9_2") && analysis.PHQ2Positive() {
		out = append(out, phq9FollowUpOrder...)
	}
	return append(out, GAD7Items...)
}

func specializedCandidates(analysis Analysis) []string {
	out := append([]string(nil), specializedBaseline...)
	if analysis.PainAnswered && analysis.PainLevel >= painFollowUpThreshold {
		out = append(out, painFollowUps...)
	}
	if analysis.PHQ9.Started() && analysis.PHQ9.Severity.AtLeast(SeverityModerate) {
		out = append(out, depressionFollowUps...)
	}
	if analysis.GAD7.Started() && analysis.GAD7.Severity.AtLeast(SeverityModerate) {
		out = append(out, anxietyFollowUps...)
	}
	return append(out, closingQuestions...)
}
