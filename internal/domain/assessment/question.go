package assessment

// QuestionType is the declared answer type of a question. It decides how a
// raw answer is coerced into a Value at the ingestion boundary.
type QuestionType string

const (
	TypeBoolean        QuestionType = "boolean"
	TypeNumber         QuestionType = "number"
	TypeSelect         QuestionType = "select"
	TypeMultiSelect    QuestionType = "multiselect"
	TypeScale          QuestionType = "scale"
	TypeText           QuestionType = "text"
	TypeClinicalSelect QuestionType = "clinical_select"
	TypeEmergencyScale QuestionType = "emergency_scale"
)

var validQuestionTypes = map[QuestionType]bool{
	TypeBoolean: true, TypeNumber: true, TypeSelect: true, TypeMultiSelect: true,
	TypeScale: true, TypeText: true, TypeClinicalSelect: true, TypeEmergencyScale: true,
}

// Instrument names used in Question.ClinicalInstrument.
const (
	InstrumentPHQ9   = "PHQ-9"
	InstrumentGAD7   = "GAD-7"
	InstrumentTriage = "TRIAGE"
)

// Option is a selectable answer. For clinical_select questions Value is the
// item score (0..3).
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
	Score *int   `yaml:"score,omitempty" json:"score,omitempty"`
}

// Question is one catalog entry. Questions are never mutated after the
// catalog is loaded.
type Question struct {
	ID                 string       `yaml:"id" json:"id"`
	Text               string       `yaml:"text" json:"text"`
	Type               QuestionType `yaml:"type" json:"type"`
	Domain             string       `yaml:"domain" json:"domain"`
	Required           bool         `yaml:"required" json:"required"`
	ClinicalInstrument string       `yaml:"clinical_instrument,omitempty" json:"clinicalInstrument,omitempty"`
	EvidenceLevel      string       `yaml:"evidence_level,omitempty" json:"evidenceLevel,omitempty"`
	CriticalForSafety  bool         `yaml:"critical_for_safety,omitempty" json:"criticalForSafety,omitempty"`
	Options            []Option     `yaml:"options,omitempty" json:"options,omitempty"`
	Min                *float64     `yaml:"min,omitempty" json:"min,omitempty"`
	Max                *float64     `yaml:"max,omitempty" json:"max,omitempty"`
}

// IsClinical reports whether the question is an item of a scored instrument.
func (q *Question) IsClinical() bool {
	return q.ClinicalInstrument != ""
}

// HasOption reports whether v is one of the question's option values.
func (q *Question) HasOption(v string) bool {
	for _, o := range q.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func (q *Question) inRange(n float64) bool {
	if q.Min != nil && n < *q.Min {
		return false
	}
	if q.Max != nil && n > *q.Max {
		return false
	}
	return true
}

func (q *Question) clone() *Question {
	c := *q
	if q.Options != nil {
		c.Options = make([]Option, len(q.Options))
		copy(c.Options, q.Options)
	}
	return &c
}
