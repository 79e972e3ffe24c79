package assessment

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Script is a scripted assessment run, used to replay a questionnaire
// offline without storage or HTTP:
//
//	user_id: demo
//	acknowledge_as: triage-nurse
//	answers:
//	  - question_id: triage_wellbeing
//	    value: 7
type Script struct {
	UserID string `yaml:"user_id"`
	// AcknowledgeAs acknowledges emergencies under this name so the run can
	// continue. When empty the run stops at the first emergency.
	AcknowledgeAs string   `yaml:"acknowledge_as"`
	Answers       []Answer `yaml:"answers"`
}

// ScriptOutcome is the state reached by a script.
type ScriptOutcome struct {
	Session      Session      `json:"session"`
	NextQuestion *Question    `json:"nextQuestion,omitempty"`
	Emergencies  []string     `json:"emergencies,omitempty"`
	Skipped      []string     `json:"skipped,omitempty"`
	SideEffects  []SideEffect `json:"-"`
	Complete     bool         `json:"complete"`
}

func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if s.UserID == "" {
		s.UserID = "script"
	}
	return &s, nil
}

// RunScript feeds every answer through the engine in order. Answers given
// after the session completes are reported as skipped.
func (e *Engine) RunScript(s *Script) (*ScriptOutcome, error) {
	turn := e.Start(s.UserID)
	out := &ScriptOutcome{}
	collect := func(t TurnResult) {
		out.SideEffects = append(out.SideEffects, t.SideEffects...)
		for _, fx := range t.SideEffects {
			if et, ok := fx.(EmergencyTriggered); ok {
				out.Emergencies = append(out.Emergencies, et.QuestionID+": "+et.Reason)
			}
		}
	}
	collect(turn)

	for _, a := range s.Answers {
		next, err := e.SubmitResponse(turn.Session, a)
		if errors.Is(err, ErrSessionComplete) {
			out.Skipped = append(out.Skipped, a.QuestionID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("answer %s: %w", a.QuestionID, err)
		}
		turn = next
		collect(turn)

		if turn.Session.Emergency.Pending() {
			if s.AcknowledgeAs == "" {
				break
			}
			if turn, err = e.AcknowledgeEmergency(turn.Session, s.AcknowledgeAs); err != nil {
				return nil, fmt.Errorf("acknowledge emergency: %w", err)
			}
			collect(turn)
		}
	}

	out.Session = turn.Session
	out.NextQuestion = turn.NextQuestion
	out.Complete = turn.Complete
	return out, nil
}
