package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags which field of a Value is populated.
type ValueKind string

const (
	KindBoolean ValueKind = "boolean"
	KindNumber  ValueKind = "number"
	KindString  ValueKind = "string"
	KindList    ValueKind = "list"
)

// Value is an answer after it passed the ingestion boundary. Exactly one of
// Bool, Number, Text or List is meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Text   string
	List   []string
}

func BoolValue(b bool) Value      { return Value{Kind: KindBoolean, Bool: b} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func TextValue(s string) Value    { return Value{Kind: KindString, Text: s} }
func ListValue(l ...string) Value { return Value{Kind: KindList, List: append([]string(nil), l...)} }

// String renders the value for flags and logs.
func (v Value) String() string {
	switch v.Kind {
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindList:
		return strings.Join(v.List, ",")
	default:
		return v.Text
	}
}

// IsEmpty reports whether the value carries no answer.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindString:
		return strings.TrimSpace(v.Text) == ""
	case KindList:
		return len(v.List) == 0
	case "":
		return true
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindString:
		return json.Marshal(v.Text)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := valueFromRaw(raw)
	if !ok {
		return fmt.Errorf("unsupported answer value: %s", string(data))
	}
	*v = parsed
	return nil
}

// valueFromRaw maps a decoded JSON/YAML scalar onto a Value without any
// knowledge of the question type.
func valueFromRaw(raw interface{}) (Value, bool) {
	switch t := raw.(type) {
	case nil:
		return Value{}, true
	case bool:
		return BoolValue(t), true
	case float64:
		return NumberValue(t), true
	case float32:
		return NumberValue(float64(t)), true
	case int:
		return NumberValue(float64(t)), true
	case int64:
		return NumberValue(float64(t)), true
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return TextValue(t.String()), true
		}
		return NumberValue(n), true
	case string:
		return TextValue(t), true
	case []string:
		return ListValue(t...), true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return ListValue(out...), true
	case Value:
		return t, true
	}
	return Value{}, false
}

// Response is one answer held by a session. Malformed is set when the value
// did not match the question's declared type; it is kept rather than dropped.
type Response struct {
	QuestionID string    `json:"questionId"`
	Value      Value     `json:"value"`
	Malformed  bool      `json:"malformed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Answer is the raw ingestion payload before normalization.
type Answer struct {
	QuestionID string      `json:"questionId" yaml:"question_id"`
	Value      interface{} `json:"value" yaml:"value"`
	Timestamp  time.Time   `json:"timestamp" yaml:"timestamp"`
}

// Normalize converts a raw answer into a typed Response for q. Values that
// cannot be coerced are retained with Malformed set. The only error is a
// ValidationError for an empty answer to a required question.
func Normalize(q *Question, a Answer) (Response, error) {
	base, ok := valueFromRaw(a.Value)
	if !ok {
		base = TextValue(fmt.Sprint(a.Value))
	}
	resp := Response{QuestionID: q.ID, Timestamp: a.Timestamp}

	if base.IsEmpty() {
		if q.CriticalForSafety {
			resp.Value = TextValue("")
			resp.Malformed = true
			return resp, nil
		}
		if q.Required {
			return resp, &ValidationError{QuestionID: q.ID, Reason: "answer is required"}
		}
		resp.Value = TextValue("")
		return resp, nil
	}

	v, good := coerce(q, base)
	resp.Value = v
	resp.Malformed = !good
	return resp, nil
}

func coerce(q *Question, v Value) (Value, bool) {
	switch q.Type {
	case TypeBoolean:
		return coerceBool(v)
	case TypeNumber, TypeScale, TypeEmergencyScale:
		n, ok := numeric(v)
		if !ok || !q.inRange(n) {
			return v, false
		}
		return NumberValue(n), true
	case TypeClinicalSelect:
		return coerceClinical(q, v)
	case TypeSelect:
		s := v.String()
		if v.Kind == KindList || !q.HasOption(s) {
			return v, false
		}
		return TextValue(s), true
	case TypeMultiSelect:
		items := v.List
		if v.Kind != KindList {
			items = []string{v.String()}
		}
		for _, item := range items {
			if !q.HasOption(item) {
				return v, false
			}
		}
		return ListValue(items...), true
	case TypeText:
		return TextValue(v.String()), true
	}
	return v, false
}

func coerceBool(v Value) (Value, bool) {
	switch v.Kind {
	case KindBoolean:
		return v, true
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.Text)) {
		case "true", "yes", "sim":
			return BoolValue(true), true
		case "false", "no", "nao", "não":
			return BoolValue(false), true
		}
	}
	return v, false
}

// coerceClinical accepts either the item score itself or an option value that
// carries a score.
func coerceClinical(q *Question, v Value) (Value, bool) {
	if v.Kind == KindString {
		for _, o := range q.Options {
			if o.Value == strings.TrimSpace(v.Text) && o.Score != nil {
				return NumberValue(float64(*o.Score)), true
			}
		}
	}
	n, ok := numeric(v)
	if !ok || n != math.Trunc(n) || n < 0 || n > 3 {
		return v, false
	}
	return NumberValue(n), true
}

func numeric(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return 0, false
		}
		return v.Number, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
