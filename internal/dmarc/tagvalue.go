package dmarc

import (
	"strconv"
	"strings"
)

// Policy is the value of the p and sp tags.
type Policy string

const (
	PolicyNone       Policy = "none"
	PolicyQuarantine Policy = "quarantine"
	PolicyReject     Policy = "reject"
)

// Policies lists the policy values in the order the parser tries them.
var Policies = []Policy{PolicyNone, PolicyQuarantine, PolicyReject}

func (p Policy) valid() bool {
	switch p {
	case PolicyNone, PolicyQuarantine, PolicyReject:
		return true
	}
	return false
}

// Alignment is the value of the adkim and aspf tags.
type Alignment string

const (
	AlignmentRelaxed Alignment = "r"
	AlignmentStrict  Alignment = "s"
)

func (a Alignment) valid() bool {
	return a == AlignmentRelaxed || a == AlignmentStrict
}

// ReportFormatAFRF is the only failure report format defined for DMARC1.
const ReportFormatAFRF = "afrf"

// TagValue holds the value of one known tag together with where it came
// from. Raw is the literal text of an explicit tag and is kept even when
// the value does not conform to the tag grammar.
type TagValue[T any] struct {
	Value    T
	Raw      string
	Explicit bool
	Valid    bool
}

// defaulted returns a tag that was not present in the record.
func defaulted[T any](value T) TagValue[T] {
	return TagValue[T]{Value: value, Valid: true}
}

// explicit returns a tag that was present in the record.
func explicit[T any](raw string, value T, valid bool) TagValue[T] {
	return TagValue[T]{Value: value, Raw: raw, Explicit: true, Valid: valid}
}

// String renders the value. Invalid explicit values render as their raw
// text, lists are joined with ", ".
func (t TagValue[T]) String() string {
	if t.Explicit && !t.Valid {
		return t.Raw
	}
	switch v := any(t.Value).(type) {
	case string:
		return v
	case Policy:
		return string(v)
	case Alignment:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case []string:
		return strings.Join(v, ", ")
	}
	return t.Raw
}

// Equal reports whether both tags have the same value, origin and validity.
func (t TagValue[T]) Equal(o TagValue[T]) bool {
	if t.Explicit != o.Explicit || t.Valid != o.Valid || t.Raw != o.Raw {
		return false
	}
	switch v := any(t.Value).(type) {
	case []string:
		w := any(o.Value).([]string)
		if len(v) != len(w) {
			return false
		}
		for i := range v {
			if v[i] != w[i] {
				return false
			}
		}
		return true
	}
	return any(t.Value) == any(o.Value)
}
