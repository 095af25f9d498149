package watch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindUnset  Kind = iota // path never written
	KindNull               // script wrote None/nil/null
	KindNumber             // float64
	KindString
	KindBool
	KindOpaque // any other runtime object
)

func (k Kind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is the closed set of payloads a tracked path can hold.
// The zero Value is Unset.
type Value struct {
	kind   Kind
	num    float64
	str    string // string payload, or display form for opaque values
	b      bool
	opaque any
}

// Unset is the sentinel returned for paths that were never written.
var Unset = Value{}

func Null() Value { return Value{kind: KindNull} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Opaque wraps a runtime object the variant has no case for. display is what
// observers see when they render it.
func Opaque(v any, display string) Value {
	return Value{kind: KindOpaque, opaque: v, str: display}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsSet() bool { return v.kind != KindUnset }
func (v Value) Float() float64 { return v.num }
func (v Value) Str() string { return v.str }
func (v Value) Truth() bool { return v.b }
func (v Value) Raw() any { return v.opaque }

// Any returns the natural Go form of the payload: nil, float64, string, bool
// or the opaque object.
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindOpaque:
		return v.opaque
	default:
		return nil
	}
}

// Equal compares payloads. Opaque values compare by display form.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString, KindOpaque:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindUnset:
		return "<unset>"
	case KindNull:
		return "None"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	default:
		return v.str
	}
}

// MarshalJSON renders the natural scalar. Unset and Null both become null;
// opaque values become their display string. JSON has no NaN or infinity,
// so those numbers are written as the strings "NaN", "Infinity" and
// "-Infinity".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		switch {
		case math.IsNaN(v.num):
			return []byte(`"NaN"`), nil
		case math.IsInf(v.num, 1):
			return []byte(`"Infinity"`), nil
		case math.IsInf(v.num, -1):
			return []byte(`"-Infinity"`), nil
		}
		return json.Marshal(v.num)
	case KindString, KindOpaque:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any JSON scalar. Arrays and objects are kept as
// opaque values holding the decoded Go form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case float64:
		*v = Number(x)
	case string:
		*v = String(x)
	case bool:
		*v = Bool(x)
	default:
		*v = Opaque(x, string(data))
	}
	return nil
}
