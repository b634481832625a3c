package features

import (
	"encoding/json"
	"strconv"
)

// Key names a single signal in a Record.
type Key string

const (
	URLLen         Key = "url_len"
	HostLen        Key = "host_len"
	DotCount       Key = "dot_count"
	PathDepth      Key = "path_depth"
	HasIPHost      Key = "has_ip_host"
	HasAt          Key = "has_at"
	HasPort        Key = "has_port"
	SubdomainCount Key = "subdomain_count"

	FormCount   Key = "form_count"
	InputCount  Key = "input_count"
	HiddenCount Key = "hidden_count"
	TitleLen    Key = "title_len"

	PasswordCount     Key = "password_count"
	IframeCount       Key = "iframe_count"
	ScriptCount       Key = "script_count"
	ExternalLinkCount Key = "external_link_count"
	ExternalFormCount Key = "external_form_count"
	EvalCount         Key = "eval_count"
	RedirectCount     Key = "redirect_count"
)

// DOMPrefix namespaces keys that came from a document rather than the URL.
const DOMPrefix = "dom_"

// DOMKey returns the merged name of a DOM-derived key.
func DOMKey(k Key) Key {
	return Key(DOMPrefix + string(k))
}

// Kind tags which field of a Value is set.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindBool
)

// Value is an int, float or bool. The zero Value behaves like an absent feature.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
}

func Int(n int) Value { return Value{kind: KindInt, i: int64(n)} }
func Int64(n int64) Value { return Value{kind: KindInt, i: n} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsZero() bool { return v.kind == 0 }

// Number returns the value as a float64; true counts as 1.
func (v Value) Number() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

// Truthy reports whether the value is non-zero.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	}
	return "0"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	}
	return []byte("null"), nil
}

// Record is the flat set of signals computed for one scoring request.
// Reads of absent keys return the zero value rather than failing.
type Record map[Key]Value

func (r Record) Set(k Key, v Value) {
	r[k] = v
}

func (r Record) Get(k Key) (Value, bool) {
	v, ok := r[k]
	return v, ok
}

// Number returns the numeric value of k, or 0 when k is absent.
func (r Record) Number(k Key) float64 {
	return r[k].Number()
}

// Flag returns the truthiness of k, or false when k is absent.
func (r Record) Flag(k Key) bool {
	return r[k].Truthy()
}

// Format renders k's value for reason strings.
func (r Record) Format(k Key) string {
	return r[k].String()
}

// Clone returns a shallow copy that can be mutated independently.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
