package state

// Value holds one optional field value. The zero Value is unset.
type Value struct {
	kind Kind
	set  bool
	f    float64
	i    int64
	b    bool
	s    string
}

// IsSet reports whether the field has ever been decoded.
func (v Value) IsSet() bool { return v.set }

// Kind returns the storage kind of the value.
func (v Value) Kind() Kind { return v.kind }

// Float returns the value of a float field.
func (v Value) Float() (float64, bool) {
	if !v.set || v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// Int returns the value of an int field.
func (v Value) Int() (int64, bool) {
	if !v.set || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Bool returns the value of a bool field.
func (v Value) Bool() (bool, bool) {
	if !v.set || v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Text returns the value of a string field.
func (v Value) Text() (string, bool) {
	if !v.set || v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Interface returns the value as float64, int64, bool or string, or nil if unset.
func (v Value) Interface() any {
	if !v.set {
		return nil
	}
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindString:
		return v.s
	}
	return nil
}

// Equal compares two values including their set state.
func (v Value) Equal(o Value) bool {
	return v == o
}

func floatValue(f float64) Value { return Value{kind: KindFloat, set: true, f: f} }
func intValue(i int64) Value     { return Value{kind: KindInt, set: true, i: i} }
func boolValue(b bool) Value     { return Value{kind: KindBool, set: true, b: b} }
func stringValue(s string) Value { return Value{kind: KindString, set: true, s: s} }
