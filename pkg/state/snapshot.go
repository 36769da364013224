package state

import (
	"encoding/json"
	"time"
)

// Snapshot is a read-only copy of a Record taken at a point in time.
type Snapshot struct {
	values [fieldCount]Value
	stamps [fieldCount]stamp
	counts map[byte]DecodeCount
	taken  time.Time
}

// TakenAt returns when the snapshot was taken.
func (s Snapshot) TakenAt() time.Time { return s.taken }

// Value returns the value of a field.
func (s Snapshot) Value(id FieldID) Value {
	if !id.Valid() {
		return Value{}
	}
	return s.values[id]
}

// Has reports whether a field has been decoded.
func (s Snapshot) Has(id FieldID) bool { return s.Value(id).IsSet() }

// Float is shorthand for Value(id).Float().
func (s Snapshot) Float(id FieldID) (float64, bool) { return s.Value(id).Float() }

// Int is shorthand for Value(id).Int().
func (s Snapshot) Int(id FieldID) (int64, bool) { return s.Value(id).Int() }

// Bool is shorthand for Value(id).Bool().
func (s Snapshot) Bool(id FieldID) (bool, bool) { return s.Value(id).Bool() }

// Text is shorthand for Value(id).Text().
func (s Snapshot) Text(id FieldID) (string, bool) { return s.Value(id).Text() }

// Metadata returns field provenance with the age computed at snapshot time.
func (s Snapshot) Metadata(id FieldID) (Metadata, bool) {
	if !id.Valid() || !s.stamps[id].set {
		return Metadata{}, false
	}
	return s.stamps[id].metadata(s.taken), true
}

// CellVoltages returns the 16 cell slots; unset cells are nil.
func (s Snapshot) CellVoltages() [CellCount]*float64 {
	var cells [CellCount]*float64
	for i := 0; i < CellCount; i++ {
		id, _ := CellField(i)
		if v, ok := s.Float(id); ok {
			cells[i] = &v
		}
	}
	return cells
}

// DecodeCounts returns per-command decode counters keyed by command id.
func (s Snapshot) DecodeCounts() map[byte]DecodeCount {
	out := make(map[byte]DecodeCount, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Map returns all set fields keyed by name.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any)
	for id := FieldID(0); id < fieldCount; id++ {
		if v := s.values[id]; v.set {
			out[id.String()] = v.Interface()
		}
	}
	return out
}

// SetCount returns how many fields have been decoded.
func (s Snapshot) SetCount() int {
	n := 0
	for id := FieldID(0); id < fieldCount; id++ {
		if s.values[id].set {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the set fields as a flat object.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}
