package state

import (
	"encoding/hex"
	"sync"
	"time"
)

// Metadata describes the provenance of the last write to a field.
type Metadata struct {
	Command    byte      `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	AgeSeconds float64   `json:"age_seconds"`
	PayloadHex string    `json:"payload_hex"`
}

type stamp struct {
	set        bool
	command    byte
	timestamp  time.Time
	payloadHex string
}

// DecodeCount tracks decode outcomes for one command id.
type DecodeCount struct {
	Decoded  uint64 `json:"decoded"`
	Rejected uint64 `json:"rejected"`
}

// Record is the last-known-good state of one device.
// It is only mutated through Update, and only when the update succeeds.
type Record struct {
	mu     sync.RWMutex
	values [fieldCount]Value
	stamps [fieldCount]stamp
	counts map[byte]*DecodeCount
	now    func() time.Time
}

// NewRecord creates an empty record using the wall clock.
func NewRecord() *Record {
	return NewRecordWithClock(time.Now)
}

// NewRecordWithClock creates an empty record with an injected clock for age computations.
func NewRecordWithClock(now func() time.Time) *Record {
	if now == nil {
		now = time.Now
	}
	return &Record{
		counts: make(map[byte]*DecodeCount),
		now:    now,
	}
}

// Writer stages field writes for a single decode.
type Writer struct {
	staged  [fieldCount]Value
	touched [fieldCount]bool
	n       int
}

func (w *Writer) put(id FieldID, v Value) {
	if !id.Valid() || id.Kind() != v.kind {
		return
	}
	w.staged[id] = v
	if !w.touched[id] {
		w.touched[id] = true
		w.n++
	}
}

// SetFloat stages a float field. Writes to a field of another kind are ignored.
func (w *Writer) SetFloat(id FieldID, f float64) { w.put(id, floatValue(f)) }

// SetInt stages an int field.
func (w *Writer) SetInt(id FieldID, i int64) { w.put(id, intValue(i)) }

// SetBool stages a bool field.
func (w *Writer) SetBool(id FieldID, b bool) { w.put(id, boolValue(b)) }

// SetString stages a string field.
func (w *Writer) SetString(id FieldID, s string) { w.put(id, stringValue(s)) }

// Get returns the staged value of a field; unstaged fields read as stored.
func (w *Writer) Get(id FieldID) Value {
	if !id.Valid() {
		return Value{}
	}
	return w.staged[id]
}

// Written returns the number of distinct fields staged so far.
func (w *Writer) Written() int { return w.n }

// Update runs fn against a staged copy of the record. The staged writes are
// committed, and each written field stamped with command, ts and payload,
// only if fn returns true. Otherwise the record is left untouched.
func (r *Record) Update(command byte, ts time.Time, payload []byte, fn func(w *Writer) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := &Writer{staged: r.values}
	ok := fn(w)

	count := r.counts[command]
	if count == nil {
		count = &DecodeCount{}
		r.counts[command] = count
	}
	if !ok {
		count.Rejected++
		return false
	}
	count.Decoded++

	payloadHex := hex.EncodeToString(payload)
	for id := FieldID(0); id < fieldCount; id++ {
		if !w.touched[id] {
			continue
		}
		r.values[id] = w.staged[id]
		r.stamps[id] = stamp{set: true, command: command, timestamp: ts, payloadHex: payloadHex}
	}
	return true
}

// Get returns the current value of a field.
func (r *Record) Get(id FieldID) Value {
	if !id.Valid() {
		return Value{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[id]
}

// GetFieldMetadata reports which command last wrote the field, when, and from which payload.
func (r *Record) GetFieldMetadata(id FieldID) (Metadata, bool) {
	if !id.Valid() {
		return Metadata{}, false
	}
	r.mu.RLock()
	st := r.stamps[id]
	r.mu.RUnlock()
	if !st.set {
		return Metadata{}, false
	}
	return st.metadata(r.now()), true
}

// Snapshot returns an immutable copy of the record.
func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[byte]DecodeCount, len(r.counts))
	for cmd, c := range r.counts {
		counts[cmd] = *c
	}
	return Snapshot{
		values: r.values,
		stamps: r.stamps,
		counts: counts,
		taken:  r.now(),
	}
}

func (st stamp) metadata(now time.Time) Metadata {
	age := now.Sub(st.timestamp).Seconds()
	if age < 0 {
		age = 0
	}
	return Metadata{
		Command:    st.command,
		Timestamp:  st.timestamp,
		AgeSeconds: age,
		PayloadHex: st.payloadHex,
	}
}
