package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"marstek-ble-bridge/pkg/state"
)

const (
	logHeaderSize   = 14
	eventRecordSize = 9
)

// EventRecord is one entry of the device event log.
type EventRecord struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Type   int
	Code   int
}

// Time returns the record timestamp, or false if the date is not valid.
func (r EventRecord) Time() (time.Time, bool) {
	if r.Year == 0 || r.Month < 1 || r.Month > 12 || r.Day < 1 || r.Day > 31 || r.Hour > 23 || r.Minute > 59 {
		return time.Time{}, false
	}
	t := time.Date(r.Year, time.Month(r.Month), r.Day, r.Hour, r.Minute, 0, 0, time.UTC)
	if t.Day() != r.Day {
		return time.Time{}, false
	}
	return t, true
}

// ParseEventLog returns the non-empty records following the log header.
func ParseEventLog(p []byte) []EventRecord {
	if len(p) <= logHeaderSize {
		return nil
	}
	body := p[logHeaderSize:]
	var records []EventRecord
	for off := 0; off+eventRecordSize <= len(body); off += eventRecordSize {
		chunk := body[off : off+eventRecordSize]
		if allBytes(chunk, 0) {
			continue
		}
		records = append(records, EventRecord{
			Year:   int(binary.LittleEndian.Uint16(chunk[0:2])),
			Month:  int(chunk[2]),
			Day:    int(chunk[3]),
			Hour:   int(chunk[4]),
			Minute: int(chunk[5]),
			Type:   int(chunk[6]),
			Code:   int(binary.LittleEndian.Uint16(chunk[7:9])),
		})
	}
	return records
}

func decodeEventLog(p []byte, w *state.Writer) bool {
	records := ParseEventLog(p)
	w.SetInt(state.FieldEventLogCount, int64(len(records)))
	if len(records) == 0 {
		return true
	}
	latest := records[len(records)-1]
	if t, ok := latest.Time(); ok {
		w.SetString(state.FieldLastEventTime, t.Format("2006-01-02 15:04"))
	} else {
		w.SetString(state.FieldLastEventTime, fmt.Sprintf("%04d-%02d-%02d %02d:%02d", latest.Year, latest.Month, latest.Day, latest.Hour, latest.Minute))
	}
	w.SetInt(state.FieldLastEventType, int64(latest.Type))
	w.SetInt(state.FieldLastEventCode, int64(latest.Code))
	return true
}
