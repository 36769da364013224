package state

import (
	"math"
	"testing"
	"time"
)

func TestDerivedBatteryValues(t *testing.T) {
	tests := []struct {
		name      string
		voltage   float64
		current   float64
		wantPower float64
		wantIn    float64
		wantOut   float64
		wantState string
	}{
		{"charging", 52.0, 10.0, 520, 520, 0, BatteryCharging},
		{"discharging", 50.0, -4.0, -200, 0, 200, BatteryDischarging},
		{"idle band", 50.0, 0.05, 2.5, 2.5, 0, BatteryInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord()
			r.Update(0x14, time.Now(), nil, func(w *Writer) bool {
				w.SetFloat(FieldBatteryVoltage, tt.voltage)
				w.SetFloat(FieldBatteryCurrent, tt.current)
				return true
			})
			s := r.Snapshot()

			p, _ := s.BatteryPowerCalc()
			if math.Abs(p-tt.wantPower) > 1e-9 {
				t.Errorf("Expected power %v, got %v", tt.wantPower, p)
			}
			in, _ := s.PowerIn()
			out, _ := s.PowerOut()
			if math.Abs(in-tt.wantIn) > 1e-9 || math.Abs(out-tt.wantOut) > 1e-9 {
				t.Errorf("Expected in/out %v/%v, got %v/%v", tt.wantIn, tt.wantOut, in, out)
			}
			state, _ := s.BatteryState()
			if state != tt.wantState {
				t.Errorf("Expected state %s, got %s", tt.wantState, state)
			}
		})
	}
}

func TestCapacity(t *testing.T) {
	r := NewRecord()
	if _, ok := r.Snapshot().RemainingCapacity(); ok {
		t.Error("Expected no capacity without SOC")
	}
	r.Update(0x14, time.Now(), nil, func(w *Writer) bool {
		w.SetFloat(FieldBatterySOC, 40)
		w.SetFloat(FieldDesignCapacity, 5120)
		return true
	})
	s := r.Snapshot()
	rem, _ := s.RemainingCapacity()
	avail, _ := s.AvailableCapacity()
	if rem != 2048 || avail != 3072 {
		t.Errorf("Expected 2048/3072 Wh, got %v/%v", rem, avail)
	}
}

func TestDerivedMap(t *testing.T) {
	r := NewRecord()
	if got := r.Snapshot().DerivedMap(); len(got) != 0 {
		t.Errorf("Expected empty derived map, got %v", got)
	}
	r.Update(0x14, time.Now(), nil, func(w *Writer) bool {
		w.SetFloat(FieldBatteryVoltage, 50)
		w.SetFloat(FieldBatteryCurrent, -2)
		return true
	})
	got := r.Snapshot().DerivedMap()
	if got[DerivedBatteryState] != BatteryDischarging {
		t.Errorf("Expected %s, got %v", BatteryDischarging, got[DerivedBatteryState])
	}
	if got[DerivedPowerOut] != 100.0 {
		t.Errorf("Expected power_out 100, got %v", got[DerivedPowerOut])
	}
	if _, ok := got[DerivedRemainingCapacity]; ok {
		t.Error("Expected no remaining capacity without SOC")
	}
}
