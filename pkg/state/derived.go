package state

// Battery state labels.
const (
	BatteryCharging    = "charging"
	BatteryDischarging = "discharging"
	BatteryInactive    = "inactive"
)

// batteryIdleBand is the +/- power in watts treated as inactive.
const batteryIdleBand = 5.0

// BatteryPowerCalc returns voltage times current in watts. Positive means charging.
func (s Snapshot) BatteryPowerCalc() (float64, bool) {
	v, okV := s.Float(FieldBatteryVoltage)
	i, okI := s.Float(FieldBatteryCurrent)
	if !okV || !okI {
		return 0, false
	}
	return v * i, true
}

// PowerIn returns the charging power in watts, zero while discharging.
func (s Snapshot) PowerIn() (float64, bool) {
	p, ok := s.BatteryPowerCalc()
	if !ok {
		return 0, false
	}
	return max(0, p), true
}

// PowerOut returns the discharging power in watts, zero while charging.
func (s Snapshot) PowerOut() (float64, bool) {
	p, ok := s.BatteryPowerCalc()
	if !ok {
		return 0, false
	}
	return max(0, -p), true
}

// RemainingCapacity returns stored energy in Wh from SOC and design capacity.
func (s Snapshot) RemainingCapacity() (float64, bool) {
	soc, okS := s.Float(FieldBatterySOC)
	design, okD := s.Float(FieldDesignCapacity)
	if !okS || !okD {
		return 0, false
	}
	return soc / 100 * design, true
}

// AvailableCapacity returns the Wh still needed to reach full charge.
func (s Snapshot) AvailableCapacity() (float64, bool) {
	soc, okS := s.Float(FieldBatterySOC)
	design, okD := s.Float(FieldDesignCapacity)
	if !okS || !okD {
		return 0, false
	}
	return (100 - soc) / 100 * design, true
}

// BatteryState classifies the calculated battery power.
func (s Snapshot) BatteryState() (string, bool) {
	p, ok := s.BatteryPowerCalc()
	if !ok {
		return "", false
	}
	switch {
	case p > batteryIdleBand:
		return BatteryCharging, true
	case p < -batteryIdleBand:
		return BatteryDischarging, true
	default:
		return BatteryInactive, true
	}
}

// Derived sensor names.
const (
	DerivedBatteryPowerCalc  = "battery_power_calc"
	DerivedPowerIn           = "power_in"
	DerivedPowerOut          = "power_out"
	DerivedRemainingCapacity = "remaining_capacity"
	DerivedAvailableCapacity = "available_capacity"
	DerivedBatteryState      = "battery_state"
)

// DerivedMap returns every derived value that can be computed, keyed by name.
func (s Snapshot) DerivedMap() map[string]any {
	out := make(map[string]any, 6)
	for name, fn := range map[string]func() (float64, bool){
		DerivedBatteryPowerCalc:  s.BatteryPowerCalc,
		DerivedPowerIn:           s.PowerIn,
		DerivedPowerOut:          s.PowerOut,
		DerivedRemainingCapacity: s.RemainingCapacity,
		DerivedAvailableCapacity: s.AvailableCapacity,
	} {
		if v, ok := fn(); ok {
			out[name] = v
		}
	}
	if st, ok := s.BatteryState(); ok {
		out[DerivedBatteryState] = st
	}
	return out
}
