package protocol

import (
	"encoding/binary"

	"marstek-ble-bridge/pkg/state"
)

// valueType is the wire encoding of one field. All integers are little-endian.
type valueType int

const (
	typeU8 valueType = iota
	typeS8
	typeU16
	typeS16
	typeU32
)

func (t valueType) size() int {
	switch t {
	case typeU16, typeS16:
		return 2
	case typeU32:
		return 4
	default:
		return 1
	}
}

// fieldSpec places one state field in a payload.
// Scale divides the raw value for float fields. Mask is applied before
// conversion; bool fields are true when the (masked) raw value is non-zero.
type fieldSpec struct {
	Field  state.FieldID
	Offset int
	Type   valueType
	Scale  float64
	Mask   uint32
}

// Layout is one versioned decode table for a payload format.
type Layout struct {
	Name      string
	Version   int
	MinLen    int
	Tentative bool
	Fields    []fieldSpec
}

func (s fieldSpec) fits(p []byte) bool {
	return s.Offset >= 0 && s.Offset+s.Type.size() <= len(p)
}

func (s fieldSpec) raw(p []byte) int64 {
	b := p[s.Offset:]
	var v int64
	switch s.Type {
	case typeU8:
		v = int64(b[0])
	case typeS8:
		v = int64(int8(b[0]))
	case typeU16:
		v = int64(binary.LittleEndian.Uint16(b))
	case typeS16:
		v = int64(int16(binary.LittleEndian.Uint16(b)))
	case typeU32:
		v = int64(binary.LittleEndian.Uint32(b))
	}
	if s.Mask != 0 {
		v &= int64(s.Mask)
	}
	return v
}

// apply writes every field whose bytes fit in p. Fields beyond the payload
// are left untouched.
func (l Layout) apply(p []byte, w *state.Writer) {
	for _, s := range l.Fields {
		if !s.fits(p) {
			continue
		}
		v := s.raw(p)
		switch s.Field.Kind() {
		case state.KindFloat:
			f := float64(v)
			if s.Scale != 0 {
				f /= s.Scale
			}
			w.SetFloat(s.Field, f)
		case state.KindInt:
			w.SetInt(s.Field, v)
		case state.KindBool:
			w.SetBool(s.Field, v != 0)
		}
	}
}

// Runtime info formats, selected by payload length.
type RuntimeFormat int

const (
	RuntimeInvalid RuntimeFormat = iota
	RuntimeShort
	RuntimeLong
	RuntimeExtended
)

func (f RuntimeFormat) String() string {
	switch f {
	case RuntimeShort:
		return "short"
	case RuntimeLong:
		return "long"
	case RuntimeExtended:
		return "extended"
	default:
		return "invalid"
	}
}

const (
	runtimeShortMin    = 37
	runtimeLongMin     = 60
	runtimeExtendedMin = 0x68
)

// ClassifyRuntime picks the runtime format for a payload length.
func ClassifyRuntime(n int) RuntimeFormat {
	switch {
	case n >= runtimeExtendedMin:
		return RuntimeExtended
	case n >= runtimeLongMin:
		return RuntimeLong
	case n >= runtimeShortMin:
		return RuntimeShort
	default:
		return RuntimeInvalid
	}
}

var runtimeShortV1 = Layout{
	Name: "runtime_short", Version: 1, MinLen: runtimeShortMin, Tentative: true,
	Fields: []fieldSpec{
		{Field: state.FieldWiFiConnected, Offset: 15, Type: typeU8, Mask: 0x01},
		{Field: state.FieldMQTTConnected, Offset: 15, Type: typeU8, Mask: 0x02},
		{Field: state.FieldOut1Active, Offset: 16, Type: typeU8},
		{Field: state.FieldOut1Power, Offset: 20, Type: typeU16},
		{Field: state.FieldExtern1Connected, Offset: 28, Type: typeU8},
	},
}

var runtimeLongV1 = Layout{
	Name: "runtime_long", Version: 1, MinLen: runtimeLongMin,
	Fields: append(append([]fieldSpec(nil), runtimeShortV1.Fields...),
		fieldSpec{Field: state.FieldTempLow, Offset: 33, Type: typeS16, Scale: 10},
		fieldSpec{Field: state.FieldTempHigh, Offset: 35, Type: typeS16, Scale: 10},
	),
}

// runtimeExtendedV1 adds the fields only present in full-size runtime
// payloads. The energy counters share bytes with the status flags of the
// short layout and have not been validated on every firmware.
var runtimeExtendedV1 = Layout{
	Name: "runtime_extended", Version: 1, MinLen: runtimeExtendedMin, Tentative: true,
	Fields: []fieldSpec{
		{Field: state.FieldGridPower, Offset: 0x00, Type: typeS16},
		{Field: state.FieldBatteryPower, Offset: 0x02, Type: typeS16},
		{Field: state.FieldWorkMode, Offset: 0x04, Type: typeU8},
		{Field: state.FieldP1MeterConnected, Offset: 0x05, Type: typeU8, Mask: 0x02},
		{Field: state.FieldEcoTrackerConnected, Offset: 0x05, Type: typeU8, Mask: 0x04},
		{Field: state.FieldNetworkActive, Offset: 0x05, Type: typeU8, Mask: 0x08},
		{Field: state.FieldDataQualityOK, Offset: 0x06, Type: typeU8, Mask: 0x10},
		{Field: state.FieldErrorState, Offset: 0x07, Type: typeU8, Mask: 0x07},
		{Field: state.FieldServerConnected, Offset: 0x07, Type: typeU8, Mask: 0x08},
		{Field: state.FieldHTTPActive, Offset: 0x07, Type: typeU8, Mask: 0x10},
		{Field: state.FieldProductCode, Offset: 0x0C, Type: typeU16},
		{Field: state.FieldDailyChargeEnergy, Offset: 0x0E, Type: typeU32, Scale: 100},
		{Field: state.FieldMonthlyChargeEnergy, Offset: 0x12, Type: typeU32, Scale: 1000},
		{Field: state.FieldDailyDischargeEnergy, Offset: 0x16, Type: typeU32, Scale: 100},
		{Field: state.FieldMonthlyDischargeEnergy, Offset: 0x1A, Type: typeU32, Scale: 100},
		{Field: state.FieldTotalChargeEnergy, Offset: 0x29, Type: typeU32, Scale: 100},
		{Field: state.FieldTotalDischargeEnergy, Offset: 0x2D, Type: typeU32, Scale: 100},
		{Field: state.FieldPowerRating, Offset: 0x4A, Type: typeU16},
		{Field: state.FieldParallelStatus, Offset: 0x5F, Type: typeU8},
		{Field: state.FieldGeneratorActive, Offset: 0x60, Type: typeU8},
		{Field: state.FieldCalibrationTag1, Offset: 0x62, Type: typeU16},
		{Field: state.FieldCalibrationTag2, Offset: 0x64, Type: typeU16},
		{Field: state.FieldAPIPort, Offset: 0x66, Type: typeU16},
	},
}

var systemDataV1 = Layout{
	Name: "system_data", Version: 1, MinLen: 11, Tentative: true,
	Fields: []fieldSpec{
		{Field: state.FieldSystemStatus, Offset: 0, Type: typeU8},
		{Field: state.FieldSystemValue1, Offset: 1, Type: typeU16},
		{Field: state.FieldSystemValue2, Offset: 3, Type: typeU16},
		{Field: state.FieldSystemValue3, Offset: 5, Type: typeU16},
		{Field: state.FieldSystemValue4, Offset: 7, Type: typeU16},
		{Field: state.FieldSystemValue5, Offset: 9, Type: typeU16},
	},
}

var timerInfoV1 = Layout{
	Name: "timer_info", Version: 1, MinLen: 45,
	Fields: []fieldSpec{
		{Field: state.FieldAdaptiveModeEnabled, Offset: 0, Type: typeU8},
		{Field: state.FieldSmartMeterConnected, Offset: 37, Type: typeU8},
		{Field: state.FieldAdaptivePowerOut, Offset: 38, Type: typeU16},
	},
}

// bmsV1 covers the BMS block. Offsets 18 and 38..46 (temperature sensors)
// are unconfirmed on v3 hardware.
var bmsV1 = Layout{
	Name: "bms_data", Version: 1, MinLen: 80, Tentative: true,
	Fields: append([]fieldSpec{
		{Field: state.FieldBMSVersion, Offset: 0, Type: typeU16},
		{Field: state.FieldVoltageLimit, Offset: 2, Type: typeU16, Scale: 10},
		{Field: state.FieldChargeCurrentLimit, Offset: 4, Type: typeU16, Scale: 10},
		{Field: state.FieldDischargeCurrentLimit, Offset: 6, Type: typeS16, Scale: 10},
		{Field: state.FieldBatterySOC, Offset: 8, Type: typeU16},
		{Field: state.FieldBatterySOH, Offset: 10, Type: typeU16},
		{Field: state.FieldDesignCapacity, Offset: 12, Type: typeU16},
		{Field: state.FieldBatteryVoltage, Offset: 14, Type: typeU16, Scale: 100},
		{Field: state.FieldBatteryCurrent, Offset: 16, Type: typeS16, Scale: 10},
		{Field: state.FieldBMSTemperature, Offset: 18, Type: typeU16},
		{Field: state.FieldBMSErrorCode, Offset: 26, Type: typeU16},
		{Field: state.FieldBMSWarningCode, Offset: 28, Type: typeU32},
		{Field: state.FieldBMSRuntimeHours, Offset: 32, Type: typeU32, Scale: 3_600_000},
		{Field: state.FieldMOSFETTemp, Offset: 38, Type: typeU16},
		{Field: state.FieldBatteryTemp, Offset: 40, Type: typeU16},
		{Field: state.FieldTempSensor2, Offset: 42, Type: typeU16},
		{Field: state.FieldTempSensor3, Offset: 44, Type: typeU16},
		{Field: state.FieldTempSensor4, Offset: 46, Type: typeU16},
	}, cellSpecs()...),
}

func cellSpecs() []fieldSpec {
	specs := make([]fieldSpec, 0, state.CellCount)
	for i := 0; i < state.CellCount; i++ {
		id, _ := state.CellField(i)
		specs = append(specs, fieldSpec{Field: id, Offset: 48 + 2*i, Type: typeU16, Scale: 1000})
	}
	return specs
}

var configDataV1 = Layout{
	Name: "config_data", Version: 1, MinLen: 17, Tentative: true,
	Fields: []fieldSpec{
		{Field: state.FieldConfigMode, Offset: 0, Type: typeU8},
		{Field: state.FieldConfigFlags, Offset: 1, Type: typeU8},
		{Field: state.FieldConfigStatus, Offset: 4, Type: typeS8},
		{Field: state.FieldConfigEnableFlag1, Offset: 8, Type: typeU8},
		{Field: state.FieldConfigEnableFlag2, Offset: 12, Type: typeU8},
		{Field: state.FieldConfigValue, Offset: 16, Type: typeU8},
	},
}

var ctPollingRateV1 = Layout{
	Name: "ct_polling_rate", Version: 1, MinLen: 1,
	Fields: []fieldSpec{
		{Field: state.FieldCTPollingRate, Offset: 0, Type: typeU8},
	},
}

var localAPIV1 = Layout{
	Name: "local_api_status", Version: 1, MinLen: 3,
	Fields: []fieldSpec{
		{Field: state.FieldLocalAPIPort, Offset: 1, Type: typeU16},
	},
}

// Layouts returns every decode table, for diagnostics and auditing.
func Layouts() []Layout {
	return []Layout{
		runtimeShortV1, runtimeLongV1, runtimeExtendedV1,
		systemDataV1, timerInfoV1, bmsV1, configDataV1,
		ctPollingRateV1, localAPIV1,
	}
}
