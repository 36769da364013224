package state

import "fmt"

// FieldID enumerates every value the device can report.
type FieldID int

// Kind is the Go type a field is stored as.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// CellCount is the number of per-cell voltage slots reported by the BMS.
const CellCount = 16

const (
	// Identity (device_info)
	FieldDeviceType FieldID = iota
	FieldDeviceID
	FieldMACAddress
	FieldFirmwareVersion
	FieldSerialNumber
	FieldHardwareVersion

	// Runtime telemetry (runtime_info)
	FieldOut1Power
	FieldTempLow
	FieldTempHigh
	FieldWiFiConnected
	FieldMQTTConnected
	FieldOut1Active
	FieldExtern1Connected
	FieldGridPower
	FieldBatteryPower
	FieldWorkMode
	FieldWorkModeLabel
	FieldP1MeterConnected
	FieldEcoTrackerConnected
	FieldNetworkActive
	FieldDataQualityOK
	FieldErrorState
	FieldServerConnected
	FieldHTTPActive
	FieldProductCode
	FieldDailyChargeEnergy
	FieldMonthlyChargeEnergy
	FieldDailyDischargeEnergy
	FieldMonthlyDischargeEnergy
	FieldTotalChargeEnergy
	FieldTotalDischargeEnergy
	FieldPowerRating
	FieldRuntimeFirmware
	FieldBuildCode
	FieldFirmwareBuild
	FieldParallelStatus
	FieldGeneratorActive
	FieldCalibrationTag1
	FieldCalibrationTag2
	FieldAPIPort

	// WiFi
	FieldWiFiSSID

	// System data
	FieldSystemStatus
	FieldSystemValue1
	FieldSystemValue2
	FieldSystemValue3
	FieldSystemValue4
	FieldSystemValue5

	// Timer info
	FieldAdaptiveModeEnabled
	FieldSmartMeterConnected
	FieldAdaptivePowerOut

	// BMS
	FieldBMSVersion
	FieldVoltageLimit
	FieldChargeCurrentLimit
	FieldDischargeCurrentLimit
	FieldBatterySOC
	FieldBatterySOH
	FieldDesignCapacity
	FieldBatteryVoltage
	FieldBatteryCurrent
	FieldBMSTemperature
	FieldBMSErrorCode
	FieldBMSWarningCode
	FieldBMSRuntimeHours
	FieldMOSFETTemp
	FieldBatteryTemp
	FieldTempSensor2
	FieldTempSensor3
	FieldTempSensor4
	FieldCell1Voltage
	FieldCell2Voltage
	FieldCell3Voltage
	FieldCell4Voltage
	FieldCell5Voltage
	FieldCell6Voltage
	FieldCell7Voltage
	FieldCell8Voltage
	FieldCell9Voltage
	FieldCell10Voltage
	FieldCell11Voltage
	FieldCell12Voltage
	FieldCell13Voltage
	FieldCell14Voltage
	FieldCell15Voltage
	FieldCell16Voltage

	// Config data
	FieldConfigMode
	FieldConfigFlags
	FieldConfigStatus
	FieldConfigEnableFlag1
	FieldConfigEnableFlag2
	FieldConfigValue

	// Meter IP / CT
	FieldMeterIP
	FieldMeterIPConfigured
	FieldCTPollingRate

	// Network
	FieldNetworkInfo
	FieldNetworkIP
	FieldNetworkGateway
	FieldNetworkMask
	FieldNetworkDNS

	// Local API
	FieldLocalAPIEnabled
	FieldLocalAPIPort
	FieldLocalAPIStatus

	// Event log
	FieldEventLogCount
	FieldLastEventTime
	FieldLastEventType
	FieldLastEventCode

	fieldCount
)

type fieldInfo struct {
	name string
	kind Kind
	unit string
}

var fieldTable = [fieldCount]fieldInfo{
	FieldDeviceType:      {"device_type", KindString, ""},
	FieldDeviceID:        {"device_id", KindString, ""},
	FieldMACAddress:      {"mac_address", KindString, ""},
	FieldFirmwareVersion: {"firmware_version", KindString, ""},
	FieldSerialNumber:    {"serial_number", KindString, ""},
	FieldHardwareVersion: {"hardware_version", KindString, ""},

	FieldOut1Power:              {"out1_power", KindFloat, "W"},
	FieldTempLow:                {"temp_low", KindFloat, "°C"},
	FieldTempHigh:               {"temp_high", KindFloat, "°C"},
	FieldWiFiConnected:          {"wifi_connected", KindBool, ""},
	FieldMQTTConnected:          {"mqtt_connected", KindBool, ""},
	FieldOut1Active:             {"out1_active", KindBool, ""},
	FieldExtern1Connected:       {"extern1_connected", KindBool, ""},
	FieldGridPower:              {"grid_power", KindFloat, "W"},
	FieldBatteryPower:           {"battery_power", KindFloat, "W"},
	FieldWorkMode:               {"work_mode", KindInt, ""},
	FieldWorkModeLabel:          {"work_mode_label", KindString, ""},
	FieldP1MeterConnected:       {"p1_meter_connected", KindBool, ""},
	FieldEcoTrackerConnected:    {"eco_tracker_connected", KindBool, ""},
	FieldNetworkActive:          {"network_active", KindBool, ""},
	FieldDataQualityOK:          {"data_quality_ok", KindBool, ""},
	FieldErrorState:             {"error_state", KindInt, ""},
	FieldServerConnected:        {"server_connected", KindBool, ""},
	FieldHTTPActive:             {"http_active", KindBool, ""},
	FieldProductCode:            {"product_code", KindInt, ""},
	FieldDailyChargeEnergy:      {"daily_charge_energy", KindFloat, "kWh"},
	FieldMonthlyChargeEnergy:    {"monthly_charge_energy", KindFloat, "kWh"},
	FieldDailyDischargeEnergy:   {"daily_discharge_energy", KindFloat, "kWh"},
	FieldMonthlyDischargeEnergy: {"monthly_discharge_energy", KindFloat, "kWh"},
	FieldTotalChargeEnergy:      {"total_charge_energy", KindFloat, "kWh"},
	FieldTotalDischargeEnergy:   {"total_discharge_energy", KindFloat, "kWh"},
	FieldPowerRating:            {"power_rating", KindFloat, "W"},
	FieldRuntimeFirmware:        {"runtime_firmware", KindString, ""},
	FieldBuildCode:              {"build_code", KindInt, ""},
	FieldFirmwareBuild:          {"firmware_build", KindString, ""},
	FieldParallelStatus:         {"parallel_status", KindInt, ""},
	FieldGeneratorActive:        {"generator_active", KindBool, ""},
	FieldCalibrationTag1:        {"calibration_tag_1", KindInt, ""},
	FieldCalibrationTag2:        {"calibration_tag_2", KindInt, ""},
	FieldAPIPort:                {"api_port", KindInt, ""},

	FieldWiFiSSID: {"wifi_ssid", KindString, ""},

	FieldSystemStatus: {"system_status", KindInt, ""},
	FieldSystemValue1: {"system_value_1", KindInt, ""},
	FieldSystemValue2: {"system_value_2", KindInt, ""},
	FieldSystemValue3: {"system_value_3", KindInt, ""},
	FieldSystemValue4: {"system_value_4", KindInt, ""},
	FieldSystemValue5: {"system_value_5", KindInt, ""},

	FieldAdaptiveModeEnabled: {"adaptive_mode_enabled", KindBool, ""},
	FieldSmartMeterConnected: {"smart_meter_connected", KindBool, ""},
	FieldAdaptivePowerOut:    {"adaptive_power_out", KindFloat, "W"},

	FieldBMSVersion:            {"bms_version", KindInt, ""},
	FieldVoltageLimit:          {"voltage_limit", KindFloat, "V"},
	FieldChargeCurrentLimit:    {"charge_current_limit", KindFloat, "A"},
	FieldDischargeCurrentLimit: {"discharge_current_limit", KindFloat, "A"},
	FieldBatterySOC:            {"battery_soc", KindFloat, "%"},
	FieldBatterySOH:            {"battery_soh", KindFloat, "%"},
	FieldDesignCapacity:        {"design_capacity", KindFloat, "Wh"},
	FieldBatteryVoltage:        {"battery_voltage", KindFloat, "V"},
	FieldBatteryCurrent:        {"battery_current", KindFloat, "A"},
	FieldBMSTemperature:        {"bms_temperature", KindFloat, "°C"},
	FieldBMSErrorCode:          {"bms_error_code", KindInt, ""},
	FieldBMSWarningCode:        {"bms_warning_code", KindInt, ""},
	FieldBMSRuntimeHours:       {"bms_runtime_hours", KindFloat, "h"},
	FieldMOSFETTemp:            {"mosfet_temp", KindFloat, "°C"},
	FieldBatteryTemp:           {"battery_temp", KindFloat, "°C"},
	FieldTempSensor2:           {"temp_sensor_2", KindFloat, "°C"},
	FieldTempSensor3:           {"temp_sensor_3", KindFloat, "°C"},
	FieldTempSensor4:           {"temp_sensor_4", KindFloat, "°C"},
	FieldCell1Voltage:          {"cell_1_voltage", KindFloat, "V"},
	FieldCell2Voltage:          {"cell_2_voltage", KindFloat, "V"},
	FieldCell3Voltage:          {"cell_3_voltage", KindFloat, "V"},
	FieldCell4Voltage:          {"cell_4_voltage", KindFloat, "V"},
	FieldCell5Voltage:          {"cell_5_voltage", KindFloat, "V"},
	FieldCell6Voltage:          {"cell_6_voltage", KindFloat, "V"},
	FieldCell7Voltage:          {"cell_7_voltage", KindFloat, "V"},
	FieldCell8Voltage:          {"cell_8_voltage", KindFloat, "V"},
	FieldCell9Voltage:          {"cell_9_voltage", KindFloat, "V"},
	FieldCell10Voltage:         {"cell_10_voltage", KindFloat, "V"},
	FieldCell11Voltage:         {"cell_11_voltage", KindFloat, "V"},
	FieldCell12Voltage:         {"cell_12_voltage", KindFloat, "V"},
	FieldCell13Voltage:         {"cell_13_voltage", KindFloat, "V"},
	FieldCell14Voltage:         {"cell_14_voltage", KindFloat, "V"},
	FieldCell15Voltage:         {"cell_15_voltage", KindFloat, "V"},
	FieldCell16Voltage:         {"cell_16_voltage", KindFloat, "V"},

	FieldConfigMode:        {"config_mode", KindInt, ""},
	FieldConfigFlags:       {"config_flags", KindInt, ""},
	FieldConfigStatus:      {"config_status", KindInt, ""},
	FieldConfigEnableFlag1: {"config_enable_flag_1", KindBool, ""},
	FieldConfigEnableFlag2: {"config_enable_flag_2", KindBool, ""},
	FieldConfigValue:       {"config_value", KindInt, ""},

	FieldMeterIP:           {"meter_ip", KindString, ""},
	FieldMeterIPConfigured: {"meter_ip_configured", KindBool, ""},
	FieldCTPollingRate:     {"ct_polling_rate", KindInt, ""},

	FieldNetworkInfo:    {"network_info", KindString, ""},
	FieldNetworkIP:      {"network_ip", KindString, ""},
	FieldNetworkGateway: {"network_gateway", KindString, ""},
	FieldNetworkMask:    {"network_mask", KindString, ""},
	FieldNetworkDNS:     {"network_dns", KindString, ""},

	FieldLocalAPIEnabled: {"local_api_enabled", KindBool, ""},
	FieldLocalAPIPort:    {"local_api_port", KindInt, ""},
	FieldLocalAPIStatus:  {"local_api_status", KindString, ""},

	FieldEventLogCount: {"event_log_count", KindInt, ""},
	FieldLastEventTime: {"last_event_time", KindString, ""},
	FieldLastEventType: {"last_event_type", KindInt, ""},
	FieldLastEventCode: {"last_event_code", KindInt, ""},
}

var fieldsByName = func() map[string]FieldID {
	m := make(map[string]FieldID, fieldCount)
	for id := FieldID(0); id < fieldCount; id++ {
		m[fieldTable[id].name] = id
	}
	return m
}()

// Valid reports whether id names a known field.
func (id FieldID) Valid() bool {
	return id >= 0 && id < fieldCount
}

// String returns the snake_case name used in JSON and MQTT payloads.
func (id FieldID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("field(%d)", int(id))
	}
	return fieldTable[id].name
}

// Kind returns the storage kind of the field.
func (id FieldID) Kind() Kind {
	if !id.Valid() {
		return -1
	}
	return fieldTable[id].kind
}

// Unit returns the physical unit of the field, or "" if it has none.
func (id FieldID) Unit() string {
	if !id.Valid() {
		return ""
	}
	return fieldTable[id].unit
}

// FieldByName resolves a snake_case field name.
func FieldByName(name string) (FieldID, bool) {
	id, ok := fieldsByName[name]
	return id, ok
}

// Fields returns all field identifiers in declaration order.
func Fields() []FieldID {
	out := make([]FieldID, fieldCount)
	for i := range out {
		out[i] = FieldID(i)
	}
	return out
}

// CellField returns the field holding the voltage of cell index (0-based).
func CellField(index int) (FieldID, bool) {
	if index < 0 || index >= CellCount {
		return 0, false
	}
	return FieldCell1Voltage + FieldID(index), true
}
