package mqtt

import (
	"fmt"
	"strings"

	"marstek-ble-bridge/pkg/controls"
	"marstek-ble-bridge/pkg/scheduler"
	"marstek-ble-bridge/pkg/state"
	"marstek-ble-bridge/pkg/topics"
)

// Availability payloads
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// EntityConfig is a Home Assistant MQTT discovery document.
// Only the fields relevant to the component are set.
type EntityConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic,omitempty"`
	ValueTemplate       string     `json:"value_template,omitempty"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	EntityCategory      string     `json:"entity_category,omitempty"`
	Icon                string     `json:"icon,omitempty"`
	CommandTopic        string     `json:"command_topic,omitempty"`
	PayloadOn           string     `json:"payload_on,omitempty"`
	PayloadOff          string     `json:"payload_off,omitempty"`
	PayloadPress        string     `json:"payload_press,omitempty"`
	Options             []string   `json:"options,omitempty"`
	Min                 *float64   `json:"min,omitempty"`
	Max                 *float64   `json:"max,omitempty"`
	Step                *float64   `json:"step,omitempty"`
	Optimistic          bool       `json:"optimistic,omitempty"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	Device              DeviceInfo `json:"device"`
}

// DeviceInfo information about the device
type DeviceInfo struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
}

// Entity pairs a discovery document with its HA component.
type Entity struct {
	Component string
	Key       string
	Config    EntityConfig
}

// DiscoveryTopic returns where the entity's config is published.
func (e Entity) DiscoveryTopic(prefix, deviceID string) string {
	return topics.BuildDiscoveryTopic(prefix, e.Component, deviceID, e.Key)
}

// Diagnostic sensors fed from the extras of PublishState
const (
	ExtraConnectionState = "connection_state"
	ExtraSuccessRate     = "command_success_rate"
	ExtraLastPoll        = "last_poll"
	ExtraPollInterval    = "poll_interval"
	ExtraLastUpdate      = "last_update"
)

type sensorMeta struct {
	deviceClass string
	stateClass  string
	category    string
}

// classify maps a field onto HA device and state classes.
func classify(id state.FieldID) sensorMeta {
	name := id.String()
	switch id.Unit() {
	case "W":
		return sensorMeta{"power", "measurement", ""}
	case "kWh":
		return sensorMeta{"energy", "total_increasing", ""}
	case "Wh":
		return sensorMeta{"energy_storage", "measurement", ""}
	case "V":
		return sensorMeta{"voltage", "measurement", ""}
	case "A":
		return sensorMeta{"current", "measurement", ""}
	case "°C":
		return sensorMeta{"temperature", "measurement", ""}
	case "h":
		return sensorMeta{"duration", "total_increasing", "diagnostic"}
	case "%":
		if name == "battery_soc" {
			return sensorMeta{"battery", "measurement", ""}
		}
		return sensorMeta{"", "measurement", ""}
	}
	if id.Kind() == state.KindString || strings.Contains(name, "code") ||
		strings.Contains(name, "version") || strings.Contains(name, "calibration") {
		return sensorMeta{category: "diagnostic"}
	}
	return sensorMeta{}
}

func humanize(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		switch w {
		case "soc", "soh", "bms", "ac", "ct", "ip", "eps", "api", "mac", "id", "sn", "dns", "pv2", "ssid":
			words[i] = strings.ToUpper(w)
		case "wifi":
			words[i] = "WiFi"
		case "mqtt":
			words[i] = "MQTT"
		case "http":
			words[i] = "HTTP"
		case "mosfet":
			words[i] = "MOSFET"
		default:
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
	}
	return strings.Join(words, " ")
}

func jsonTemplate(key string) string {
	return fmt.Sprintf("{{ value_json.get('%s') }}", key)
}

func ptr(f float64) *float64 { return &f }

// BuildEntities returns every discovery entity for a device.
func BuildEntities(ha DiscoveryContext, catalog *controls.Catalog) []Entity {
	var out []Entity
	base := func(key, name string) EntityConfig {
		return EntityConfig{
			Name:                name,
			UniqueID:            topics.BuildUniqueID(ha.DeviceID, key),
			AvailabilityTopic:   ha.AvailabilityTopic,
			PayloadAvailable:    PayloadOnline,
			PayloadNotAvailable: PayloadOffline,
			Device:              ha.Device,
		}
	}

	for _, id := range state.Fields() {
		key := id.String()
		cfg := base(key, humanize(key))
		cfg.StateTopic = ha.StateTopic
		if id.Kind() == state.KindBool {
			cfg.ValueTemplate = fmt.Sprintf("{{ 'ON' if value_json.get('%s') else 'OFF' }}", key)
			cfg.PayloadOn = "ON"
			cfg.PayloadOff = "OFF"
			if strings.HasSuffix(key, "_connected") {
				cfg.DeviceClass = "connectivity"
			}
			cfg.EntityCategory = "diagnostic"
			out = append(out, Entity{Component: "binary_sensor", Key: key, Config: cfg})
			continue
		}
		meta := classify(id)
		cfg.ValueTemplate = jsonTemplate(key)
		cfg.UnitOfMeasurement = id.Unit()
		cfg.DeviceClass = meta.deviceClass
		cfg.StateClass = meta.stateClass
		cfg.EntityCategory = meta.category
		out = append(out, Entity{Component: "sensor", Key: key, Config: cfg})
	}

	derived := []struct {
		key, unit, class, stateClass string
	}{
		{state.DerivedBatteryPowerCalc, "W", "power", "measurement"},
		{state.DerivedPowerIn, "W", "power", "measurement"},
		{state.DerivedPowerOut, "W", "power", "measurement"},
		{state.DerivedRemainingCapacity, "Wh", "energy_storage", "measurement"},
		{state.DerivedAvailableCapacity, "Wh", "energy_storage", "measurement"},
		{state.DerivedBatteryState, "", "", ""},
	}
	for _, d := range derived {
		cfg := base(d.key, humanize(d.key))
		cfg.StateTopic = ha.StateTopic
		cfg.ValueTemplate = jsonTemplate(d.key)
		cfg.UnitOfMeasurement = d.unit
		cfg.DeviceClass = d.class
		cfg.StateClass = d.stateClass
		out = append(out, Entity{Component: "sensor", Key: d.key, Config: cfg})
	}

	if ha.Diagnostics {
		for _, key := range []string{ExtraConnectionState, ExtraSuccessRate, ExtraLastPoll} {
			cfg := base(key, humanize(key))
			cfg.StateTopic = ha.StateTopic
			cfg.ValueTemplate = jsonTemplate(key)
			cfg.EntityCategory = "diagnostic"
			switch key {
			case ExtraSuccessRate:
				cfg.UnitOfMeasurement = "%"
				cfg.StateClass = "measurement"
			case ExtraLastPoll:
				cfg.DeviceClass = "timestamp"
			}
			out = append(out, Entity{Component: "sensor", Key: key, Config: cfg})
		}
	}

	interval := base(topics.PollIntervalKey, "Poll Interval")
	interval.StateTopic = ha.StateTopic
	interval.ValueTemplate = jsonTemplate(ExtraPollInterval)
	interval.CommandTopic = topics.BuildCommandTopic(ha.BaseTopic, ha.DeviceID, topics.PollIntervalKey)
	interval.UnitOfMeasurement = "s"
	interval.EntityCategory = "config"
	interval.Min = ptr(scheduler.MinFastInterval.Seconds())
	interval.Max = ptr(scheduler.MaxFastInterval.Seconds())
	interval.Step = ptr(1)
	out = append(out, Entity{Component: "number", Key: topics.PollIntervalKey, Config: interval})

	if catalog == nil {
		return out
	}
	for _, ctl := range catalog.All() {
		cfg := base(ctl.Key, ctl.Name)
		if _, clash := state.FieldByName(ctl.Key); clash {
			cfg.UniqueID = topics.BuildUniqueID(ha.DeviceID, ctl.Key+"_"+string(ctl.Kind))
		}
		cfg.CommandTopic = topics.BuildCommandTopic(ha.BaseTopic, ha.DeviceID, ctl.Key)
		switch ctl.Kind {
		case controls.KindSwitch:
			cfg.StateTopic = topics.BuildControlStateTopic(ha.BaseTopic, ha.DeviceID, ctl.Key)
			cfg.PayloadOn = "ON"
			cfg.PayloadOff = "OFF"
			cfg.Optimistic = ctl.Assumed()
		case controls.KindSelect:
			cfg.StateTopic = topics.BuildControlStateTopic(ha.BaseTopic, ha.DeviceID, ctl.Key)
			cfg.Options = ctl.OptionLabels()
			cfg.Optimistic = ctl.Assumed()
		case controls.KindButton:
			cfg.PayloadPress = "PRESS"
		}
		out = append(out, Entity{Component: string(ctl.Kind), Key: ctl.Key, Config: cfg})
	}
	return out
}

// DiscoveryContext carries the topics and device block shared by all entities.
type DiscoveryContext struct {
	DeviceID          string
	BaseTopic         string
	StateTopic        string
	AvailabilityTopic string
	Diagnostics       bool
	Device            DeviceInfo
}
