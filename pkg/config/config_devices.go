package config

import (
	"regexp"
	"strings"

	"marstek-ble-bridge/pkg/protocol"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// DeviceConfig identifies the battery to talk to.
// Either pin an address or let the scanner choose by advertised name prefix.
type DeviceConfig struct {
	Name         string   `yaml:"name"`                    // Display name (e.g., "Venus E")
	ID           string   `yaml:"id"`                      // Stable identifier used in topics
	Address      string   `yaml:"address,omitempty"`       // BLE address, empty = scan by prefix
	NamePrefixes []string `yaml:"name_prefixes,omitempty"` // Advertised name prefixes
	Manufacturer string   `yaml:"manufacturer,omitempty"`
	Model        string   `yaml:"model,omitempty"`
}

// BLEConfig contains adapter level settings
type BLEConfig struct {
	ScanTimeout    int  `yaml:"scan_timeout"`     // Seconds
	ConnectTimeout int  `yaml:"connect_timeout"`  // Seconds
	SightingMaxAge int  `yaml:"sighting_max_age"` // Seconds a scan result stays usable
	Reassemble     bool `yaml:"reassemble"`       // Join frames split across notifications
}

func (d *DeviceConfig) applyDefaults() {
	if d.Name == "" {
		d.Name = "Marstek"
	}
	if d.ID == "" {
		d.ID = deviceIDFrom(d.Name, d.Address)
	}
	if len(d.NamePrefixes) == 0 {
		d.NamePrefixes = append([]string(nil), protocol.DefaultNamePrefixes...)
	}
	if d.Manufacturer == "" {
		d.Manufacturer = "Marstek"
	}
}

// Validate validates the device configuration
func (d *DeviceConfig) Validate() error {
	if d.ID == "" {
		return invalid("device.id", "is not specified")
	}
	if strings.ContainsAny(d.ID, "/#+ ") {
		return invalid("device.id", "%q must not contain spaces or MQTT wildcards", d.ID)
	}
	if d.Address != "" && !macPattern.MatchString(d.Address) {
		return invalid("device.address", "%q is not a MAC address", d.Address)
	}
	if d.Address == "" && len(d.NamePrefixes) == 0 {
		return invalid("device.name_prefixes", "must not be empty when no address is pinned")
	}
	for _, p := range d.NamePrefixes {
		if p == "" {
			return invalid("device.name_prefixes", "contains an empty prefix")
		}
	}
	return nil
}

// deviceIDFrom derives a topic-safe identifier.
func deviceIDFrom(name, address string) string {
	base := strings.ToLower(name)
	if address != "" {
		base += "_" + strings.NewReplacer(":", "", "-", "").Replace(strings.ToLower(address))
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
