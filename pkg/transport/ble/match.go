package ble

import (
	"sort"
	"strings"
	"time"

	"marstek-ble-bridge/pkg/driver"
)

// sighting is one advertisement seen during a scan.
type sighting struct {
	handle driver.DeviceHandle
	seen   time.Time
}

// matchesName reports whether an advertised name carries one of the prefixes.
func matchesName(name string, prefixes []string) bool {
	if name == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// sameAddress compares MAC addresses ignoring case and separators.
func sameAddress(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToUpper(s)
		return strings.NewReplacer(":", "", "-", "").Replace(s)
	}
	return norm(a) != "" && norm(a) == norm(b)
}

// best picks the handle to connect to. A configured address wins; otherwise
// the strongest recent signal among devices with a matching name.
func best(sightings []sighting, address string, prefixes []string, maxAge time.Duration, now time.Time) (driver.DeviceHandle, bool) {
	var candidates []sighting
	for _, s := range sightings {
		if maxAge > 0 && now.Sub(s.seen) > maxAge {
			continue
		}
		if address != "" {
			if sameAddress(s.handle.Address, address) {
				return s.handle, true
			}
			continue
		}
		if matchesName(s.handle.Name, prefixes) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return driver.DeviceHandle{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].handle.RSSI > candidates[j].handle.RSSI
	})
	return candidates[0].handle, true
}
