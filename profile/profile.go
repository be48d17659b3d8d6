// Package profile classifies the client environment into coarse device and
// network tiers and maps those tiers to concurrency and memory ceilings.
//
// The tiers are lookup keys only; nothing else in the engine branches on them.
package profile

import "fmt"

// DeviceProfile is the capability tier of the client device.
type DeviceProfile int

const (
	DeviceLow DeviceProfile = iota
	DeviceMid
	DeviceHigh
)

func (d DeviceProfile) String() string {
	switch d {
	case DeviceLow:
		return "low"
	case DeviceMid:
		return "mid"
	case DeviceHigh:
		return "high"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// MarshalText renders the tier name.
func (d DeviceProfile) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// NetworkProfile is the effective throughput tier of the client network.
type NetworkProfile int

const (
	NetworkSlow NetworkProfile = iota
	NetworkMedium
	NetworkFast
)

func (n NetworkProfile) String() string {
	switch n {
	case NetworkSlow:
		return "slow"
	case NetworkMedium:
		return "medium"
	case NetworkFast:
		return "fast"
	default:
		return fmt.Sprintf("network(%d)", int(n))
	}
}

// MarshalText renders the tier name.
func (n NetworkProfile) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

// ParseDevice converts a tier name ("low", "mid", "high") to a DeviceProfile.
func ParseDevice(s string) (DeviceProfile, error) {
	for _, d := range []DeviceProfile{DeviceLow, DeviceMid, DeviceHigh} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("profile: unknown device tier %q", s)
}

// ParseNetwork converts a tier name ("slow", "medium", "fast") to a NetworkProfile.
func ParseNetwork(s string) (NetworkProfile, error) {
	for _, n := range []NetworkProfile{NetworkSlow, NetworkMedium, NetworkFast} {
		if n.String() == s {
			return n, nil
		}
	}
	return 0, fmt.Errorf("profile: unknown network tier %q", s)
}

// Viewport width thresholds (CSS pixels).
const (
	narrowViewport = 768
	wideViewport   = 1440
)

// ClassifyDevice derives the device tier from the viewport width and a
// mobile hint. ok=false means no viewport signal was available.
func ClassifyDevice(width int, mobile, ok bool) DeviceProfile {
	if !ok || width <= 0 {
		if mobile {
			return DeviceLow
		}
		return DeviceMid
	}
	switch {
	case width < narrowViewport, mobile && width < 1024:
		return DeviceLow
	case width < wideViewport, mobile:
		return DeviceMid
	default:
		return DeviceHigh
	}
}

// ClassifyConnection maps a platform effective-connection hint
// ("slow-2g", "2g", "3g", "4g") to a network tier.
func ClassifyConnection(effective string) (NetworkProfile, bool) {
	switch effective {
	case "slow-2g", "2g":
		return NetworkSlow, true
	case "3g":
		return NetworkMedium, true
	case "4g":
		return NetworkFast, true
	}
	return 0, false
}
