package netatmo

import "strings"

// SignalQuality is a coarse bucket for radio strength values.
type SignalQuality string

const (
	SignalExcellent SignalQuality = "excellent"
	SignalGood      SignalQuality = "good"
	SignalFair      SignalQuality = "fair"
	SignalPoor      SignalQuality = "poor"
)

// WifiQuality buckets a wifi_strength reading.
func WifiQuality(strength int) SignalQuality {
	switch {
	case strength >= 70:
		return SignalExcellent
	case strength >= 50:
		return SignalGood
	case strength >= 30:
		return SignalFair
	default:
		return SignalPoor
	}
}

// RFQuality buckets an rf_strength reading. The thresholds differ from
// wifi because the valve radio reports on a different scale.
func RFQuality(strength int) SignalQuality {
	switch {
	case strength >= 80:
		return SignalExcellent
	case strength >= 60:
		return SignalGood
	case strength >= 40:
		return SignalFair
	default:
		return SignalPoor
	}
}

// Named battery states reported by recent firmware, mapped to a rough
// percentage. States outside the map read as half full rather than empty.
var batteryStatePercent = map[string]int{
	"full":     100,
	"high":     75,
	"medium":   50,
	"low":      25,
	"very low": 10,
}

// Voltage ranges for the millivolt fallback used by older firmware.
// Valves run on a different cell chemistry than thermostats.
const (
	valveBatteryMinMV   = 2400
	valveBatteryMaxMV   = 3100
	defaultBatteryMinMV = 2200
	defaultBatteryMaxMV = 3200
)

// BatteryPercent estimates the module's battery charge. It prefers the
// named battery_state and falls back to interpolating the raw voltage.
// The second return is false when the module reports neither, which is
// the case for mains powered kinds.
func (m *ModuleStatus) BatteryPercent() (int, bool) {
	if m.BatteryState != "" {
		if pct, ok := batteryStatePercent[strings.ToLower(m.BatteryState)]; ok {
			return pct, true
		}
		return 50, true
	}

	if m.BatteryLevel > 0 {
		lo, hi := defaultBatteryMinMV, defaultBatteryMaxMV
		if m.Kind() == DeviceValve {
			lo, hi = valveBatteryMinMV, valveBatteryMaxMV
		}
		pct := (m.BatteryLevel - lo) * 100 / (hi - lo)
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return pct, true
	}

	return 0, false
}

// IsReachable reports module connectivity. Relays never carry the
// reachable flag, so their wifi signal stands in for it.
func (m *ModuleStatus) IsReachable() bool {
	if m.Kind() == DeviceRelay {
		return m.WifiStrength > 0
	}
	return m.Reachable
}

// BoilerActive reports whether the module is actively firing a boiler.
// Only boiler-controlling kinds ever return true.
func (m *ModuleStatus) BoilerActive() bool {
	return m.Kind().ControlsBoiler() && m.BoilerStatus != nil && *m.BoilerStatus
}
