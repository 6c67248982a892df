package netatmo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDeviceKind(t *testing.T) {
	tests := []struct {
		moduleType string
		want       DeviceKind
		display    string
	}{
		{"NATherm1", DeviceThermostat, "Smart Thermostat"},
		{"NRV", DeviceValve, "Smart Radiator Valve"},
		{"NAPlug", DeviceRelay, "Relay"},
		{"OTH", DeviceOpenTherm, "OpenTherm Thermostat"},
		{"OTM", DeviceModulating, "Modulating Thermostat"},
		{"NAFutureGadget", DeviceUnknown, "Unknown Device"},
		{"", DeviceUnknown, "Unknown Device"},
	}
	for _, tt := range tests {
		t.Run(tt.moduleType, func(t *testing.T) {
			kind := ParseDeviceKind(tt.moduleType)
			assert.Equal(t, tt.want, kind)
			assert.Equal(t, tt.display, kind.DisplayName())
		})
	}
}

func TestDeviceKindTraits(t *testing.T) {
	assert.True(t, DeviceValve.HasBattery())
	assert.True(t, DeviceThermostat.HasBattery())
	assert.False(t, DeviceRelay.HasBattery())
	assert.False(t, DeviceUnknown.HasBattery())

	assert.True(t, DeviceThermostat.ControlsBoiler())
	assert.True(t, DeviceOpenTherm.ControlsBoiler())
	assert.True(t, DeviceModulating.ControlsBoiler())
	assert.False(t, DeviceValve.ControlsBoiler())
	assert.False(t, DeviceRelay.ControlsBoiler())
}

func TestBatteryPercentFromState(t *testing.T) {
	tests := []struct {
		state string
		want  int
	}{
		{"full", 100},
		{"high", 75},
		{"medium", 50},
		{"low", 25},
		{"very low", 10},
		{"Full", 100},
		{"mystery", 50},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			m := ModuleStatus{Type: "NRV", BatteryState: tt.state}
			pct, ok := m.BatteryPercent()
			assert.True(t, ok)
			assert.Equal(t, tt.want, pct)
		})
	}
}

func TestBatteryPercentFromVoltage(t *testing.T) {
	tests := []struct {
		name       string
		moduleType string
		millivolts int
		want       int
	}{
		{"valve full", "NRV", 3100, 100},
		{"valve mid", "NRV", 2750, 50},
		{"valve below range clamps", "NRV", 2300, 0},
		{"valve above range clamps", "NRV", 3300, 100},
		{"thermostat mid", "NATherm1", 2700, 50},
		{"thermostat low", "NATherm1", 2300, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ModuleStatus{Type: tt.moduleType, BatteryLevel: tt.millivolts}
			pct, ok := m.BatteryPercent()
			assert.True(t, ok)
			assert.Equal(t, tt.want, pct)
		})
	}
}

func TestBatteryPercentAbsent(t *testing.T) {
	m := ModuleStatus{Type: "NAPlug"}
	_, ok := m.BatteryPercent()
	assert.False(t, ok)
}

func TestSignalQualityBuckets(t *testing.T) {
	assert.Equal(t, SignalExcellent, WifiQuality(70))
	assert.Equal(t, SignalGood, WifiQuality(69))
	assert.Equal(t, SignalGood, WifiQuality(50))
	assert.Equal(t, SignalFair, WifiQuality(49))
	assert.Equal(t, SignalFair, WifiQuality(30))
	assert.Equal(t, SignalPoor, WifiQuality(29))

	assert.Equal(t, SignalExcellent, RFQuality(80))
	assert.Equal(t, SignalGood, RFQuality(79))
	assert.Equal(t, SignalGood, RFQuality(60))
	assert.Equal(t, SignalFair, RFQuality(59))
	assert.Equal(t, SignalFair, RFQuality(40))
	assert.Equal(t, SignalPoor, RFQuality(39))
}

func TestModuleReachability(t *testing.T) {
	relayOnline := ModuleStatus{Type: "NAPlug", WifiStrength: 60}
	relayOffline := ModuleStatus{Type: "NAPlug"}
	valveOnline := ModuleStatus{Type: "NRV", Reachable: true}
	valveOffline := ModuleStatus{Type: "NRV", Reachable: false, RFStrength: 80}

	assert.True(t, relayOnline.IsReachable())
	assert.False(t, relayOffline.IsReachable())
	assert.True(t, valveOnline.IsReachable())
	assert.False(t, valveOffline.IsReachable(), "rf strength does not imply reachability")
}

func TestBoilerActive(t *testing.T) {
	on := true
	off := false

	therm := ModuleStatus{Type: "NATherm1", BoilerStatus: &on}
	assert.True(t, therm.BoilerActive())

	thermOff := ModuleStatus{Type: "NATherm1", BoilerStatus: &off}
	assert.False(t, thermOff.BoilerActive())

	thermUnknown := ModuleStatus{Type: "NATherm1"}
	assert.False(t, thermUnknown.BoilerActive())

	// A valve never drives the boiler even if the field shows up.
	valve := ModuleStatus{Type: "NRV", BoilerStatus: &on}
	assert.False(t, valve.BoilerActive())
}
