package netatmo

// DeviceKind identifies the hardware category of a module.
type DeviceKind int

const (
	DeviceUnknown DeviceKind = iota
	DeviceThermostat
	DeviceValve
	DeviceRelay
	DeviceOpenTherm
	DeviceModulating
)

// ParseDeviceKind maps a vendor module type to its kind. Unrecognized
// types parse to DeviceUnknown rather than failing, so new hardware does
// not break status decoding.
func ParseDeviceKind(moduleType string) DeviceKind {
	switch moduleType {
	case "NATherm1":
		return DeviceThermostat
	case "NRV":
		return DeviceValve
	case "NAPlug":
		return DeviceRelay
	case "OTH":
		return DeviceOpenTherm
	case "OTM":
		return DeviceModulating
	default:
		return DeviceUnknown
	}
}

// String returns the vendor wire name for the kind.
func (k DeviceKind) String() string {
	switch k {
	case DeviceThermostat:
		return "NATherm1"
	case DeviceValve:
		return "NRV"
	case DeviceRelay:
		return "NAPlug"
	case DeviceOpenTherm:
		return "OTH"
	case DeviceModulating:
		return "OTM"
	default:
		return "unknown"
	}
}

// DisplayName returns the human readable product name.
func (k DeviceKind) DisplayName() string {
	switch k {
	case DeviceThermostat:
		return "Smart Thermostat"
	case DeviceValve:
		return "Smart Radiator Valve"
	case DeviceRelay:
		return "Relay"
	case DeviceOpenTherm:
		return "OpenTherm Thermostat"
	case DeviceModulating:
		return "Modulating Thermostat"
	default:
		return "Unknown Device"
	}
}

// HasBattery reports whether the kind runs on batteries. Relays are mains
// powered.
func (k DeviceKind) HasBattery() bool {
	switch k {
	case DeviceThermostat, DeviceValve, DeviceOpenTherm, DeviceModulating:
		return true
	default:
		return false
	}
}

// ControlsBoiler reports whether the kind drives a boiler and therefore
// exposes boiler status and anticipation.
func (k DeviceKind) ControlsBoiler() bool {
	switch k {
	case DeviceThermostat, DeviceOpenTherm, DeviceModulating:
		return true
	default:
		return false
	}
}
