package netatmo

import "encoding/json"

// Room setpoint modes accepted by setroomthermpoint.
const (
	RoomModeManual   = "manual"
	RoomModeMax      = "max"
	RoomModeOff      = "off"
	RoomModeHome     = "home"
	RoomModeSchedule = "schedule"
)

// Home heating modes accepted by setthermmode.
const (
	HomeModeSchedule   = "schedule"
	HomeModeAway       = "away"
	HomeModeFrostGuard = "hg"
	HomeModeOff        = "off"
)

// Setpoint temperature limits enforced before a request leaves the process.
const (
	MinSetpointTemp  = 5.0
	MaxSetpointTemp  = 30.0
	SetpointTempStep = 0.5
)

// Envelope is the vendor's response wrapper. Body stays raw so mutation
// replies can be passed through to callers without re-encoding losses.
type Envelope struct {
	Status     string          `json:"status"`
	Body       json.RawMessage `json:"body,omitempty"`
	Error      *ErrorDetail    `json:"error,omitempty"`
	TimeExec   float64         `json:"time_exec,omitempty"`
	TimeServer int64           `json:"time_server,omitempty"`
}

// errorInfo extracts the vendor code and message, with the documented
// fallbacks for envelopes that omit them.
func (e *Envelope) errorInfo() (code, message string) {
	code, message = "unknown", "unknown error"
	if e.Error == nil {
		return code, message
	}
	if e.Error.Code != "" {
		code = string(e.Error.Code)
	}
	if e.Error.Message != "" {
		message = e.Error.Message
	}
	return code, message
}

// ErrorDetail is the error object inside a failed envelope.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorCode is the vendor error code. Some endpoints send it as a JSON
// number, others as a string, so decoding accepts both.
type ErrorCode string

func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ErrorCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ErrorCode(n.String())
	return nil
}

// HomesData is the decoded body of a homesdata response: account structure,
// covering every home the credentials can see.
type HomesData struct {
	Homes []Home `json:"homes"`
	User  *User  `json:"user,omitempty"`
}

// Home returns the home with the given id, or nil.
func (d *HomesData) Home(homeID string) *Home {
	for i := range d.Homes {
		if d.Homes[i].ID == homeID {
			return &d.Homes[i]
		}
	}
	return nil
}

// Home is the static structure of one home: rooms, installed modules and
// the heating schedules configured for it.
type Home struct {
	ID                           string     `json:"id"`
	Name                         string     `json:"name"`
	Country                      string     `json:"country,omitempty"`
	Timezone                     string     `json:"timezone,omitempty"`
	Rooms                        []Room     `json:"rooms,omitempty"`
	Modules                      []Module   `json:"modules,omitempty"`
	Schedules                    []Schedule `json:"schedules,omitempty"`
	ThermMode                    string     `json:"therm_mode,omitempty"`
	ThermSetpointDefaultDuration int        `json:"therm_setpoint_default_duration,omitempty"`
}

// Room is a room definition from homesdata. Status lives in RoomStatus.
type Room struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	ModuleIDs []string `json:"module_ids,omitempty"`
}

// Module is a module definition from homesdata. Status lives in
// ModuleStatus.
type Module struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	RoomID         string   `json:"room_id,omitempty"`
	Bridge         string   `json:"bridge,omitempty"`
	ModulesBridged []string `json:"modules_bridged,omitempty"`
	SetupDate      int64    `json:"setup_date,omitempty"`
}

// Kind returns the hardware category of the module.
func (m *Module) Kind() DeviceKind { return ParseDeviceKind(m.Type) }

// Schedule is a named heating schedule attached to a home.
type Schedule struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type,omitempty"`
	Default  bool    `json:"default,omitempty"`
	Selected bool    `json:"selected,omitempty"`
	AwayTemp float64 `json:"away_temp,omitempty"`
	HgTemp   float64 `json:"hg_temp,omitempty"`
}

// User is the account owner section of homesdata.
type User struct {
	Email  string `json:"email,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// HomeStatus is the decoded body of a homestatus response: live state for
// one home.
type HomeStatus struct {
	Home StatusHome `json:"home"`
}

// StatusHome carries the live room and module state of one home.
type StatusHome struct {
	ID      string         `json:"id"`
	Rooms   []RoomStatus   `json:"rooms,omitempty"`
	Modules []ModuleStatus `json:"modules,omitempty"`
}

// Room returns the live state of one room, or nil.
func (h *StatusHome) Room(roomID string) *RoomStatus {
	for i := range h.Rooms {
		if h.Rooms[i].ID == roomID {
			return &h.Rooms[i]
		}
	}
	return nil
}

// Module returns the live state of one module, or nil.
func (h *StatusHome) Module(moduleID string) *ModuleStatus {
	for i := range h.Modules {
		if h.Modules[i].ID == moduleID {
			return &h.Modules[i]
		}
	}
	return nil
}

// RoomStatus is the live thermostat state of one room.
type RoomStatus struct {
	ID                       string  `json:"id"`
	Reachable                bool    `json:"reachable,omitempty"`
	ThermMeasuredTemperature float64 `json:"therm_measured_temperature,omitempty"`
	ThermSetpointTemperature float64 `json:"therm_setpoint_temperature,omitempty"`
	ThermSetpointMode        string  `json:"therm_setpoint_mode,omitempty"`
	ThermSetpointStartTime   int64   `json:"therm_setpoint_start_time,omitempty"`
	ThermSetpointEndTime     int64   `json:"therm_setpoint_end_time,omitempty"`
	HeatingPowerRequest      int     `json:"heating_power_request,omitempty"`
	OpenWindow               bool    `json:"open_window,omitempty"`
	Anticipating             bool    `json:"anticipating,omitempty"`
}

// Heating reports whether the room is currently calling for heat.
func (r *RoomStatus) Heating() bool { return r.HeatingPowerRequest > 0 }

// ModuleStatus is the live state of one module. BatteryLevel is the raw
// battery voltage in millivolts; BoilerStatus is a pointer because the
// field only exists on boiler-controlling kinds.
type ModuleStatus struct {
	ID                      string `json:"id"`
	Type                    string `json:"type"`
	Reachable               bool   `json:"reachable,omitempty"`
	RFStrength              int    `json:"rf_strength,omitempty"`
	WifiStrength            int    `json:"wifi_strength,omitempty"`
	BatteryState            string `json:"battery_state,omitempty"`
	BatteryLevel            int    `json:"battery_level,omitempty"`
	FirmwareRevision        int    `json:"firmware_revision,omitempty"`
	BoilerStatus            *bool  `json:"boiler_status,omitempty"`
	BoilerValveComfortBoost bool   `json:"boiler_valve_comfort_boost,omitempty"`
	Anticipating            bool   `json:"anticipating,omitempty"`
}

// Kind returns the hardware category of the module.
func (m *ModuleStatus) Kind() DeviceKind { return ParseDeviceKind(m.Type) }
