package bridge

import (
	"thermbridge/internal/coordinator"
	"thermbridge/internal/netatmo"
)

// RoomView is the flattened per-room state served to API consumers: live
// status joined with the room name from the account structure.
type RoomView struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Reachable           bool    `json:"reachable"`
	MeasuredTemperature float64 `json:"measured_temperature"`
	SetpointTemperature float64 `json:"setpoint_temperature"`
	SetpointMode        string  `json:"setpoint_mode"`
	SetpointEndTime     int64   `json:"setpoint_end_time,omitempty"`
	Heating             bool    `json:"heating"`
	HeatingPowerRequest int     `json:"heating_power_request"`
	OpenWindow          bool    `json:"open_window"`
	Anticipating        bool    `json:"anticipating"`
}

// ModuleView is the flattened per-module state: hardware kind, derived
// battery and signal readings, and the room assignment.
type ModuleView struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Type             string                `json:"type"`
	Kind             string                `json:"kind"`
	RoomID           string                `json:"room_id,omitempty"`
	Reachable        bool                  `json:"reachable"`
	BatteryPercent   *int                  `json:"battery_percent,omitempty"`
	BatteryState     string                `json:"battery_state,omitempty"`
	RFStrength       int                   `json:"rf_strength,omitempty"`
	RFQuality        netatmo.SignalQuality `json:"rf_quality,omitempty"`
	WifiStrength     int                   `json:"wifi_strength,omitempty"`
	WifiQuality      netatmo.SignalQuality `json:"wifi_quality,omitempty"`
	BoilerActive     bool                  `json:"boiler_active"`
	Anticipating     bool                  `json:"anticipating"`
	FirmwareRevision int                   `json:"firmware_revision,omitempty"`
}

// RoomViews builds the room views of one home from a snapshot. Rooms
// missing from the account structure keep their id as the name.
func RoomViews(homeID string, snap *coordinator.Snapshot) []RoomView {
	names := make(map[string]string)
	if snap.HomesData != nil {
		if home := snap.HomesData.Home(homeID); home != nil {
			for _, room := range home.Rooms {
				names[room.ID] = room.Name
			}
		}
	}

	views := make([]RoomView, 0)
	if snap.HomeStatus == nil {
		return views
	}
	for _, room := range snap.HomeStatus.Home.Rooms {
		name := names[room.ID]
		if name == "" {
			name = room.ID
		}
		views = append(views, RoomView{
			ID:                  room.ID,
			Name:                name,
			Reachable:           room.Reachable,
			MeasuredTemperature: room.ThermMeasuredTemperature,
			SetpointTemperature: room.ThermSetpointTemperature,
			SetpointMode:        room.ThermSetpointMode,
			SetpointEndTime:     room.ThermSetpointEndTime,
			Heating:             room.Heating(),
			HeatingPowerRequest: room.HeatingPowerRequest,
			OpenWindow:          room.OpenWindow,
			Anticipating:        room.Anticipating,
		})
	}
	return views
}

// ModuleViews builds the module views of one home from a snapshot.
func ModuleViews(homeID string, snap *coordinator.Snapshot) []ModuleView {
	structure := make(map[string]netatmo.Module)
	if snap.HomesData != nil {
		if home := snap.HomesData.Home(homeID); home != nil {
			for _, mod := range home.Modules {
				structure[mod.ID] = mod
			}
		}
	}

	views := make([]ModuleView, 0)
	if snap.HomeStatus == nil {
		return views
	}
	for _, mod := range snap.HomeStatus.Home.Modules {
		kind := mod.Kind()
		view := ModuleView{
			ID:               mod.ID,
			Name:             mod.ID,
			Type:             mod.Type,
			Kind:             kind.DisplayName(),
			Reachable:        mod.IsReachable(),
			BoilerActive:     mod.BoilerActive(),
			Anticipating:     mod.Anticipating,
			FirmwareRevision: mod.FirmwareRevision,
		}
		if def, ok := structure[mod.ID]; ok {
			if def.Name != "" {
				view.Name = def.Name
			}
			view.RoomID = def.RoomID
		}
		if pct, ok := mod.BatteryPercent(); ok {
			view.BatteryPercent = &pct
			view.BatteryState = mod.BatteryState
		}
		if mod.RFStrength > 0 {
			view.RFStrength = mod.RFStrength
			view.RFQuality = netatmo.RFQuality(mod.RFStrength)
		}
		if mod.WifiStrength > 0 {
			view.WifiStrength = mod.WifiStrength
			view.WifiQuality = netatmo.WifiQuality(mod.WifiStrength)
		}
		views = append(views, view)
	}
	return views
}

// Rooms returns the live rooms of one home, joined with names from the
// account structure.
func (b *Bridge) Rooms(homeID string) ([]RoomView, error) {
	snap, err := b.Snapshot(homeID)
	if err != nil {
		return nil, err
	}
	return RoomViews(homeID, snap), nil
}

// Modules returns the live modules of one home, joined with names and
// room assignments from the account structure.
func (b *Bridge) Modules(homeID string) ([]ModuleView, error) {
	snap, err := b.Snapshot(homeID)
	if err != nil {
		return nil, err
	}
	return ModuleViews(homeID, snap), nil
}
