package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermbridge/internal/coordinator"
	"thermbridge/internal/netatmo"
)

type setpointCall struct {
	homeID  string
	roomID  string
	mode    string
	temp    *float64
	endtime *int64
}

type modeCall struct {
	homeID     string
	mode       string
	endtime    *int64
	scheduleID *string
}

type fakeThermostatAPI struct {
	mu sync.Mutex

	homesData *netatmo.HomesData
	statuses  map[string]*netatmo.HomeStatus
	homesErr  error
	statusErr error
	failures  int

	setpoints []setpointCall
	modes     []modeCall
}

var _ ThermostatAPI = (*fakeThermostatAPI)(nil)

func (f *fakeThermostatAPI) GetHomesData(ctx context.Context) (*netatmo.HomesData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.homesErr != nil {
		return nil, f.homesErr
	}
	return f.homesData, nil
}

func (f *fakeThermostatAPI) GetHomeStatus(ctx context.Context, homeID string) (*netatmo.HomeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if status, ok := f.statuses[homeID]; ok {
		return status, nil
	}
	return &netatmo.HomeStatus{Home: netatmo.StatusHome{ID: homeID}}, nil
}

func (f *fakeThermostatAPI) SetRoomThermpoint(ctx context.Context, homeID, roomID, mode string, temp *float64, endtime *int64) (*netatmo.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setpoints = append(f.setpoints, setpointCall{homeID, roomID, mode, temp, endtime})
	return &netatmo.Envelope{Status: "ok"}, nil
}

func (f *fakeThermostatAPI) SetThermMode(ctx context.Context, homeID, mode string, endtime *int64, scheduleID *string) (*netatmo.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, modeCall{homeID, mode, endtime, scheduleID})
	return &netatmo.Envelope{Status: "ok"}, nil
}

func (f *fakeThermostatAPI) GetSchedules(ctx context.Context, homeID string) ([]netatmo.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.homesErr != nil {
		return nil, f.homesErr
	}
	if home := f.homesData.Home(homeID); home != nil {
		return home.Schedules, nil
	}
	return []netatmo.Schedule{}, nil
}

func (f *fakeThermostatAPI) ConsecutiveFailures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

func testAccount() *netatmo.HomesData {
	return &netatmo.HomesData{
		Homes: []netatmo.Home{
			{
				ID:   "home-1",
				Name: "Main House",
				Rooms: []netatmo.Room{
					{ID: "room-1", Name: "Living Room", Type: "livingroom", ModuleIDs: []string{"mod-therm"}},
					{ID: "room-2", Name: "Bedroom", Type: "bedroom", ModuleIDs: []string{"mod-valve"}},
				},
				Modules: []netatmo.Module{
					{ID: "mod-relay", Name: "Boiler Relay", Type: "NAPlug"},
					{ID: "mod-therm", Name: "Hallway Thermostat", Type: "NATherm1", RoomID: "room-1", Bridge: "mod-relay"},
					{ID: "mod-valve", Name: "Bedroom Valve", Type: "NRV", RoomID: "room-2", Bridge: "mod-relay"},
				},
				Schedules: []netatmo.Schedule{
					{ID: "sched-1", Name: "Winter", Selected: true},
					{ID: "sched-2", Name: "Summer"},
				},
			},
			{ID: "home-2", Name: "Cabin"},
		},
	}
}

func testStatuses() map[string]*netatmo.HomeStatus {
	boilerOn := true
	return map[string]*netatmo.HomeStatus{
		"home-1": {
			Home: netatmo.StatusHome{
				ID: "home-1",
				Rooms: []netatmo.RoomStatus{
					{
						ID:                       "room-1",
						Reachable:                true,
						ThermMeasuredTemperature: 19.5,
						ThermSetpointTemperature: 21,
						ThermSetpointMode:        "manual",
						ThermSetpointEndTime:     1900000000,
						HeatingPowerRequest:      42,
					},
					{
						ID:                       "room-2",
						Reachable:                true,
						ThermMeasuredTemperature: 17.0,
						ThermSetpointTemperature: 16.0,
						ThermSetpointMode:        "schedule",
					},
				},
				Modules: []netatmo.ModuleStatus{
					{ID: "mod-relay", Type: "NAPlug", WifiStrength: 72},
					{
						ID: "mod-therm", Type: "NATherm1", Reachable: true,
						RFStrength: 85, BatteryState: "high", BoilerStatus: &boilerOn,
						FirmwareRevision: 222,
					},
					{
						ID: "mod-valve", Type: "NRV", Reachable: true,
						RFStrength: 55, BatteryLevel: 2750,
					},
				},
			},
		},
		"home-2": {Home: netatmo.StatusHome{ID: "home-2"}},
	}
}

func newTestBridge(t *testing.T, api *fakeThermostatAPI) *Bridge {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, logger)
}

func bootstrappedBridge(t *testing.T, api *fakeThermostatAPI, homeIDs []string) *Bridge {
	t.Helper()
	b := newTestBridge(t, api)
	require.NoError(t, b.Bootstrap(context.Background(), homeIDs, time.Minute))
	return b
}

func TestBridgeBootstrapManagesAllHomes(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)

	homes := b.Homes()
	require.Len(t, homes, 2)
	assert.Equal(t, HomeInfo{ID: "home-1", Name: "Main House"}, homes[0])
	assert.Equal(t, HomeInfo{ID: "home-2", Name: "Cabin"}, homes[1])
}

func TestBridgeBootstrapSelectsRequestedHomes(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, []string{"home-2"})

	homes := b.Homes()
	require.Len(t, homes, 1)
	assert.Equal(t, "home-2", homes[0].ID)

	_, err := b.Coordinator("home-1")
	assert.ErrorIs(t, err, ErrHomeNotFound)
}

func TestBridgeBootstrapRejectsUnknownHome(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := newTestBridge(t, api)

	err := b.Bootstrap(context.Background(), []string{"home-9"}, time.Minute)
	require.ErrorIs(t, err, ErrHomeNotFound)
	assert.Contains(t, err.Error(), "home-9")
	assert.Contains(t, err.Error(), "home-1, home-2")
}

func TestBridgeBootstrapEmptyAccount(t *testing.T) {
	api := &fakeThermostatAPI{homesData: &netatmo.HomesData{}}
	b := newTestBridge(t, api)

	err := b.Bootstrap(context.Background(), nil, time.Minute)
	assert.ErrorIs(t, err, ErrNoHomes)
}

func TestValidateRoomMode(t *testing.T) {
	for _, mode := range []string{"manual", "max", "off", "home"} {
		assert.NoError(t, ValidateRoomMode(mode), mode)
	}
	assert.ErrorIs(t, ValidateRoomMode("schedule"), ErrUnknownRoomMode)
	assert.ErrorIs(t, ValidateRoomMode("boost"), ErrUnknownRoomMode)
	assert.ErrorIs(t, ValidateRoomMode(""), ErrUnknownRoomMode)
}

func TestValidateHomeMode(t *testing.T) {
	for _, mode := range []string{"schedule", "away", "hg", "off"} {
		assert.NoError(t, ValidateHomeMode(mode), mode)
	}
	assert.ErrorIs(t, ValidateHomeMode("manual"), ErrUnknownHomeMode)
	assert.ErrorIs(t, ValidateHomeMode("frost"), ErrUnknownHomeMode)
}

func TestValidateSetpointTemp(t *testing.T) {
	tests := []struct {
		temp    float64
		wantErr error
	}{
		{5.0, nil},
		{21.5, nil},
		{30.0, nil},
		{4.5, ErrTemperatureOutOfRange},
		{30.5, ErrTemperatureOutOfRange},
		{21.3, ErrTemperatureStep},
		{19.25, ErrTemperatureStep},
	}
	for _, tt := range tests {
		err := ValidateSetpointTemp(tt.temp)
		if tt.wantErr == nil {
			assert.NoError(t, err, "temp %v", tt.temp)
		} else {
			assert.ErrorIs(t, err, tt.wantErr, "temp %v", tt.temp)
		}
	}
}

func TestBridgeSetRoomSetpoint(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)

	temp := 21.5
	endtime := int64(1900000000)
	result, err := b.SetRoomSetpoint(context.Background(), SetpointRequest{
		HomeID:  "home-1",
		RoomID:  "room-1",
		Mode:    "manual",
		Temp:    &temp,
		EndTime: &endtime,
	})
	require.NoError(t, err)

	require.Len(t, api.setpoints, 1)
	call := api.setpoints[0]
	assert.Equal(t, "home-1", call.homeID)
	assert.Equal(t, "room-1", call.roomID)
	assert.Equal(t, "manual", call.mode)
	require.NotNil(t, call.temp)
	assert.Equal(t, 21.5, *call.temp)
	require.NotNil(t, call.endtime)
	assert.Equal(t, int64(1900000000), *call.endtime)

	assert.Equal(t, "home-1", result.HomeID)
	assert.Equal(t, "manual", result.Mode)
	require.NotNil(t, result.Vendor)
	assert.Equal(t, "ok", result.Vendor.Status)
}

func TestBridgeSetRoomSetpointValidation(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)
	ctx := context.Background()

	_, err := b.SetRoomSetpoint(ctx, SetpointRequest{HomeID: "home-1", RoomID: "room-1", Mode: "manual"})
	assert.ErrorIs(t, err, ErrTemperatureRequired)

	bad := 50.0
	_, err = b.SetRoomSetpoint(ctx, SetpointRequest{HomeID: "home-1", RoomID: "room-1", Mode: "manual", Temp: &bad})
	assert.ErrorIs(t, err, ErrTemperatureOutOfRange)

	_, err = b.SetRoomSetpoint(ctx, SetpointRequest{HomeID: "home-1", RoomID: "room-1", Mode: "boost"})
	assert.ErrorIs(t, err, ErrUnknownRoomMode)

	_, err = b.SetRoomSetpoint(ctx, SetpointRequest{HomeID: "home-9", RoomID: "room-1", Mode: "home"})
	assert.ErrorIs(t, err, ErrHomeNotFound)

	assert.Empty(t, api.setpoints)
}

func TestBridgeSetHomeMode(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)
	ctx := context.Background()

	result, err := b.SetHomeMode(ctx, ModeRequest{HomeID: "home-1", Mode: "away"})
	require.NoError(t, err)
	assert.Equal(t, "away", result.Mode)
	require.Len(t, api.modes, 1)
	assert.Equal(t, "away", api.modes[0].mode)
	assert.Nil(t, api.modes[0].scheduleID)

	_, err = b.SetHomeMode(ctx, ModeRequest{HomeID: "home-1", Mode: "schedule"})
	assert.ErrorIs(t, err, ErrScheduleRequired)

	_, err = b.SetHomeMode(ctx, ModeRequest{HomeID: "home-1", Mode: "party"})
	assert.ErrorIs(t, err, ErrUnknownHomeMode)
}

func TestBridgeSetScheduleByName(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)

	result, err := b.SetScheduleByName(context.Background(), "home-1", "Summer")
	require.NoError(t, err)
	assert.Equal(t, "schedule", result.Mode)
	require.NotNil(t, result.ScheduleID)
	assert.Equal(t, "sched-2", *result.ScheduleID)

	require.Len(t, api.modes, 1)
	require.NotNil(t, api.modes[0].scheduleID)
	assert.Equal(t, "sched-2", *api.modes[0].scheduleID)
}

func TestBridgeSetScheduleByNameNotFound(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)

	_, err := b.SetScheduleByName(context.Background(), "home-1", "Holiday")
	require.ErrorIs(t, err, ErrScheduleNotFound)
	assert.Contains(t, err.Error(), "Summer, Winter")
	assert.Empty(t, api.modes)
}

func TestBridgeSnapshotBeforeFirstRefresh(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)

	_, err := b.Snapshot("home-1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestBridgeRoomViews(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount(), statuses: testStatuses()}
	b := bootstrappedBridge(t, api, []string{"home-1"})
	b.RefreshAll(context.Background())

	rooms, err := b.Rooms("home-1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	living := rooms[0]
	assert.Equal(t, "room-1", living.ID)
	assert.Equal(t, "Living Room", living.Name)
	assert.True(t, living.Reachable)
	assert.Equal(t, 19.5, living.MeasuredTemperature)
	assert.Equal(t, 21.0, living.SetpointTemperature)
	assert.Equal(t, "manual", living.SetpointMode)
	assert.Equal(t, int64(1900000000), living.SetpointEndTime)
	assert.True(t, living.Heating)

	bedroom := rooms[1]
	assert.Equal(t, "Bedroom", bedroom.Name)
	assert.False(t, bedroom.Heating)
}

func TestBridgeModuleViews(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount(), statuses: testStatuses()}
	b := bootstrappedBridge(t, api, []string{"home-1"})
	b.RefreshAll(context.Background())

	modules, err := b.Modules("home-1")
	require.NoError(t, err)
	require.Len(t, modules, 3)

	byID := make(map[string]ModuleView)
	for _, m := range modules {
		byID[m.ID] = m
	}

	relay := byID["mod-relay"]
	assert.Equal(t, "Boiler Relay", relay.Name)
	assert.Equal(t, "Relay", relay.Kind)
	assert.True(t, relay.Reachable)
	assert.Nil(t, relay.BatteryPercent)
	assert.Equal(t, netatmo.SignalExcellent, relay.WifiQuality)

	therm := byID["mod-therm"]
	assert.Equal(t, "Hallway Thermostat", therm.Name)
	assert.Equal(t, "Smart Thermostat", therm.Kind)
	assert.Equal(t, "room-1", therm.RoomID)
	require.NotNil(t, therm.BatteryPercent)
	assert.Equal(t, 75, *therm.BatteryPercent)
	assert.Equal(t, netatmo.SignalExcellent, therm.RFQuality)
	assert.True(t, therm.BoilerActive)

	valve := byID["mod-valve"]
	assert.Equal(t, "Smart Radiator Valve", valve.Kind)
	require.NotNil(t, valve.BatteryPercent)
	assert.Equal(t, 50, *valve.BatteryPercent)
	assert.Equal(t, netatmo.SignalFair, valve.RFQuality)
	assert.False(t, valve.BoilerActive)
}

func TestBridgeHealth(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount(), statuses: testStatuses()}
	b := bootstrappedBridge(t, api, []string{"home-1"})
	b.RefreshAll(context.Background())

	health, err := b.Health("home-1")
	require.NoError(t, err)
	assert.Equal(t, "home-1", health.HomeID)
	assert.Equal(t, "Main House", health.HomeName)
	assert.Equal(t, 0, health.ConsecutiveFailures)
	assert.Equal(t, 60.0, health.IntervalSeconds)
	assert.False(t, health.PushActive)
	assert.False(t, health.Stale)
	require.NotNil(t, health.LastSuccessfulUpdate)
	require.NotNil(t, health.SecondsSinceUpdate)
	assert.Less(t, *health.SecondsSinceUpdate, 5.0)
}

func TestBridgeForceRefresh(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount(), statuses: testStatuses()}
	b := bootstrappedBridge(t, api, []string{"home-1"})

	ok, err := b.ForceRefresh(context.Background(), "home-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.ForceRefresh(context.Background(), "home-9")
	assert.ErrorIs(t, err, ErrHomeNotFound)
}

func TestBridgeHandlePushEventFanOut(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount()}
	b := bootstrappedBridge(t, api, nil)

	b.HandlePushEvent(coordinator.PushEvent{Type: "webhook_activation"})

	for _, home := range b.Homes() {
		coord, err := b.Coordinator(home.ID)
		require.NoError(t, err)
		assert.True(t, coord.PushActive(), home.ID)
	}
}

func TestRedact(t *testing.T) {
	doc := map[string]any{
		"name": "bridge",
		"netatmo": map[string]any{
			"client_id":     "abc",
			"client_secret": "def",
			"base_url":      "https://api.netatmo.com/api/",
		},
		"homes": []any{
			map[string]any{"ID": "home-1", "rooms": 3},
		},
	}

	redacted, ok := Redact(doc).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "bridge", redacted["name"])
	nested := redacted["netatmo"].(map[string]any)
	assert.Equal(t, Redacted, nested["client_id"])
	assert.Equal(t, Redacted, nested["client_secret"])
	assert.Equal(t, "https://api.netatmo.com/api/", nested["base_url"])

	first := redacted["homes"].([]any)[0].(map[string]any)
	assert.Equal(t, Redacted, first["ID"], "redaction is case-insensitive")
	assert.Equal(t, 3, first["rooms"])

	// The input document is left untouched.
	assert.Equal(t, "abc", doc["netatmo"].(map[string]any)["client_id"])
}

func TestBridgeDiagnostics(t *testing.T) {
	api := &fakeThermostatAPI{homesData: testAccount(), statuses: testStatuses(), failures: 2}
	b := bootstrappedBridge(t, api, []string{"home-1"})
	b.RefreshAll(context.Background())

	diag, err := b.Diagnostics(map[string]any{
		"api_key": "secret",
		"port":    8080,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, diag["client_consecutive_failures"])

	cfg := diag["config"].(map[string]any)
	assert.Equal(t, Redacted, cfg["api_key"])
	assert.Equal(t, float64(8080), cfg["port"])

	homes := diag["homes"].(map[string]any)
	entry := homes["home-1"].(map[string]any)
	assert.Equal(t, 0, entry["consecutive_failures"])
	assert.Equal(t, false, entry["stale"])

	snap := entry["snapshot"].(map[string]any)
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"id":"home-1"`)
	assert.Contains(t, string(raw), Redacted)
}
