package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"thermbridge/internal/netatmo"
)

// Validation errors for mutation requests. Checked locally so an obviously
// bad request never consumes vendor rate budget.
var (
	ErrUnknownRoomMode       = errors.New("unknown room mode")
	ErrUnknownHomeMode       = errors.New("unknown home mode")
	ErrTemperatureRequired   = errors.New("temperature required for manual mode")
	ErrTemperatureOutOfRange = errors.New("temperature out of range")
	ErrTemperatureStep       = errors.New("temperature must align to half-degree steps")
	ErrScheduleRequired      = errors.New("schedule id required for schedule mode")
	ErrScheduleNotFound      = errors.New("schedule not found")
)

// SetpointRequest asks one room to change its thermostat target.
type SetpointRequest struct {
	HomeID  string
	RoomID  string
	Mode    string
	Temp    *float64
	EndTime *int64
}

// SetpointResult reports the applied change together with the vendor's
// raw reply.
type SetpointResult struct {
	HomeID  string            `json:"home_id"`
	RoomID  string            `json:"room_id"`
	Mode    string            `json:"mode"`
	Temp    *float64          `json:"temp,omitempty"`
	EndTime *int64            `json:"endtime,omitempty"`
	Vendor  *netatmo.Envelope `json:"vendor"`
}

// ModeRequest asks one home to change its heating mode.
type ModeRequest struct {
	HomeID     string
	Mode       string
	EndTime    *int64
	ScheduleID *string
}

// ModeResult reports the applied mode change together with the vendor's
// raw reply.
type ModeResult struct {
	HomeID     string            `json:"home_id"`
	Mode       string            `json:"mode"`
	EndTime    *int64            `json:"endtime,omitempty"`
	ScheduleID *string           `json:"schedule_id,omitempty"`
	Vendor     *netatmo.Envelope `json:"vendor"`
}

// ValidateRoomMode checks a setpoint mode against the vendor's accepted
// values.
func ValidateRoomMode(mode string) error {
	switch mode {
	case netatmo.RoomModeManual, netatmo.RoomModeMax, netatmo.RoomModeOff, netatmo.RoomModeHome:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownRoomMode, mode)
}

// ValidateHomeMode checks a home mode against the vendor's accepted
// values.
func ValidateHomeMode(mode string) error {
	switch mode {
	case netatmo.HomeModeSchedule, netatmo.HomeModeAway, netatmo.HomeModeFrostGuard, netatmo.HomeModeOff:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownHomeMode, mode)
}

// ValidateSetpointTemp checks range and half-degree alignment.
func ValidateSetpointTemp(temp float64) error {
	if temp < netatmo.MinSetpointTemp || temp > netatmo.MaxSetpointTemp {
		return fmt.Errorf("%w: %.1f not within %.1f..%.1f",
			ErrTemperatureOutOfRange, temp, netatmo.MinSetpointTemp, netatmo.MaxSetpointTemp)
	}
	if math.Mod(temp*2, 1) != 0 {
		return fmt.Errorf("%w: %v", ErrTemperatureStep, temp)
	}
	return nil
}

// SetRoomSetpoint validates and applies a room setpoint change, then
// schedules a refresh so the snapshot catches up with the new state.
func (b *Bridge) SetRoomSetpoint(ctx context.Context, req SetpointRequest) (*SetpointResult, error) {
	coord, err := b.Coordinator(req.HomeID)
	if err != nil {
		return nil, err
	}
	if err := ValidateRoomMode(req.Mode); err != nil {
		return nil, err
	}
	if req.Mode == netatmo.RoomModeManual && req.Temp == nil {
		return nil, ErrTemperatureRequired
	}
	if req.Temp != nil {
		if err := ValidateSetpointTemp(*req.Temp); err != nil {
			return nil, err
		}
	}

	env, err := b.api.SetRoomThermpoint(ctx, req.HomeID, req.RoomID, req.Mode, req.Temp, req.EndTime)
	if err != nil {
		return nil, err
	}

	b.logger.Info("room setpoint changed",
		"home_id", req.HomeID, "room_id", req.RoomID, "mode", req.Mode)
	coord.RequestRefresh()

	return &SetpointResult{
		HomeID:  req.HomeID,
		RoomID:  req.RoomID,
		Mode:    req.Mode,
		Temp:    req.Temp,
		EndTime: req.EndTime,
		Vendor:  env,
	}, nil
}

// SetHomeMode validates and applies a home mode change, then schedules a
// refresh.
func (b *Bridge) SetHomeMode(ctx context.Context, req ModeRequest) (*ModeResult, error) {
	coord, err := b.Coordinator(req.HomeID)
	if err != nil {
		return nil, err
	}
	if err := ValidateHomeMode(req.Mode); err != nil {
		return nil, err
	}
	if req.Mode == netatmo.HomeModeSchedule && (req.ScheduleID == nil || *req.ScheduleID == "") {
		return nil, ErrScheduleRequired
	}

	env, err := b.api.SetThermMode(ctx, req.HomeID, req.Mode, req.EndTime, req.ScheduleID)
	if err != nil {
		return nil, err
	}

	b.logger.Info("home mode changed", "home_id", req.HomeID, "mode", req.Mode)
	coord.RequestRefresh()

	return &ModeResult{
		HomeID:     req.HomeID,
		Mode:       req.Mode,
		EndTime:    req.EndTime,
		ScheduleID: req.ScheduleID,
		Vendor:     env,
	}, nil
}

// ListSchedules returns the heating schedules of one managed home.
func (b *Bridge) ListSchedules(ctx context.Context, homeID string) ([]netatmo.Schedule, error) {
	if _, err := b.Coordinator(homeID); err != nil {
		return nil, err
	}
	return b.api.GetSchedules(ctx, homeID)
}

// SetScheduleByName resolves a schedule name to its id and activates it.
// The not-found error lists the available names so the caller can fix the
// request without another round trip.
func (b *Bridge) SetScheduleByName(ctx context.Context, homeID, name string) (*ModeResult, error) {
	schedules, err := b.ListSchedules(ctx, homeID)
	if err != nil {
		return nil, err
	}

	for _, sched := range schedules {
		if sched.Name == name {
			id := sched.ID
			return b.SetHomeMode(ctx, ModeRequest{
				HomeID:     homeID,
				Mode:       netatmo.HomeModeSchedule,
				ScheduleID: &id,
			})
		}
	}

	names := make([]string, 0, len(schedules))
	for _, sched := range schedules {
		names = append(names, sched.Name)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("%w: %q (available: %s)", ErrScheduleNotFound, name, strings.Join(names, ", "))
}
