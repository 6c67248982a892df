package logging

import (
	"context"
	"log/slog"
	"time"

	"thermbridge/internal/bridge"
	"thermbridge/internal/netatmo"
)

// ThermostatAPILogger wraps a ThermostatAPI and logs all vendor calls.
// Reads log at debug, mutations at info.
type ThermostatAPILogger struct {
	api    bridge.ThermostatAPI
	logger *slog.Logger
}

// NewThermostatAPILogger creates a new logging decorator for a ThermostatAPI.
func NewThermostatAPILogger(api bridge.ThermostatAPI, logger *slog.Logger) bridge.ThermostatAPI {
	return &ThermostatAPILogger{
		api:    api,
		logger: logger.With("interface", "ThermostatAPI"),
	}
}

func (l *ThermostatAPILogger) GetHomesData(ctx context.Context) (*netatmo.HomesData, error) {
	start := time.Now()
	l.logger.Debug("GetHomesData called")

	data, err := l.api.GetHomesData(ctx)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("GetHomesData failed",
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Debug("GetHomesData completed",
		"homes", len(data.Homes),
		"duration", duration)

	return data, nil
}

func (l *ThermostatAPILogger) GetHomeStatus(ctx context.Context, homeID string) (*netatmo.HomeStatus, error) {
	start := time.Now()
	l.logger.Debug("GetHomeStatus called",
		"home_id", homeID)

	status, err := l.api.GetHomeStatus(ctx, homeID)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("GetHomeStatus failed",
			"home_id", homeID,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Debug("GetHomeStatus completed",
		"home_id", homeID,
		"rooms", len(status.Home.Rooms),
		"modules", len(status.Home.Modules),
		"duration", duration)

	return status, nil
}

func (l *ThermostatAPILogger) SetRoomThermpoint(ctx context.Context, homeID, roomID, mode string, temp *float64, endtime *int64) (*netatmo.Envelope, error) {
	start := time.Now()
	args := []any{"home_id", homeID, "room_id", roomID, "mode", mode}
	if temp != nil {
		args = append(args, "temp", *temp)
	}
	if endtime != nil {
		args = append(args, "endtime", *endtime)
	}
	l.logger.Info("SetRoomThermpoint called", args...)

	env, err := l.api.SetRoomThermpoint(ctx, homeID, roomID, mode, temp, endtime)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("SetRoomThermpoint failed",
			"home_id", homeID,
			"room_id", roomID,
			"mode", mode,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Info("SetRoomThermpoint completed", append(args, "duration", duration)...)

	return env, nil
}

func (l *ThermostatAPILogger) SetThermMode(ctx context.Context, homeID, mode string, endtime *int64, scheduleID *string) (*netatmo.Envelope, error) {
	start := time.Now()
	args := []any{"home_id", homeID, "mode", mode}
	if endtime != nil {
		args = append(args, "endtime", *endtime)
	}
	if scheduleID != nil {
		args = append(args, "schedule_id", *scheduleID)
	}
	l.logger.Info("SetThermMode called", args...)

	env, err := l.api.SetThermMode(ctx, homeID, mode, endtime, scheduleID)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("SetThermMode failed",
			"home_id", homeID,
			"mode", mode,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Info("SetThermMode completed", append(args, "duration", duration)...)

	return env, nil
}

func (l *ThermostatAPILogger) GetSchedules(ctx context.Context, homeID string) ([]netatmo.Schedule, error) {
	start := time.Now()
	l.logger.Debug("GetSchedules called",
		"home_id", homeID)

	schedules, err := l.api.GetSchedules(ctx, homeID)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("GetSchedules failed",
			"home_id", homeID,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Debug("GetSchedules completed",
		"home_id", homeID,
		"count", len(schedules),
		"duration", duration)

	return schedules, nil
}

// ConsecutiveFailures is a local counter read, not a vendor call, so it is
// passed through without logging.
func (l *ThermostatAPILogger) ConsecutiveFailures() int {
	return l.api.ConsecutiveFailures()
}
