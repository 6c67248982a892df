package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"thermbridge/internal/coordinator"
	"thermbridge/internal/netatmo"
)

var (
	ErrNoHomes      = errors.New("no homes found in account")
	ErrHomeNotFound = errors.New("home not found")
	ErrNoSnapshot   = errors.New("no data available yet")
)

// ThermostatAPI is everything the bridge needs from the vendor client.
type ThermostatAPI interface {
	GetHomesData(ctx context.Context) (*netatmo.HomesData, error)
	GetHomeStatus(ctx context.Context, homeID string) (*netatmo.HomeStatus, error)
	SetRoomThermpoint(ctx context.Context, homeID, roomID, mode string, temp *float64, endtime *int64) (*netatmo.Envelope, error)
	SetThermMode(ctx context.Context, homeID, mode string, endtime *int64, scheduleID *string) (*netatmo.Envelope, error)
	GetSchedules(ctx context.Context, homeID string) ([]netatmo.Schedule, error)
	ConsecutiveFailures() int
}

// HomeInfo identifies one managed home.
type HomeInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HomeHealth is the polling health summary of one home.
type HomeHealth struct {
	HomeID               string     `json:"home_id"`
	HomeName             string     `json:"home_name"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	LastSuccessfulUpdate *time.Time `json:"last_successful_update"`
	SecondsSinceUpdate   *float64   `json:"seconds_since_last_update"`
	IntervalSeconds      float64    `json:"interval_seconds"`
	PushActive           bool       `json:"push_active"`
	Stale                bool       `json:"stale"`
}

// Bridge owns the vendor client and one coordinator per managed home. It
// is the single entry point the transports talk to, so nothing else has
// to track which homes exist.
type Bridge struct {
	api    ThermostatAPI
	logger *slog.Logger

	mu           sync.RWMutex
	coordinators map[string]*coordinator.Coordinator
	order        []string
	names        map[string]string
}

// New creates an empty Bridge. Bootstrap discovers the homes.
func New(api ThermostatAPI, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		api:          api,
		logger:       logger.With("component", "bridge"),
		coordinators: make(map[string]*coordinator.Coordinator),
		names:        make(map[string]string),
	}
}

// Bootstrap discovers homes and builds one coordinator per home. With an
// empty homeIDs every home on the account is managed; otherwise exactly
// the listed ones, and an unknown id is a hard error so a typo in the
// config does not silently drop a home. Listeners are attached to every
// coordinator.
func (b *Bridge) Bootstrap(ctx context.Context, homeIDs []string, baseInterval time.Duration, listeners ...coordinator.Listener) error {
	data, err := b.api.GetHomesData(ctx)
	if err != nil {
		return fmt.Errorf("discovering homes: %w", err)
	}
	if len(data.Homes) == 0 {
		return ErrNoHomes
	}

	selected := data.Homes
	if len(homeIDs) > 0 {
		selected = nil
		for _, id := range homeIDs {
			home := data.Home(id)
			if home == nil {
				return fmt.Errorf("%w: %q (account has: %s)", ErrHomeNotFound, id, homeNameList(data.Homes))
			}
			selected = append(selected, *home)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, home := range selected {
		coord := coordinator.New(b.api, home.ID, baseInterval, b.logger)
		for _, l := range listeners {
			coord.AddListener(l)
		}
		b.coordinators[home.ID] = coord
		b.order = append(b.order, home.ID)
		b.names[home.ID] = home.Name
		b.logger.Info("managing home", "home_id", home.ID, "name", home.Name)
	}
	return nil
}

// StartAll launches the polling loop of every coordinator.
func (b *Bridge) StartAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.order {
		go b.coordinators[id].Start()
	}
}

// StopAll stops every coordinator.
func (b *Bridge) StopAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.order {
		b.coordinators[id].Stop()
	}
}

// RefreshAll performs a blocking first refresh of every home. Individual
// failures are logged, not returned: the polling loops retry with
// backoff, and a vendor hiccup at boot should not take the service down.
func (b *Bridge) RefreshAll(ctx context.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.order {
		if _, err := b.coordinators[id].Refresh(ctx); err != nil {
			b.logger.Warn("initial refresh failed", "home_id", id, "error", err)
		}
	}
}

// Homes lists the managed homes in discovery order.
func (b *Bridge) Homes() []HomeInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	homes := make([]HomeInfo, 0, len(b.order))
	for _, id := range b.order {
		homes = append(homes, HomeInfo{ID: id, Name: b.names[id]})
	}
	return homes
}

// Coordinator returns the coordinator for one home.
func (b *Bridge) Coordinator(homeID string) (*coordinator.Coordinator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	coord, ok := b.coordinators[homeID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHomeNotFound, homeID)
	}
	return coord, nil
}

// Snapshot returns the current snapshot of one home.
func (b *Bridge) Snapshot(homeID string) (*coordinator.Snapshot, error) {
	coord, err := b.Coordinator(homeID)
	if err != nil {
		return nil, err
	}
	snap := coord.Snapshot()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Health returns the polling health summary of one home.
func (b *Bridge) Health(homeID string) (*HomeHealth, error) {
	coord, err := b.Coordinator(homeID)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	name := b.names[homeID]
	b.mu.RUnlock()

	health := &HomeHealth{
		HomeID:              homeID,
		HomeName:            name,
		ConsecutiveFailures: coord.ConsecutiveFailures(),
		IntervalSeconds:     coord.Interval().Seconds(),
		PushActive:          coord.PushActive(),
		Stale:               coord.IsDataStale(0),
	}
	if last, ok := coord.LastSuccess(); ok {
		health.LastSuccessfulUpdate = &last
	}
	if since, ok := coord.SinceLastSuccess(); ok {
		secs := since.Seconds()
		health.SecondsSinceUpdate = &secs
	}
	return health, nil
}

// IsStale reports whether the home's snapshot is older than maxAge (0
// selects the default threshold).
func (b *Bridge) IsStale(homeID string, maxAge time.Duration) (bool, error) {
	coord, err := b.Coordinator(homeID)
	if err != nil {
		return false, err
	}
	return coord.IsDataStale(maxAge), nil
}

// ForceRefresh refreshes one home now and reports whether the update
// succeeded.
func (b *Bridge) ForceRefresh(ctx context.Context, homeID string) (bool, error) {
	coord, err := b.Coordinator(homeID)
	if err != nil {
		return false, err
	}
	return coord.ForceRefresh(ctx), nil
}

// ClientFailures returns the vendor client's consecutive failure count
// for diagnostics.
func (b *Bridge) ClientFailures() int {
	return b.api.ConsecutiveFailures()
}

// HandlePushEvent fans a webhook notification out to every coordinator.
// It never returns an error: the push transport acknowledges regardless
// of what happens here.
func (b *Bridge) HandlePushEvent(event coordinator.PushEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.order {
		b.coordinators[id].HandlePush(event)
	}
}

func homeNameList(homes []netatmo.Home) string {
	ids := make([]string, 0, len(homes))
	for _, h := range homes {
		ids = append(ids, h.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}
