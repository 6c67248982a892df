package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"thermbridge/internal/netatmo"
)

// Polling cadence bounds. The interval starts at DefaultUpdateInterval,
// backs off multiplicatively on failures and tightens to MinUpdateInterval
// while push notifications are arriving.
const (
	DefaultUpdateInterval = 60 * time.Second
	MinUpdateInterval     = 30 * time.Second
	MaxUpdateInterval     = 300 * time.Second

	failureBackoffMultiplier = 1.5
	maxBackoffExponent       = 5

	// How many consecutive failures may be bridged with cached data
	// before refreshes start failing hard.
	staleFailureTolerance = 3

	// DefaultStaleAge is the age beyond which a snapshot counts as stale
	// when the caller does not pick a threshold.
	DefaultStaleAge = 300 * time.Second

	// Upper bound for one full refresh cycle including the client's
	// internal retries.
	refreshTimeout = 5 * time.Minute
)

// ErrUpdateFailed wraps every refresh failure surfaced to callers. The
// vendor error class stays matchable through it.
var ErrUpdateFailed = errors.New("update failed")

// StatusAPI is the slice of the vendor client the coordinator polls.
type StatusAPI interface {
	GetHomesData(ctx context.Context) (*netatmo.HomesData, error)
	GetHomeStatus(ctx context.Context, homeID string) (*netatmo.HomeStatus, error)
}

// Snapshot is one combined structure and status capture for a home. A
// stale snapshot carries the content and timestamp of the last good
// capture with the failure flags set.
type Snapshot struct {
	HomesData        *netatmo.HomesData  `json:"homes_data"`
	HomeStatus       *netatmo.HomeStatus `json:"home_status"`
	Timestamp        time.Time           `json:"timestamp"`
	UpdateSuccessful bool                `json:"update_successful"`
	Stale            bool                `json:"stale,omitempty"`
	LastError        string              `json:"last_error,omitempty"`
}

// PushEvent is an inbound webhook notification. The payload stays raw; a
// push only ever triggers a full refetch, never a partial merge.
type PushEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Listener receives the outcome of every refresh. snap is the coordinator's
// current snapshot after the refresh; err is non-nil when the refresh
// failed hard.
type Listener interface {
	OnRefresh(homeID string, snap *Snapshot, err error)
}

// Coordinator polls one home and caches the latest snapshot. Reads never
// block on network traffic and overlapping refreshes collapse into the
// in-flight one.
type Coordinator struct {
	api    StatusAPI
	homeID string
	base   time.Duration
	logger *slog.Logger

	mu            sync.RWMutex
	snapshot      *Snapshot
	failures      int
	interval      time.Duration
	webhookActive bool
	lastSuccess   time.Time
	inflight      *inflight

	listeners []Listener

	wake     chan struct{}
	stopChan chan struct{}

	now func() time.Time
}

type inflight struct {
	done chan struct{}
	snap *Snapshot
	err  error
}

// New creates a Coordinator for one home. baseInterval 0 selects
// DefaultUpdateInterval.
func New(api StatusAPI, homeID string, baseInterval time.Duration, logger *slog.Logger) *Coordinator {
	if baseInterval <= 0 {
		baseInterval = DefaultUpdateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		api:      api,
		homeID:   homeID,
		base:     baseInterval,
		interval: baseInterval,
		logger:   logger.With("component", "coordinator", "home_id", homeID),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// AddListener registers a refresh listener. Must be called before Start.
func (c *Coordinator) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Start runs the polling loop until Stop is called. It blocks, so run it
// in a goroutine. The timer is re-armed after every cycle because the
// interval adapts between cycles.
func (c *Coordinator) Start() {
	c.logger.Info("coordinator started", "interval", c.Interval().String())
	timer := time.NewTimer(c.Interval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-c.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-c.stopChan:
			c.logger.Info("coordinator stopped")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		if _, err := c.Refresh(ctx); err != nil {
			c.logger.Error("scheduled refresh failed", "error", err)
		}
		cancel()

		timer.Reset(c.Interval())
	}
}

// Stop signals the polling loop to exit.
func (c *Coordinator) Stop() {
	close(c.stopChan)
}

// RequestRefresh pokes the polling loop to refresh now without blocking
// the caller.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Refresh fetches structure and status and swaps the snapshot. Callers
// arriving while a refresh is in flight wait for that one's result
// instead of issuing their own.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	if fl := c.inflight; fl != nil {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.snap, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflight{done: make(chan struct{})}
	c.inflight = fl
	c.mu.Unlock()

	snap, err := c.refresh(ctx)

	c.mu.Lock()
	fl.snap, fl.err = snap, err
	c.inflight = nil
	c.mu.Unlock()
	close(fl.done)

	return snap, err
}

func (c *Coordinator) refresh(ctx context.Context) (*Snapshot, error) {
	homesData, err := c.api.GetHomesData(ctx)
	var status *netatmo.HomeStatus
	if err == nil {
		status, err = c.api.GetHomeStatus(ctx, c.homeID)
	}

	if err == nil {
		snap := &Snapshot{
			HomesData:        homesData,
			HomeStatus:       status,
			Timestamp:        c.now(),
			UpdateSuccessful: true,
		}

		c.mu.Lock()
		recovered := c.failures
		c.failures = 0
		c.interval = c.base
		c.lastSuccess = snap.Timestamp
		c.snapshot = snap
		c.mu.Unlock()

		if recovered > 0 {
			c.logger.Info("connection recovered", "after_failures", recovered)
		}
		c.notify(snap, nil)
		return snap, nil
	}

	switch {
	case errors.Is(err, netatmo.ErrAuth):
		// Cached data does not help here: the credentials are dead until
		// an operator fixes them, so surface it loudly.
		c.backoff()
		wrapped := fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		c.logger.Error("authentication failed during refresh", "error", err)
		c.notify(c.Snapshot(), wrapped)
		return nil, wrapped

	case errors.Is(err, netatmo.ErrAPI):
		failures := c.backoff()

		c.mu.Lock()
		var stale *Snapshot
		if c.snapshot != nil && failures <= staleFailureTolerance {
			copied := *c.snapshot
			copied.UpdateSuccessful = false
			copied.Stale = true
			copied.LastError = err.Error()
			c.snapshot = &copied
			stale = &copied
		}
		c.mu.Unlock()

		if stale != nil {
			c.logger.Warn("refresh failed, serving cached data",
				"consecutive_failures", failures, "error", err)
			c.notify(stale, nil)
			return stale, nil
		}

		wrapped := fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		c.notify(c.Snapshot(), wrapped)
		return nil, wrapped

	default:
		c.backoff()
		wrapped := fmt.Errorf("%w: unexpected: %w", ErrUpdateFailed, err)
		c.logger.Error("unexpected error during refresh", "error", err)
		c.notify(c.Snapshot(), wrapped)
		return nil, wrapped
	}
}

// backoff records one failure and stretches the polling interval:
// base * 1.5^n, exponent capped at 5, interval capped at MaxUpdateInterval.
func (c *Coordinator) backoff() int {
	c.mu.Lock()
	c.failures++
	failures := c.failures

	exp := failures
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	next := time.Duration(float64(c.base) * math.Pow(failureBackoffMultiplier, float64(exp)))
	if next > MaxUpdateInterval {
		next = MaxUpdateInterval
	}
	c.interval = next
	c.mu.Unlock()

	c.logger.Warn("update failed, backing off",
		"consecutive_failures", failures, "next_interval", next.String())
	return failures
}

// HandlePush marks push delivery as live, tightens polling to
// MinUpdateInterval and triggers an immediate refresh. The payload is not
// merged into the snapshot.
func (c *Coordinator) HandlePush(event PushEvent) {
	c.mu.Lock()
	c.webhookActive = true
	c.interval = MinUpdateInterval
	c.mu.Unlock()

	c.logger.Debug("push event received", "event_type", event.Type)
	c.RequestRefresh()
}

// ForceRefresh refreshes immediately and reports whether the resulting
// snapshot came from a successful update.
func (c *Coordinator) ForceRefresh(ctx context.Context) bool {
	_, _ = c.Refresh(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot != nil && c.snapshot.UpdateSuccessful
}

// IsDataStale reports whether the snapshot is missing, flagged stale or
// older than maxAge. maxAge 0 selects DefaultStaleAge.
func (c *Coordinator) IsDataStale(maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultStaleAge
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || c.snapshot.Stale {
		return true
	}
	return c.now().Sub(c.snapshot.Timestamp) > maxAge
}

// Snapshot returns the current snapshot, nil before the first success.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// HomeID returns the home this coordinator polls.
func (c *Coordinator) HomeID() string { return c.homeID }

// ConsecutiveFailures returns the current failure streak.
func (c *Coordinator) ConsecutiveFailures() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failures
}

// Interval returns the current polling interval.
func (c *Coordinator) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// PushActive reports whether a push notification has ever arrived.
func (c *Coordinator) PushActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webhookActive
}

// LastSuccess returns the time of the last successful update, ok false
// when there has been none.
func (c *Coordinator) LastSuccess() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess, !c.lastSuccess.IsZero()
}

// SinceLastSuccess returns the age of the last successful update.
func (c *Coordinator) SinceLastSuccess() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastSuccess.IsZero() {
		return 0, false
	}
	return c.now().Sub(c.lastSuccess), true
}

func (c *Coordinator) notify(snap *Snapshot, err error) {
	for _, l := range c.listeners {
		l.OnRefresh(c.homeID, snap, err)
	}
}
