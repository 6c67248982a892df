package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"thermbridge/internal/netatmo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	homesData   *netatmo.HomesData
	homeStatus  *netatmo.HomeStatus
	homesErr    error
	statusErr   error
	homesCalls  int
	statusCalls int
	block       chan struct{}
}

func (f *fakeAPI) GetHomesData(ctx context.Context) (*netatmo.HomesData, error) {
	f.mu.Lock()
	f.homesCalls++
	block := f.block
	err := f.homesErr
	data := f.homesData
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *fakeAPI) GetHomeStatus(ctx context.Context, homeID string) (*netatmo.HomeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.homeStatus, nil
}

func (f *fakeAPI) setErrors(homesErr, statusErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homesErr = homesErr
	f.statusErr = statusErr
}

func (f *fakeAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.homesCalls, f.statusCalls
}

var _ StatusAPI = (*fakeAPI)(nil)

type recordedRefresh struct {
	homeID string
	snap   *Snapshot
	err    error
}

type recordingListener struct {
	mu     sync.Mutex
	events []recordedRefresh
}

func (l *recordingListener) OnRefresh(homeID string, snap *Snapshot, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedRefresh{homeID, snap, err})
}

func (l *recordingListener) all() []recordedRefresh {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRefresh(nil), l.events...)
}

func testHomesData() *netatmo.HomesData {
	return &netatmo.HomesData{Homes: []netatmo.Home{{
		ID:   "h1",
		Name: "Main",
		Rooms: []netatmo.Room{
			{ID: "r1", Name: "Living Room"},
		},
		Schedules: []netatmo.Schedule{
			{ID: "s1", Name: "Winter", Selected: true},
		},
	}}}
}

func testHomeStatus() *netatmo.HomeStatus {
	return &netatmo.HomeStatus{Home: netatmo.StatusHome{
		ID: "h1",
		Rooms: []netatmo.RoomStatus{
			{ID: "r1", Reachable: true, ThermMeasuredTemperature: 19.5, ThermSetpointTemperature: 21, ThermSetpointMode: "schedule"},
		},
	}}
}

func newTestCoordinator(api StatusAPI) *Coordinator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, "h1", 0, logger)
}

func TestCoordinatorRefreshSuccess(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	snap, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.True(t, snap.UpdateSuccessful)
	assert.False(t, snap.Stale)
	assert.Equal(t, "h1", snap.HomesData.Homes[0].ID)
	assert.Equal(t, "r1", snap.HomeStatus.Home.Rooms[0].ID)
	assert.False(t, snap.Timestamp.IsZero())

	assert.Equal(t, 0, coord.ConsecutiveFailures())
	assert.Equal(t, DefaultUpdateInterval, coord.Interval())

	last, ok := coord.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, snap.Timestamp, last)
}

func TestCoordinatorBackoffAndRecovery(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	api.setErrors(fmt.Errorf("%w: server error", netatmo.ErrAPI), nil)

	_, err := coord.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateFailed))
	assert.True(t, errors.Is(err, netatmo.ErrAPI))

	// One failure stretches the interval to base * 1.5.
	assert.Equal(t, 1, coord.ConsecutiveFailures())
	assert.Equal(t, 90*time.Second, coord.Interval())

	// Success snaps straight back to the base interval.
	api.setErrors(nil, nil)
	_, err = coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, coord.ConsecutiveFailures())
	assert.Equal(t, DefaultUpdateInterval, coord.Interval())
}

func TestCoordinatorIntervalExponentCapped(t *testing.T) {
	api := &fakeAPI{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := New(api, "h1", 10*time.Second, logger)

	api.setErrors(fmt.Errorf("%w: down", netatmo.ErrAPI), nil)

	for i := 0; i < 5; i++ {
		coord.Refresh(context.Background())
	}
	atFive := coord.Interval()

	for i := 0; i < 5; i++ {
		coord.Refresh(context.Background())
	}

	assert.Equal(t, atFive, coord.Interval(), "exponent must cap at 5")
	assert.Equal(t, 10, coord.ConsecutiveFailures())
}

func TestCoordinatorIntervalCappedAtMax(t *testing.T) {
	api := &fakeAPI{}
	coord := newTestCoordinator(api)

	api.setErrors(fmt.Errorf("%w: down", netatmo.ErrAPI), nil)
	for i := 0; i < 6; i++ {
		coord.Refresh(context.Background())
	}

	assert.Equal(t, MaxUpdateInterval, coord.Interval())
}

func TestCoordinatorServesStaleWithinTolerance(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	good, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	api.setErrors(nil, fmt.Errorf("%w: status fetch broke", netatmo.ErrAPI))

	for i := 1; i <= 3; i++ {
		snap, err := coord.Refresh(context.Background())
		require.NoError(t, err, "failure %d should be bridged with cached data", i)
		require.NotNil(t, snap)

		assert.True(t, snap.Stale)
		assert.False(t, snap.UpdateSuccessful)
		assert.Contains(t, snap.LastError, "status fetch broke")
		// Content and capture time stay those of the last good snapshot.
		assert.Same(t, good.HomesData, snap.HomesData)
		assert.Same(t, good.HomeStatus, snap.HomeStatus)
		assert.Equal(t, good.Timestamp, snap.Timestamp)
	}

	// The fourth consecutive failure is past the tolerance.
	_, err = coord.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateFailed))
	assert.Equal(t, 4, coord.ConsecutiveFailures())

	// The snapshot still holds the stale data for readers.
	snap := coord.Snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.Stale)
}

func TestCoordinatorNoStaleDataWithoutSnapshot(t *testing.T) {
	api := &fakeAPI{homesErr: fmt.Errorf("%w: down", netatmo.ErrAPI)}
	coord := newTestCoordinator(api)

	_, err := coord.Refresh(context.Background())
	require.Error(t, err)
	assert.Nil(t, coord.Snapshot())
}

func TestCoordinatorAuthErrorSurfaces(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	api.setErrors(fmt.Errorf("%w: token revoked", netatmo.ErrAuth), nil)

	_, err = coord.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateFailed))
	assert.True(t, errors.Is(err, netatmo.ErrAuth))
	assert.Equal(t, 1, coord.ConsecutiveFailures())

	// Auth failures are never bridged with stale data, but the old
	// snapshot stays readable as-is.
	snap := coord.Snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.UpdateSuccessful)
	assert.False(t, snap.Stale)
}

func TestCoordinatorUnexpectedErrorSurfaces(t *testing.T) {
	api := &fakeAPI{homesErr: errors.New("dns exploded")}
	coord := newTestCoordinator(api)

	_, err := coord.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateFailed))
	assert.Equal(t, 90*time.Second, coord.Interval())
}

func TestCoordinatorIsDataStale(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	current := time.Unix(1700000000, 0)
	coord.now = func() time.Time { return current }

	assert.True(t, coord.IsDataStale(0), "no snapshot means stale")

	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, coord.IsDataStale(0))

	// Age out against the default threshold.
	current = current.Add(DefaultStaleAge + time.Second)
	assert.True(t, coord.IsDataStale(0))

	// A tighter caller threshold applies when given.
	current = current.Add(-DefaultStaleAge)
	assert.False(t, coord.IsDataStale(0))
	assert.True(t, coord.IsDataStale(500*time.Millisecond))

	// The stale flag wins regardless of age.
	api.setErrors(fmt.Errorf("%w: down", netatmo.ErrAPI), nil)
	_, err = coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, coord.IsDataStale(0))
}

func TestCoordinatorForceRefresh(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	assert.True(t, coord.ForceRefresh(context.Background()))

	api.setErrors(fmt.Errorf("%w: down", netatmo.ErrAPI), nil)
	assert.False(t, coord.ForceRefresh(context.Background()), "stale snapshot is not a successful update")
}

func TestCoordinatorHandlePushTightensPolling(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	require.False(t, coord.PushActive())

	coord.HandlePush(PushEvent{Type: "therm_mode"})

	assert.True(t, coord.PushActive())
	assert.Equal(t, MinUpdateInterval, coord.Interval())

	// The tightened interval holds only until the next success; the
	// active flag is permanent.
	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultUpdateInterval, coord.Interval())
	assert.True(t, coord.PushActive())
}

func TestCoordinatorPushTriggersImmediateRefresh(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)

	go coord.Start()
	defer coord.Stop()

	coord.HandlePush(PushEvent{Type: "therm_mode"})

	// The base interval is a minute, so any call this early can only
	// come from the push wake-up.
	assert.Eventually(t, func() bool {
		homes, _ := api.calls()
		return homes >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorSingleFlight(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus(), block: make(chan struct{})}
	coord := newTestCoordinator(api)

	results := make(chan *Snapshot, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := coord.Refresh(context.Background())
			assert.NoError(t, err)
			results <- snap
		}()
	}

	// Wait until the first caller is inside the API call, then release.
	assert.Eventually(t, func() bool {
		homes, _ := api.calls()
		return homes == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(api.block)
	wg.Wait()

	first, second := <-results, <-results
	assert.Same(t, first, second, "joined callers share one result")

	homes, status := api.calls()
	assert.Equal(t, 1, homes)
	assert.Equal(t, 1, status)
}

func TestCoordinatorListenersNotified(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	coord := newTestCoordinator(api)
	listener := &recordingListener{}
	coord.AddListener(listener)

	// Success
	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	// Soft failure served from cache
	api.setErrors(fmt.Errorf("%w: down", netatmo.ErrAPI), nil)
	_, err = coord.Refresh(context.Background())
	require.NoError(t, err)

	// Hard failure
	api.setErrors(fmt.Errorf("%w: token revoked", netatmo.ErrAuth), nil)
	_, err = coord.Refresh(context.Background())
	require.Error(t, err)

	events := listener.all()
	require.Len(t, events, 3)

	assert.Equal(t, "h1", events[0].homeID)
	assert.NoError(t, events[0].err)
	assert.True(t, events[0].snap.UpdateSuccessful)

	assert.NoError(t, events[1].err)
	assert.True(t, events[1].snap.Stale)

	assert.Error(t, events[2].err)
	assert.True(t, errors.Is(events[2].err, netatmo.ErrAuth))
}

func TestCoordinatorPollLoop(t *testing.T) {
	api := &fakeAPI{homesData: testHomesData(), homeStatus: testHomeStatus()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := New(api, "h1", 20*time.Millisecond, logger)

	go coord.Start()
	defer coord.Stop()

	assert.Eventually(t, func() bool {
		homes, _ := api.calls()
		return homes >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
