package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxigo/dispatch/internal/domain/driver"
)

func putDriverOnline(core *testCore, driverID, sessionID string, lat, lng float64) {
	core.registry.SetOnline(context.Background(), driverID, sessionID, driver.Location{
		Latitude:  lat,
		Longitude: lng,
	}, driver.Vehicle{Make: "Toyota", Model: "Prius", LicensePlate: "TAXI-" + driverID})
}

func TestRegistry_SetOnlineIdempotent(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})

	putDriverOnline(core, "driver-1", "sess-1", 33.7, -84.4)
	putDriverOnline(core, "driver-1", "sess-1", 33.7, -84.4)
	putDriverOnline(core, "driver-1", "sess-1", 33.71, -84.41)

	assert.Len(t, core.registry.Snapshot(), 1, "repeated declarations must not duplicate the record")

	rec, ok := core.registry.Lookup("driver-1")
	require.True(t, ok)
	assert.Equal(t, 33.71, rec.Location.Latitude)
	assert.Equal(t, driver.StatusOnline, rec.Status)
}

func TestRegistry_SetOnlineRebindsSession(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})

	putDriverOnline(core, "driver-1", "sess-old", 33.7, -84.4)
	putDriverOnline(core, "driver-1", "sess-new", 33.7, -84.4)

	rec, ok := core.registry.Lookup("driver-1")
	require.True(t, ok)
	assert.Equal(t, "sess-new", rec.SessionID)

	// The stale session must no longer reach the record.
	core.registry.UpdateLocation(context.Background(), "sess-old", 40.0, -74.0)
	rec, _ = core.registry.Lookup("driver-1")
	assert.Equal(t, 33.7, rec.Location.Latitude)
}

func TestRegistry_UpdateLocationUnknownSessionIsNoOp(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})

	// Must not panic or create a record.
	core.registry.UpdateLocation(context.Background(), "sess-ghost", 33.7, -84.4)
	assert.Empty(t, core.registry.Snapshot())
}

func TestRegistry_UpdateLocationPublishesToLocationTopicOnly(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})
	putDriverOnline(core, "driver-1", "sess-1", 33.7, -84.4)

	core.broadcaster.Subscribe("sess-watcher", TopicLocations)
	core.broadcaster.Subscribe("sess-dispatcher", TopicDispatchers)

	core.registry.UpdateLocation(context.Background(), "sess-1", 33.75, -84.45)

	assert.Equal(t, 1, core.sender.countFor("sess-watcher", EventDriverLocationChanged))
	assert.Equal(t, 0, core.sender.countFor("sess-dispatcher", EventDriverLocationChanged),
		"location ticks must stay scoped to location watchers")
}

func TestRegistry_RemoveDropsExactDriver(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})
	putDriverOnline(core, "driver-1", "sess-1", 33.7, -84.4)
	putDriverOnline(core, "driver-2", "sess-2", 33.8, -84.3)

	core.registry.Remove(context.Background(), "sess-1")

	_, ok := core.registry.Lookup("driver-1")
	assert.False(t, ok)
	_, ok = core.registry.Lookup("driver-2")
	assert.True(t, ok)

	// Removing an unknown session is harmless.
	core.registry.Remove(context.Background(), "sess-ghost")
	assert.Len(t, core.registry.Snapshot(), 1)
}

func TestRegistry_ListAvailableExcludesBusyDrivers(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})
	putDriverOnline(core, "driver-1", "sess-1", 33.7, -84.4)
	putDriverOnline(core, "driver-2", "sess-2", 33.8, -84.3)

	require.NoError(t, core.registry.SetOnRide("driver-1"))

	available := core.registry.ListAvailable()
	require.Len(t, available, 1)
	assert.Equal(t, "driver-2", available[0].DriverID)

	require.NoError(t, core.registry.SetAvailable("driver-1"))
	assert.Len(t, core.registry.ListAvailable(), 2)
}

func TestRegistry_SetStatusUnknownDriver(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})

	assert.ErrorIs(t, core.registry.SetOnRide("driver-ghost"), driver.ErrNotRegistered)
	assert.ErrorIs(t, core.registry.SetAvailable("driver-ghost"), driver.ErrNotRegistered)
}

func TestRegistry_ListAvailableIsSnapshot(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})
	putDriverOnline(core, "driver-1", "sess-1", 33.7, -84.4)

	snapshot := core.registry.ListAvailable()
	require.Len(t, snapshot, 1)

	core.registry.Remove(context.Background(), "sess-1")
	assert.Len(t, snapshot, 1, "an issued snapshot must not track later changes")
}

func TestRegistry_SnapshotBroadcastToDispatchers(t *testing.T) {
	core := newTestCore(LifecycleConfig{}, MatcherConfig{})
	core.broadcaster.Subscribe("sess-dispatcher", TopicDispatchers)

	for i := 0; i < 3; i++ {
		putDriverOnline(core, fmt.Sprintf("driver-%d", i), fmt.Sprintf("sess-%d", i), 33.7, -84.4)
	}

	assert.Equal(t, 3, core.sender.countFor("sess-dispatcher", EventDriversUpdated))
}
