package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSyncActorPublishesChanges(t *testing.T) {
	as, logger := newTestSystem(t)
	es := &eventstream.EventStream{}
	device := domain.Device{Id: "a", Status: domain.DEVICE_STATUS_ONLINE}
	synchronizer := &fakeSynchronizer{changes: []domain.DeviceStatusChangedEvent{{Device: device, Previous: domain.DEVICE_STATUS_OFFLINE}}}

	changes := make(chan domain.DeviceStatusChangedEvent, 4)
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.DeviceStatusChangedEvent); ok {
			changes <- e
		}
	})

	as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewStatusSyncActor(synchronizer, time.Hour, es, logger)
	}))

	select {
	case e := <-changes:
		assert.Equal(t, "a", e.Device.Id)
		assert.Equal(t, domain.DEVICE_STATUS_OFFLINE, e.Previous)
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not run on start")
	}
}

func TestStatusSyncActorTicks(t *testing.T) {
	as, logger := newTestSystem(t)
	synchronizer := &fakeSynchronizer{}

	as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewStatusSyncActor(synchronizer, 100*time.Millisecond, &eventstream.EventStream{}, logger)
	}))

	assert.Eventually(t, func() bool { return synchronizer.calls.Load() >= 3 }, 2*time.Second, 20*time.Millisecond)
}

func TestStatusSyncActorQueuesRequestsForNextCycle(t *testing.T) {
	as, logger := newTestSystem(t)
	device := domain.Device{Id: "a", Status: domain.DEVICE_STATUS_ONLINE}
	synchronizer := &fakeSynchronizer{
		changes: []domain.DeviceStatusChangedEvent{{Device: device, Previous: domain.DEVICE_STATUS_OFFLINE}},
		delay:   300 * time.Millisecond,
	}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewStatusSyncActor(synchronizer, time.Hour, &eventstream.EventStream{}, logger)
	}))
	require.Eventually(t, func() bool { return synchronizer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// the start-up cycle is running, both requests share the cycle after it
	var wg sync.WaitGroup
	responses := make([]domain.SyncNowResponse, 2)
	callsAtResponse := make([]int32, 2)
	for i := range responses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := as.Root.RequestFuture(pid, domain.SyncNowRequest{}, 2*time.Second).Result()
			if !assert.NoError(t, err) {
				return
			}
			callsAtResponse[i] = synchronizer.calls.Load()
			responses[i] = res.(domain.SyncNowResponse)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), synchronizer.calls.Load())
	for i, resp := range responses {
		assert.Equal(t, int32(2), callsAtResponse[i])
		assert.Empty(t, resp.Changed)
	}

	health, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, health.(domain.ActorHealthResponse).Healthy)

	// idle again, a new request runs a new cycle
	_, err = as.Root.RequestFuture(pid, domain.SyncNowRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, int32(3), synchronizer.calls.Load())
}

func TestStatusSyncActorRunsFireAndForgetRequestAfterCycle(t *testing.T) {
	as, logger := newTestSystem(t)
	synchronizer := &fakeSynchronizer{delay: 300 * time.Millisecond}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewStatusSyncActor(synchronizer, time.Hour, &eventstream.EventStream{}, logger)
	}))
	require.Eventually(t, func() bool { return synchronizer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// no sender, like the post-action resync
	as.Root.Send(pid, domain.SyncNowRequest{})

	assert.Eventually(t, func() bool { return synchronizer.calls.Load() == 2 }, 2*time.Second, 20*time.Millisecond)
}
