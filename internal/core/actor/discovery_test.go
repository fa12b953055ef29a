package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/service"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryActorSingleFlight(t *testing.T) {
	as, logger := newTestSystem(t)
	connection, _ := newTestConnection(t, logger)
	locator := &fakeLocator{address: "192.168.1.42", delay: 200 * time.Millisecond}
	es := &eventstream.EventStream{}

	discovered := make(chan domain.ServerDiscoveredEvent, 4)
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.ServerDiscoveredEvent); ok {
			discovered <- e
		}
	})

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewDiscoveryActor(locator, connection, service.ScanParams{}, es, logger)
	}))

	var wg sync.WaitGroup
	responses := make([]domain.DiscoverResponse, 3)
	for i := range responses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := as.Root.RequestFuture(pid, domain.DiscoverRequest{}, 2*time.Second).Result()
			if !assert.NoError(t, err) {
				return
			}
			responses[i] = res.(domain.DiscoverResponse)
		}()
	}
	wg.Wait()

	for _, resp := range responses {
		assert.True(t, resp.Found)
		assert.Equal(t, "192.168.1.42", resp.Address)
		assert.False(t, resp.HasResponseError())
	}
	assert.Equal(t, int32(1), locator.calls.Load(), "concurrent requests share one scan")
	assert.Equal(t, "192.168.1.42", connection.Address())
	assert.True(t, connection.Snapshot().Connected)

	select {
	case e := <-discovered:
		assert.Equal(t, "192.168.1.42", e.Address)
	case <-time.After(time.Second):
		t.Fatal("no ServerDiscoveredEvent")
	}

	// a finished scan does not answer later requests
	_, err := as.Root.RequestFuture(pid, domain.DiscoverRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, int32(2), locator.calls.Load())
}

func TestDiscoveryActorNotFound(t *testing.T) {
	as, logger := newTestSystem(t)
	connection, _ := newTestConnection(t, logger)
	locator := &fakeLocator{err: service.ErrServerNotFound}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewDiscoveryActor(locator, connection, service.ScanParams{}, &eventstream.EventStream{}, logger)
	}))

	res, err := as.Root.RequestFuture(pid, domain.DiscoverRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.DiscoverResponse)
	assert.False(t, resp.Found)
	assert.False(t, resp.HasResponseError())
	assert.Empty(t, connection.Address())

	health, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, "idle", health.(domain.ActorHealthResponse).State)
}
