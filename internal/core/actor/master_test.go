package actor

import (
	"context"
	"slices"
	"testing"
	"time"

	adactor "github.com/berfenger/lanremote/internal/adapter/actor"
	"github.com/berfenger/lanremote/internal/config"
	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"
	"github.com/berfenger/lanremote/internal/core/service"
	"github.com/berfenger/lanremote/internal/mqtt"
	"github.com/berfenger/lanremote/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type masterFixture struct {
	system       *actor.ActorSystem
	pid          *actor.PID
	config       config.Config
	eventStream  *eventstream.EventStream
	connection   *service.ServerConnection
	store        port.KeyValueStore
	device       domain.Device
	locator      *fakeLocator
	synchronizer *fakeSynchronizer
	gateway      *fakeDispatcher
}

func newMasterFixture(t *testing.T) *masterFixture {
	as, logger := newTestSystem(t)
	connection, store := newTestConnection(t, logger)
	registry := service.NewRegistry(store, logger)
	require.NoError(t, registry.Load())
	device, err := registry.Add(domain.Device{Name: "office", Mac: "00:11:22:33:44:55", Ip: "192.168.1.50"})
	require.NoError(t, err)

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	cfg.Discovery.RetryMaxIntervalMillis = 100

	return &masterFixture{
		system:       as,
		config:       cfg,
		eventStream:  &eventstream.EventStream{},
		connection:   connection,
		store:        store,
		device:       device,
		locator:      &fakeLocator{address: "192.168.1.42"},
		synchronizer: &fakeSynchronizer{},
		gateway:      &fakeDispatcher{resyncDelay: 200 * time.Millisecond},
	}
}

func (f *masterFixture) start(t *testing.T, registry *service.Registry) {
	jobs, err := quartz.NewStdScheduler()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	jobs.Start(ctx)
	t.Cleanup(func() {
		jobs.Stop()
		cancel()
	})

	services := Services{
		Locator:      f.locator,
		Connection:   f.connection,
		Registry:     registry,
		Synchronizer: f.synchronizer,
		Gateway:      f.gateway,
		Jobs:         jobs,
	}
	logger := util.TestLogger()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(f.config, services, f.eventStream, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&f.config, es, logger)
		}, logger)
	})
	pid, err := f.system.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	f.pid = pid
}

func (f *masterFixture) registry(t *testing.T) *service.Registry {
	registry := service.NewRegistry(f.store, util.TestLogger())
	require.NoError(t, registry.Load())
	return registry
}

// published asks the dry run mqtt child what it would have sent.
func (f *masterFixture) published() adactor.PublishedMessagesResponse {
	mqttPID := f.system.NewLocalPID(domain.ACTOR_ID_MASTER + "/" + domain.ACTOR_ID_MQTT)
	res, err := f.system.Root.RequestFuture(mqttPID, adactor.PublishedMessagesRequest{}, time.Second).Result()
	if err != nil {
		return adactor.PublishedMessagesResponse{}
	}
	return res.(adactor.PublishedMessagesResponse)
}

func TestMasterActor(t *testing.T) {
	f := newMasterFixture(t)
	f.start(t, f.registry(t))

	res, err := f.system.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	// nothing persisted, the server is located on start
	assert.Eventually(t, func() bool { return f.connection.Address() == "192.168.1.42" }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), f.locator.calls.Load())

	// home assistant entities for the registry device
	wakeConfig := "homeassistant/button/" + f.device.Id + "/" + f.device.Id + "_wake/config"
	assert.Eventually(t, func() bool {
		return slices.Contains(f.published().Topics, wakeConfig)
	}, 2*time.Second, 50*time.Millisecond)
	published := f.published()
	assert.Equal(t, mqtt.MQTT_PAYLOAD_OFF, published.Payloads["lanremote/binary_sensor/"+f.device.Id+"/state"])
}

func TestMasterDispatchesButtonPress(t *testing.T) {
	f := newMasterFixture(t)
	f.start(t, f.registry(t))
	assert.Eventually(t, func() bool { return f.synchronizer.calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)

	f.system.Root.Send(f.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: f.device.Id,
		Command:  mqtt.COMMAND_BUTTON_PRESS,
		Param:    "wake",
		Payload:  mqtt.MQTT_PAYLOAD_PRESS,
	}})

	assert.Eventually(t, func() bool {
		return slices.Equal(f.gateway.Dispatched(), []string{f.device.Id + ":wake"})
	}, 2*time.Second, 20*time.Millisecond)
	// the delayed resync job forces a second cycle
	assert.Eventually(t, func() bool { return f.synchronizer.calls.Load() == 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestMasterDispatchRequestReplies(t *testing.T) {
	f := newMasterFixture(t)
	f.start(t, f.registry(t))

	action, err := domain.ParseAction("shutdown", nil)
	require.NoError(t, err)
	res, err := f.system.Root.RequestFuture(f.pid, domain.DispatchRequest{DeviceId: f.device.Id, Action: action}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.DispatchResponse)
	assert.True(t, resp.Success)
	assert.False(t, resp.HasResponseError())
}

func TestMasterRediscoversOnConnectionLost(t *testing.T) {
	f := newMasterFixture(t)
	f.start(t, f.registry(t))
	assert.Eventually(t, func() bool { return f.connection.Address() == "192.168.1.42" }, 2*time.Second, 20*time.Millisecond)

	f.locator.Set("192.168.1.43", nil)
	f.connection.Invalidate("192.168.1.42", assert.AnError)
	f.eventStream.Publish(domain.ServerConnectionLostEvent{Address: "192.168.1.42", Error: assert.AnError.Error()})

	assert.Eventually(t, func() bool { return f.connection.Address() == "192.168.1.43" }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), f.locator.calls.Load())
}

func TestMasterUsesPersistedAddress(t *testing.T) {
	f := newMasterFixture(t)
	require.NoError(t, f.store.Save(port.STORE_KEY_SERVER_IP, "192.168.1.9"))
	found, err := f.connection.Load()
	require.NoError(t, err)
	require.True(t, found)

	f.start(t, f.registry(t))
	_, err = f.system.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)

	assert.Zero(t, f.locator.calls.Load())
	assert.Equal(t, "192.168.1.9", f.connection.Address())
}

func TestMasterRetriesDiscovery(t *testing.T) {
	f := newMasterFixture(t)
	f.locator.Set("", service.ErrServerNotFound)
	f.start(t, f.registry(t))

	assert.Eventually(t, func() bool { return f.locator.calls.Load() >= 3 }, 3*time.Second, 20*time.Millisecond)

	f.locator.Set("192.168.1.77", nil)
	assert.Eventually(t, func() bool { return f.connection.Address() == "192.168.1.77" }, 3*time.Second, 20*time.Millisecond)
	calls := f.locator.calls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, calls, f.locator.calls.Load(), "no retries once found")
}
