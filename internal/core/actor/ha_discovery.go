package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/lanremote/internal/config"
	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// DeviceLister exposes the registry contents.
type DeviceLister interface {
	List() []domain.Device
}

// HADiscoveryActor announces the bridge and one connectivity sensor plus power
// buttons per registry device, and announces again whenever the registry changes.
type HADiscoveryActor struct {
	config       *config.Config
	behavior     actor.Behavior
	stash        *actorutil.Stash
	devices      DeviceLister
	mqttActor    *actor.PID
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription

	logger *zap.Logger
}

type registryChanged struct {
}

func NewHADiscoveryActor(config *config.Config, devices DeviceLister, mqttActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		devices:     devices,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.subscription = state.eventStream.Subscribe(func(evt any) {
			if _, ok := evt.(domain.RegistryChangedEvent); ok {
				root.Send(self, registryChanged{})
			}
		})

		state.publish(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case registryChanged:
		state.logger.Debug("hadiscovery@default registry changed")
		state.publish(ctx)
	case *actor.Stopping, *actor.Restarting:
		if state.subscription != nil {
			state.eventStream.Unsubscribe(state.subscription)
			state.subscription = nil
		}
	default:
		state.logger.Debug("hadiscovery@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) publish(ctx actor.Context) {
	ctx.Send(state.mqttActor, BuildDiscoveryRequest(state.config.MQTT.BaseTopic, state.devices.List()))
}

// BuildDiscoveryRequest lists every entity announced for devices.
func BuildDiscoveryRequest(baseTopic string, devices []domain.Device) domain.PublishDiscoveryRequest {
	bridge := domain.BridgeDevice(baseTopic)
	sensors := domain.BridgeSensors(bridge)
	var buttons []domain.GenericButton
	for _, d := range devices {
		dev := domain.ComputerDevice(d, bridge)
		sensors = append(sensors, domain.ComputerSensor(dev))
		buttons = append(buttons, domain.ComputerButtons(dev)...)
	}
	return domain.PublishDiscoveryRequest{
		Sensors: sensors,
		Buttons: buttons,
		Devices: devices,
	}
}
