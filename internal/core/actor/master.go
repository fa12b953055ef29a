package actor

import (
	"context"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/lanremote/internal/adapter/actor"
	"github.com/berfenger/lanremote/internal/config"
	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/service"
	. "github.com/berfenger/lanremote/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const DISCOVERY_RETRY_INITIAL_INTERVAL = 5 * time.Second

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// Dispatcher sends user actions to the companion server.
type Dispatcher interface {
	Dispatch(ctx context.Context, action domain.Action, deviceId string) (bool, error)
	ResyncDelay(action domain.Action) (time.Duration, bool)
}

// Services are the long lived core objects shared by the actor tree and the HTTP API.
type Services struct {
	Locator      ServerLocator
	Connection   *service.ServerConnection
	Registry     *service.Registry
	Synchronizer Synchronizer
	Gateway      Dispatcher
	Jobs         quartz.Scheduler
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	services           Services
	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	subscription       *eventstream.Subscription
	scheduler          *scheduler.TimerScheduler
	retry              *backoff.ExponentialBackOff
	cancelRetry        scheduler.CancelFunc
	discoveryActor     *actor.PID
	syncActor          *actor.PID
	mqttActor          *actor.PID
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected       []string
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

type retryDiscovery struct {
}

type dispatchResult struct {
	request domain.DispatchRequest
	replyTo *actor.PID
	success bool
	err     error
}

func NewMasterOfPuppetsActor(config config.Config, services Services, eventStream *eventstream.EventStream,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		services:          services,
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       eventStream,
		mqttActorProvider: mqttActorProvider,
		retry: backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(min(DISCOVERY_RETRY_INITIAL_INTERVAL, config.Discovery.RetryMaxInterval())),
			backoff.WithMaxInterval(config.Discovery.RetryMaxInterval()),
			backoff.WithMaxElapsedTime(0),
		),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)

		discoveryActorPID, err := state.startDiscoveryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.discoveryActor = discoveryActorPID

		syncActorPID, err := state.startSyncActor(ctx)
		if err != nil {
			panic(err)
		}
		state.syncActor = syncActorPID

		if state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID

			if state.config.MQTT.HADiscoveryEnable {
				_, err := state.startHADiscoveryActor(ctx)
				if err != nil {
					panic(err)
				}
			}
		}

		// connection loss and discoveries are reported on the event stream
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.subscription = state.eventStream.Subscribe(func(evt any) {
			switch evt.(type) {
			case domain.ServerConnectionLostEvent, domain.ServerDiscoveredEvent:
				root.Send(self, evt)
			}
		})

		if address := state.services.Connection.Address(); address != "" {
			state.logger.Info("master@starting using persisted server address", zap.String("address", address))
		} else {
			ctx.Request(state.discoveryActor, domain.DiscoverRequest{})
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.children())
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.DiscoverRequest:
		ctx.Forward(state.discoveryActor)
	case domain.SyncNowRequest:
		ctx.Forward(state.syncActor)
	case domain.DiscoverResponse:
		if msg.Found {
			break
		}
		delay := state.retry.NextBackOff()
		state.logger.Info("master@default discovery retry scheduled", zap.Duration("in", delay))
		state.cancelPendingRetry()
		state.cancelRetry = state.scheduler.RequestOnce(delay, ctx.Self(), retryDiscovery{})
	case retryDiscovery:
		state.cancelRetry = nil
		if state.services.Connection.Snapshot().Connected {
			break
		}
		ctx.Request(state.discoveryActor, domain.DiscoverRequest{})
	case domain.ServerDiscoveredEvent:
		state.logger.Debug("master@default ServerDiscoveredEvent", zap.String("address", msg.Address))
		state.retry.Reset()
		state.cancelPendingRetry()
	case domain.ServerConnectionLostEvent:
		state.logger.Warn("master@default server connection lost, rediscovering",
			zap.String("address", msg.Address), zap.String("error", msg.Error))
		ctx.Request(state.discoveryActor, domain.DiscoverRequest{})
	case domain.ScheduleResyncRequest:
		state.scheduleResync(ctx, time.Duration(msg.DelayMillis)*time.Millisecond)
	case adactor.ParsedCommand:
		// button presses coming from Home Assistant
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			req, err := ButtonPressToDispatch(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default ignoring mqtt command", zap.Error(err))
				break
			}
			state.dispatch(ctx, req)
		}
	case domain.DispatchRequest:
		state.dispatch(ctx, msg)
	case dispatchResult:
		state.dispatchDone(ctx, msg)
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{
		domain.ACTOR_ID_DISCOVERY: state.discoveryActor,
		domain.ACTOR_ID_SYNC:      state.syncActor,
	}
	if state.mqttActor != nil {
		children[domain.ACTOR_ID_MQTT] = state.mqttActor
	}
	return children
}

func (state *MasterOfPuppetsActor) dispatch(ctx actor.Context, req domain.DispatchRequest) {
	replyTo := ForRequest(req).ReplyTo(ctx)
	gateway := state.services.Gateway
	timeout := state.config.Companion.CommandTimeout()
	if timeout <= 0 {
		timeout = service.DEFAULT_COMMAND_TIMEOUT
	}
	NewBackgroundTask(ctx, func() (*dispatchResult, error) {
		ok, err := gateway.Dispatch(context.Background(), req.Action, req.DeviceId)
		return &dispatchResult{request: req, replyTo: replyTo, success: ok, err: err}, nil
	}).WithTimeout(timeout + time.Second).Recover(func(err error) dispatchResult {
		return dispatchResult{request: req, replyTo: replyTo, err: err}
	}).PipeTo(ctx.Self())
}

func (state *MasterOfPuppetsActor) dispatchDone(ctx actor.Context, result dispatchResult) {
	action := result.request.Action
	if result.err != nil {
		state.logger.Warn("master@default dispatch failed",
			zap.String("device", result.request.DeviceId), zap.String("action", string(action.Kind())), zap.Error(result.err))
	} else {
		state.logger.Info("master@default dispatched",
			zap.String("device", result.request.DeviceId), zap.String("action", string(action.Kind())), zap.Bool("success", result.success))
		if delay, ok := state.services.Gateway.ResyncDelay(action); ok {
			state.scheduleResync(ctx, delay)
		}
	}
	if result.replyTo != nil {
		ctx.Send(result.replyTo, domain.DispatchResponse{
			ActorResponseMixIn: domain.ResponseWithError(result.err),
			Success:            result.success,
		})
	}
}

// scheduleResync forces a status cycle after delay, giving a woken or powered
// down machine time to settle.
func (state *MasterOfPuppetsActor) scheduleResync(ctx actor.Context, delay time.Duration) {
	if delay <= 0 || state.services.Jobs == nil {
		ctx.Send(state.syncActor, domain.SyncNowRequest{})
		return
	}
	root := ctx.ActorSystem().Root
	syncActor := state.syncActor
	resync := job.NewFunctionJob[bool](func(_ context.Context) (bool, error) {
		root.Send(syncActor, domain.SyncNowRequest{})
		return true, nil
	})
	key := quartz.NewJobKey(fmt.Sprintf("resync-%s", uuid.NewString()))
	if err := state.services.Jobs.ScheduleJob(quartz.NewJobDetail(resync, key), quartz.NewRunOnceTrigger(delay)); err != nil {
		state.logger.Error("master@default could not schedule resync", zap.Error(err))
		return
	}
	state.logger.Debug("master@default resync scheduled", zap.Duration("in", delay))
}

func (state *MasterOfPuppetsActor) cancelPendingRetry() {
	if state.cancelRetry != nil {
		state.cancelRetry()
		state.cancelRetry = nil
	}
}

func (state *MasterOfPuppetsActor) stop() {
	state.cancelPendingRetry()
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
}

func (state *MasterOfPuppetsActor) startDiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	params := service.ScanParams{
		Prefix:          state.config.Discovery.SubnetPrefix,
		First:           state.config.Discovery.HostFirst,
		Last:            state.config.Discovery.HostLast,
		Port:            state.config.Companion.Port,
		PerHostTimeout:  state.config.Discovery.PerHostTimeout(),
		Concurrency:     state.config.Discovery.Concurrency,
		ProbesPerSecond: state.config.Discovery.ProbesPerSecond,
	}
	discoveryProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDiscoveryActor(state.services.Locator, state.services.Connection, params, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(discoveryProps, domain.ACTOR_ID_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startSyncActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	syncProps := actor.PropsFromProducer(func() actor.Actor {
		return NewStatusSyncActor(state.services.Synchronizer, state.config.Sync.Interval(), state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(syncProps, domain.ACTOR_ID_SYNC)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.services.Registry, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset(children map[string]*actor.PID) {
	state.expected = state.expected[:0]
	for id := range children {
		state.expected = append(state.expected, id)
	}
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
