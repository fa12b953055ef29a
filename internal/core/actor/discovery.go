package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/service"
	. "github.com/berfenger/lanremote/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// ServerLocator finds the companion server on the LAN.
type ServerLocator interface {
	Locate(ctx context.Context, params service.ScanParams) (string, error)
}

// DiscoveryActor runs at most one scan at a time. Requests received while a
// scan is in flight join it and get the same answer.
type DiscoveryActor struct {
	behavior    actor.Behavior
	locator     ServerLocator
	connection  *service.ServerConnection
	params      service.ScanParams
	eventStream *eventstream.EventStream
	waiters     Waiters
	cancelScan  context.CancelFunc

	logger *zap.Logger
}

type discoveryResult struct {
	address string
	err     error
}

func NewDiscoveryActor(locator ServerLocator, connection *service.ServerConnection, params service.ScanParams,
	eventStream *eventstream.EventStream, logger *zap.Logger) *DiscoveryActor {
	act := &DiscoveryActor{
		behavior:    actor.NewBehavior(),
		locator:     locator,
		connection:  connection,
		params:      params,
		eventStream: eventStream,
		logger:      ActorLogger(domain.ACTOR_ID_DISCOVERY, logger),
	}
	act.behavior.Become(act.IdleReceive)
	return act
}

func (state *DiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DiscoveryActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("discovery@idle started")
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DISCOVERY,
			Healthy: true,
			State:   "idle",
		})
	case domain.DiscoverRequest:
		state.logger.Info("discovery@idle scan requested")
		state.waiters.Add(ctx, msg)
		state.startScan(ctx)
		state.behavior.Become(state.ScanningReceive)
	case *actor.Stopping:
	default:
		state.logger.Debug("discovery@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DiscoveryActor) ScanningReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DISCOVERY,
			Healthy: true,
			State:   "scanning",
		})
	case domain.DiscoverRequest:
		state.logger.Debug("discovery@scanning join in-flight scan")
		state.waiters.Add(ctx, msg)
	case discoveryResult:
		state.cancelScan()
		state.cancelScan = nil
		state.waiters.RespondAll(ctx, state.complete(msg))
		state.behavior.Become(state.IdleReceive)
	case *actor.Stopping, *actor.Restarting:
		state.cancelScan()
	default:
		state.logger.Debug("discovery@scanning default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DiscoveryActor) startScan(ctx actor.Context) {
	scanCtx, cancel := context.WithCancel(context.Background())
	state.cancelScan = cancel
	params := state.params
	NewBackgroundTask(ctx, func() (*discoveryResult, error) {
		address, err := state.locator.Locate(scanCtx, params)
		return &discoveryResult{address: address, err: err}, nil
	}).Recover(func(err error) discoveryResult {
		return discoveryResult{err: err}
	}).PipeTo(ctx.Self())
}

// complete records a found server and builds the answer for every waiter.
func (state *DiscoveryActor) complete(result discoveryResult) domain.DiscoverResponse {
	if result.err != nil {
		if errors.Is(result.err, service.ErrServerNotFound) {
			state.logger.Warn("discovery@scanning companion server not found")
			return domain.DiscoverResponse{}
		}
		state.logger.Error("discovery@scanning scan failed", zap.Error(result.err))
		return domain.DiscoverResponse{ActorResponseMixIn: domain.ResponseWithError(result.err)}
	}
	if err := state.connection.SetDiscovered(result.address); err != nil {
		state.logger.Error("discovery@scanning could not record server address", zap.Error(err))
		return domain.DiscoverResponse{ActorResponseMixIn: domain.ResponseWithError(err)}
	}
	state.logger.Info("discovery@scanning companion server found", zap.String("address", result.address))
	state.eventStream.Publish(domain.ServerDiscoveredEvent{Address: result.address})
	return domain.DiscoverResponse{
		Address: result.address,
		Found:   true,
	}
}
