package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	. "github.com/berfenger/lanremote/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// Synchronizer runs one reconciliation cycle over the registry.
type Synchronizer interface {
	SyncOnce(ctx context.Context) ([]domain.DeviceStatusChangedEvent, error)
}

// StatusSyncActor reconciles device status on a fixed interval. Cycles never
// overlap. A SyncNowRequest arriving mid-cycle is answered by the cycle that
// starts once the running one ends.
type StatusSyncActor struct {
	behavior     actor.Behavior
	scheduler    *scheduler.TimerScheduler
	synchronizer Synchronizer
	interval     time.Duration
	eventStream  *eventstream.EventStream
	waiters      Waiters
	queued       Waiters
	pending      bool
	runCtx       context.Context
	stopRuns     context.CancelFunc
	cancelTick   scheduler.CancelFunc

	logger *zap.Logger
}

type syncTick struct {
}

type syncResult struct {
	changes []domain.DeviceStatusChangedEvent
	err     error
}

func NewStatusSyncActor(synchronizer Synchronizer, interval time.Duration, eventStream *eventstream.EventStream, logger *zap.Logger) *StatusSyncActor {
	act := &StatusSyncActor{
		behavior:     actor.NewBehavior(),
		synchronizer: synchronizer,
		interval:     interval,
		eventStream:  eventStream,
		logger:       ActorLogger(domain.ACTOR_ID_SYNC, logger),
	}
	act.behavior.Become(act.IdleReceive)
	return act
}

func (state *StatusSyncActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StatusSyncActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sync@idle started", zap.Duration("interval", state.interval))
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.runCtx, state.stopRuns = context.WithCancel(context.Background())
		// first cycle right away, the timer takes over afterwards
		ctx.Send(ctx.Self(), syncTick{})
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("idle"))
	case syncTick:
		state.logger.Debug("sync@idle tick")
		state.startCycle(ctx)
	case domain.SyncNowRequest:
		state.logger.Debug("sync@idle SyncNowRequest")
		state.waiters.Add(ctx, msg)
		state.startCycle(ctx)
	case *actor.Stopping, *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("sync@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *StatusSyncActor) SyncingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("syncing"))
	case syncTick:
		// the next tick is scheduled when the running cycle ends
	case domain.SyncNowRequest:
		// the running cycle probed before this request, queue it for the next one
		state.logger.Debug("sync@syncing queue for next cycle")
		state.queued.Add(ctx, msg)
		state.pending = true
	case syncResult:
		state.finishCycle(ctx, msg)
		state.behavior.Become(state.IdleReceive)
		if state.pending {
			state.pending = false
			state.waiters, state.queued = state.queued, nil
			state.startCycle(ctx)
		}
	case *actor.Stopping, *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("sync@syncing default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *StatusSyncActor) startCycle(ctx actor.Context) {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	// a cycle that outlives the interval is abandoned and its results dropped
	cycleCtx, cancel := context.WithTimeout(state.runCtx, state.interval)
	NewBackgroundTask(ctx, func() (*syncResult, error) {
		defer cancel()
		changes, err := state.synchronizer.SyncOnce(cycleCtx)
		return &syncResult{changes: changes, err: err}, nil
	}).Recover(func(err error) syncResult {
		return syncResult{err: err}
	}).PipeTo(ctx.Self())
	state.behavior.Become(state.SyncingReceive)
}

func (state *StatusSyncActor) finishCycle(ctx actor.Context, result syncResult) {
	changed := make([]domain.Device, 0, len(result.changes))
	if result.err != nil {
		state.logger.Warn("sync@syncing cycle discarded", zap.Error(result.err))
	} else {
		for _, change := range result.changes {
			state.logger.Info("sync@syncing device status changed",
				zap.String("device", change.Device.Id),
				zap.String("from", string(change.Previous)),
				zap.String("to", string(change.Device.Status)))
			state.eventStream.Publish(change)
			changed = append(changed, change.Device)
		}
	}
	state.waiters.RespondAll(ctx, domain.SyncNowResponse{
		ActorResponseMixIn: domain.ResponseWithError(result.err),
		Changed:            changed,
	})
	state.cancelTick = state.scheduler.RequestOnce(state.interval, ctx.Self(), syncTick{})
}

func (state *StatusSyncActor) health(name string) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_SYNC,
		Healthy: true,
		State:   name,
	}
}

func (state *StatusSyncActor) stop() {
	if state.stopRuns != nil {
		state.stopRuns()
	}
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
