package actor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/lanremote/internal/adapter/storage"
	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/service"
	"github.com/berfenger/lanremote/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSystem(t *testing.T) (*actor.ActorSystem, *zap.Logger) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)
	return as, logger
}

func newTestConnection(t *testing.T, logger *zap.Logger) (*service.ServerConnection, *storage.FileStore) {
	store, err := storage.NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)
	return service.NewServerConnection(store, logger), store
}

// fakeLocator answers Locate with address, or err when set, after delay.
type fakeLocator struct {
	mu      sync.Mutex
	address string
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (l *fakeLocator) Locate(ctx context.Context, params service.ScanParams) (string, error) {
	l.calls.Add(1)
	l.mu.Lock()
	address, err, delay := l.address, l.err, l.delay
	l.mu.Unlock()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return address, err
}

func (l *fakeLocator) Set(address string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.address, l.err = address, err
}

// fakeSynchronizer reports changes on its first cycle only.
type fakeSynchronizer struct {
	changes []domain.DeviceStatusChangedEvent
	delay   time.Duration
	calls   atomic.Int32
}

func (s *fakeSynchronizer) SyncOnce(ctx context.Context) ([]domain.DeviceStatusChangedEvent, error) {
	n := s.calls.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if n == 1 {
		return s.changes, nil
	}
	return nil, nil
}

type fakeDispatcher struct {
	mu          sync.Mutex
	dispatched  []string
	resyncDelay time.Duration
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, action domain.Action, deviceId string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, deviceId+":"+string(action.Kind()))
	return true, nil
}

func (d *fakeDispatcher) ResyncDelay(action domain.Action) (time.Duration, bool) {
	if domain.EffectOf(action) == domain.EFFECT_NONE {
		return 0, false
	}
	return d.resyncDelay, true
}

func (d *fakeDispatcher) Dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.dispatched...)
}
