package service

import (
	"context"
	"slices"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DEFAULT_SYNC_CONCURRENCY = 16

// StatusSynchronizer probes every device and feeds status transitions back into the registry.
type StatusSynchronizer struct {
	prober      port.StatusProber
	registry    *Registry
	concurrency int
	logger      *zap.Logger
}

func NewStatusSynchronizer(prober port.StatusProber, registry *Registry, concurrency int, logger *zap.Logger) *StatusSynchronizer {
	if concurrency <= 0 {
		concurrency = DEFAULT_SYNC_CONCURRENCY
	}
	return &StatusSynchronizer{
		prober:      prober,
		registry:    registry,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Reconcile probes devices independently and returns them with their probed status.
// changed is false when every probed status equals the stored one.
func (s *StatusSynchronizer) Reconcile(ctx context.Context, devices []domain.Device) ([]domain.Device, bool) {
	probed := make([]domain.DeviceStatus, len(devices))
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, d := range devices {
		g.Go(func() error {
			probed[i] = s.prober.Probe(ctx, d.Ip)
			return nil
		})
	}
	g.Wait()

	updated := slices.Clone(devices)
	changed := false
	for i := range updated {
		if updated[i].Status == probed[i] {
			continue
		}
		s.logger.Debug("sync: status transition", zap.String("id", updated[i].Id),
			zap.String("ip", updated[i].Ip), zap.String("from", string(updated[i].Status)), zap.String("to", string(probed[i])))
		updated[i].Status = probed[i]
		changed = true
	}
	return updated, changed
}

// SyncOnce runs one reconciliation cycle against the registry.
// Nothing is applied when ctx is done before the probes return.
func (s *StatusSynchronizer) SyncOnce(ctx context.Context) ([]domain.DeviceStatusChangedEvent, error) {
	devices := s.registry.List()
	if len(devices) == 0 {
		return nil, nil
	}
	probed, changed := s.Reconcile(ctx, devices)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return s.registry.ApplyStatuses(probed)
}
