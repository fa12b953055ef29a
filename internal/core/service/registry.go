package service

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDuplicateAddress = errors.New("device address already registered")
)

// Registry is the authoritative device set. Every mutation is written to the store
// before it becomes visible; a failed write leaves the registry untouched.
type Registry struct {
	mu       sync.RWMutex
	devices  []domain.Device
	activeId string
	store    port.KeyValueStore
	logger   *zap.Logger
}

func NewRegistry(store port.KeyValueStore, logger *zap.Logger) *Registry {
	return &Registry{
		devices: []domain.Device{},
		store:   store,
		logger:  logger,
	}
}

// Load replaces the in-memory state with the persisted one.
func (r *Registry) Load() error {
	devices := []domain.Device{}
	if _, err := r.store.Load(port.STORE_KEY_DEVICES, &devices); err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	var activeId string
	if _, err := r.store.Load(port.STORE_KEY_ACTIVE_DEVICE, &activeId); err != nil {
		return fmt.Errorf("load active device: %w", err)
	}

	loaded := make([]domain.Device, 0, len(devices))
	for _, d := range devices {
		if d.Id == "" {
			continue
		}
		if d.Status == "" {
			d.Status = domain.DEVICE_STATUS_OFFLINE
		}
		if d.Type == "" {
			d.Type = domain.DeviceTypeFromMac(d.Mac)
		}
		loaded = append(loaded, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = loaded
	r.activeId = ""
	if indexOf(loaded, activeId) >= 0 {
		r.activeId = activeId
	}
	r.logger.Info("registry: loaded", zap.Int("devices", len(loaded)), zap.String("active", r.activeId))
	return nil
}

// List returns a copy of the devices in insertion order.
func (r *Registry) List() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.devices)
}

func (r *Registry) Get(id string) (domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.devices, id)
	if i < 0 {
		return domain.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return r.devices[i], nil
}

// Add registers a new device. Id, status and version are assigned here.
func (r *Registry) Add(device domain.Device) (domain.Device, error) {
	device.Name = strings.TrimSpace(device.Name)
	device.Mac = strings.TrimSpace(device.Mac)
	device.Ip = strings.TrimSpace(device.Ip)
	if err := domain.ValidateDevice(device); err != nil {
		return domain.Device{}, err
	}
	device.Id = uuid.NewString()
	device.Status = domain.DEVICE_STATUS_OFFLINE
	device.Version = 1
	if device.Type != domain.DEVICE_TYPE_WIFI && device.Type != domain.DEVICE_TYPE_BLUETOOTH {
		device.Type = domain.DeviceTypeFromMac(device.Mac)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkUnique(r.devices, device); err != nil {
		return domain.Device{}, err
	}
	next := append(slices.Clone(r.devices), device)
	if err := r.store.Save(port.STORE_KEY_DEVICES, next); err != nil {
		return domain.Device{}, fmt.Errorf("save devices: %w", err)
	}
	r.devices = next
	r.logger.Info("registry: device added", zap.String("id", device.Id), zap.String("ip", device.Ip))
	return device, nil
}

// Update edits the user editable fields. Status is never touched here.
func (r *Registry) Update(id string, patch domain.DevicePatch) (domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.devices, id)
	if i < 0 {
		return domain.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	prev := r.devices[i]
	updated := patch.Apply(prev)
	if updated == prev {
		return prev, nil
	}
	if err := domain.ValidateDevice(updated); err != nil {
		return domain.Device{}, err
	}
	others := slices.Delete(slices.Clone(r.devices), i, i+1)
	if err := checkUnique(others, updated); err != nil {
		return domain.Device{}, err
	}
	updated.Version++

	next := slices.Clone(r.devices)
	next[i] = updated
	if err := r.store.Save(port.STORE_KEY_DEVICES, next); err != nil {
		return domain.Device{}, fmt.Errorf("save devices: %w", err)
	}
	r.devices = next
	r.logger.Info("registry: device updated", zap.String("id", id))
	return updated, nil
}

// Remove deletes a device and clears the active reference when it pointed at it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.devices, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	next := slices.Delete(slices.Clone(r.devices), i, i+1)
	if err := r.store.Save(port.STORE_KEY_DEVICES, next); err != nil {
		return fmt.Errorf("save devices: %w", err)
	}
	if r.activeId == id {
		if err := r.store.Save(port.STORE_KEY_ACTIVE_DEVICE, ""); err != nil {
			r.restoreDevices()
			return fmt.Errorf("save active device: %w", err)
		}
		r.activeId = ""
	}
	r.devices = next
	r.logger.Info("registry: device removed", zap.String("id", id))
	return nil
}

// Clear removes every device.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Save(port.STORE_KEY_DEVICES, []domain.Device{}); err != nil {
		return fmt.Errorf("save devices: %w", err)
	}
	if err := r.store.Save(port.STORE_KEY_ACTIVE_DEVICE, ""); err != nil {
		r.restoreDevices()
		return fmt.Errorf("save active device: %w", err)
	}
	r.devices = []domain.Device{}
	r.activeId = ""
	r.logger.Info("registry: cleared")
	return nil
}

func (r *Registry) SetActive(id string) (domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.devices, id)
	if i < 0 {
		return domain.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err := r.store.Save(port.STORE_KEY_ACTIVE_DEVICE, id); err != nil {
		return domain.Device{}, fmt.Errorf("save active device: %w", err)
	}
	r.activeId = id
	return r.devices[i], nil
}

func (r *Registry) Active() (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.devices, r.activeId)
	if i < 0 {
		return domain.Device{}, false
	}
	return r.devices[i], true
}

// ApplyStatuses applies the probed statuses of one reconciliation cycle as a single update.
// Devices deleted or re-addressed while the cycle was in flight are skipped.
// Nothing is written when no status changed.
func (r *Registry) ApplyStatuses(probed []domain.Device) ([]domain.DeviceStatusChangedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next []domain.Device
	changes := []domain.DeviceStatusChangedEvent{}
	for _, p := range probed {
		i := indexOf(r.devices, p.Id)
		if i < 0 {
			continue
		}
		current := r.devices[i]
		if current.Ip != p.Ip || current.Status == p.Status {
			continue
		}
		if next == nil {
			next = slices.Clone(r.devices)
		}
		updated := current
		updated.Status = p.Status
		updated.Version++
		next[i] = updated
		changes = append(changes, domain.DeviceStatusChangedEvent{
			Device:   updated,
			Previous: current.Status,
		})
	}
	if next == nil {
		return changes, nil
	}
	if err := r.store.Save(port.STORE_KEY_DEVICES, next); err != nil {
		return nil, fmt.Errorf("save devices: %w", err)
	}
	r.devices = next
	return changes, nil
}

// restoreDevices rewrites the last committed list after a partial failure. Caller holds the lock.
func (r *Registry) restoreDevices() {
	if err := r.store.Save(port.STORE_KEY_DEVICES, r.devices); err != nil {
		r.logger.Error("registry: could not restore devices", zap.Error(err))
	}
}

func indexOf(devices []domain.Device, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(devices, func(d domain.Device) bool {
		return d.Id == id
	})
}

func checkUnique(devices []domain.Device, candidate domain.Device) error {
	for _, d := range devices {
		if d.Ip == candidate.Ip {
			return fmt.Errorf("%w: network address %s is used by %q", ErrDuplicateAddress, d.Ip, d.Name)
		}
		if d.SameMac(candidate.Mac) {
			return fmt.Errorf("%w: hardware address %s is used by %q", ErrDuplicateAddress, d.Mac, d.Name)
		}
	}
	return nil
}
