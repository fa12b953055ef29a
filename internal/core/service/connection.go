package service

import (
	"errors"
	"sync"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
)

var ErrServerNotDiscovered = errors.New("companion server not discovered")

// ConnectionSnapshot is a consistent copy of the server binding.
type ConnectionSnapshot struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
	LastError string `json:"lastError,omitempty"`
}

func (s ConnectionSnapshot) Discovered() bool {
	return s.Address != ""
}

// ServerConnection is the single shared binding to the companion server.
// The address is replaced atomically and persisted on every successful discovery.
type ServerConnection struct {
	mu        sync.RWMutex
	address   string
	connected bool
	lastError string
	store     port.KeyValueStore
	logger    *zap.Logger
}

func NewServerConnection(store port.KeyValueStore, logger *zap.Logger) *ServerConnection {
	return &ServerConnection{
		store:  store,
		logger: logger,
	}
}

// Load restores a previously discovered address. It reports whether one was found.
func (c *ServerConnection) Load() (bool, error) {
	var address string
	found, err := c.store.Load(port.STORE_KEY_SERVER_IP, &address)
	if err != nil {
		return false, err
	}
	if !found || address == "" {
		return false, nil
	}
	if err := domain.ValidateIPv4(address); err != nil {
		c.logger.Warn("connection: ignoring persisted server address", zap.String("address", address), zap.Error(err))
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
	c.connected = false
	c.lastError = ""
	return true, nil
}

func (c *ServerConnection) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *ServerConnection) Snapshot() ConnectionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionSnapshot{
		Address:   c.address,
		Connected: c.connected,
		LastError: c.lastError,
	}
}

// SetDiscovered binds the connection to address after a successful status round-trip
// and persists it before returning.
func (c *ServerConnection) SetDiscovered(address string) error {
	if err := domain.ValidateIPv4(address); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(port.STORE_KEY_SERVER_IP, address); err != nil {
		return err
	}
	if c.address != address {
		c.logger.Info("connection: server bound", zap.String("address", address))
	}
	c.address = address
	c.connected = true
	c.lastError = ""
	return nil
}

// MarkConnected records a successful round-trip through address.
// Stale confirmations for a replaced address are ignored.
func (c *ServerConnection) MarkConnected(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.address != address {
		return
	}
	c.connected = true
	c.lastError = ""
}

// Invalidate marks the binding as broken. The address is kept until a new discovery replaces it.
// It reports whether the connection was considered healthy before the call.
func (c *ServerConnection) Invalidate(address string, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.address != address {
		return false
	}
	wasConnected := c.connected
	c.connected = false
	if cause != nil {
		c.lastError = cause.Error()
	}
	return wasConnected
}

// Forget drops the binding and the persisted address.
func (c *ServerConnection) Forget() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(port.STORE_KEY_SERVER_IP, ""); err != nil {
		return err
	}
	c.address = ""
	c.connected = false
	c.lastError = ""
	return nil
}
