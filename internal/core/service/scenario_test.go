package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/lanremote/internal/adapter/companion"
	"github.com/berfenger/lanremote/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lanTransport routes requests by host to in-process handlers.
// Unknown hosts refuse the connection; silenced hosts never answer.
type lanTransport struct {
	mu       sync.Mutex
	hosts    map[string]http.Handler
	silenced map[string]bool
}

func (l *lanTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	l.mu.Lock()
	handler, ok := l.hosts[host]
	silent := l.silenced[host]
	l.mu.Unlock()
	if silent {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	if !ok {
		return nil, errors.New("connect: connection refused")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func (l *lanTransport) Silence(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.silenced[host] = true
}

func companionHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet && r.URL.Path == "/status" {
			json.NewEncoder(w).Encode(map[string]any{"status": "online"})
			return
		}
		envelope := domain.CommandEnvelope{}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&envelope)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})
}

func TestScanDispatchReconcileScenario(t *testing.T) {
	require := require.New(t)
	logger := testLogger()

	lan := &lanTransport{
		hosts:    map[string]http.Handler{"192.168.1.42": companionHandler(t)},
		silenced: map[string]bool{},
	}
	factory := companion.Factory(&http.Client{Transport: lan}, logger)

	store := newMemoryStore()
	connection := NewServerConnection(store, logger)
	registry := NewRegistry(store, logger)

	// discovery
	scanner := NewScanner(factory, nil, logger)
	address, err := scanner.Scan(context.Background(), ScanParams{
		Prefix:         "192.168.1.",
		First:          2,
		Last:           254,
		Port:           7777,
		PerHostTimeout: 1000 * time.Millisecond,
	})
	require.NoError(err)
	require.Equal("192.168.1.42", address)
	require.NoError(connection.SetDiscovered(address))

	var persisted string
	_, err = store.Load("serverIp", &persisted)
	require.NoError(err)
	assert.Equal(t, "192.168.1.42", persisted)

	// the server host is also the controlled device
	device, err := registry.Add(testDevice("workstation", "00:1A:2B:3C:4D:5E", "192.168.1.42"))
	require.NoError(err)

	prober := companion.NewStatusProber(factory(7777), 200*time.Millisecond, logger)
	synchronizer := NewStatusSynchronizer(prober, registry, 4, logger)
	changes, err := synchronizer.SyncOnce(context.Background())
	require.NoError(err)
	require.Len(changes, 1)
	assert.Equal(t, domain.DEVICE_STATUS_ONLINE, changes[0].Device.Status)

	// shutdown
	gateway := NewGateway(connection, registry, factory(7777), GatewayConfig{}, nil, logger)
	shutdown := mustAction(t, "shutdown", nil)
	ok, err := gateway.Dispatch(context.Background(), shutdown, device.Id)
	require.NoError(err)
	assert.True(t, ok)
	delay, resync := gateway.ResyncDelay(shutdown)
	assert.True(t, resync)
	assert.Zero(t, delay)

	// the machine goes away and the next cycle sees a timeout
	lan.Silence("192.168.1.42")
	changes, err = synchronizer.SyncOnce(context.Background())
	require.NoError(err)
	require.Len(changes, 1)
	assert.Equal(t, domain.DEVICE_STATUS_OFFLINE, changes[0].Device.Status)
	assert.Equal(t, domain.DEVICE_STATUS_ONLINE, changes[0].Previous)

	got, err := registry.Get(device.Id)
	require.NoError(err)
	assert.Equal(t, domain.DEVICE_STATUS_OFFLINE, got.Status)
}
