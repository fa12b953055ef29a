package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
)

var errStoreDown = errors.New("store down")

// memoryStore keeps JSON values in memory and counts writes.
type memoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
	failOn map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		values: map[string][]byte{},
		failOn: map[string]bool{},
	}
}

func (s *memoryStore) Load(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (s *memoryStore) Save(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[key] {
		return errStoreDown
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.values[key] = raw
	s.writes++
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

func (s *memoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memoryStore) Fail(key string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[key] = fail
}

var _ port.KeyValueStore = (*memoryStore)(nil)

type hostBehavior struct {
	status string
	delay  time.Duration
	hang   bool
}

// fakeCompanions answers /status per host and records every call.
type fakeCompanions struct {
	mu      sync.Mutex
	hosts   map[string]hostBehavior
	probes  atomic.Int32
	sends   atomic.Int32
	probed  []string
	reply   *port.CommandReply
	sendErr error
}

func newFakeCompanions() *fakeCompanions {
	return &fakeCompanions{hosts: map[string]hostBehavior{}}
}

func (f *fakeCompanions) Set(host string, b hostBehavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts[host] = b
}

func (f *fakeCompanions) Probed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.probed...)
}

func (f *fakeCompanions) Status(ctx context.Context, ip string) (*port.StatusReply, error) {
	f.probes.Add(1)
	f.mu.Lock()
	b, ok := f.hosts[ip]
	f.probed = append(f.probed, ip)
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("connection refused")
	}
	if b.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &port.StatusReply{HTTPStatus: 200, Status: b.status}, nil
}

func (f *fakeCompanions) Send(ctx context.Context, ip string, envelope domain.CommandEnvelope) (*port.CommandReply, error) {
	f.sends.Add(1)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &port.CommandReply{HTTPStatus: 200, Status: "success"}, nil
}

func (f *fakeCompanions) Factory() port.CompanionClientFactory {
	return func(uint) port.CompanionClient {
		return f
	}
}

// fakeProber returns a fixed status per ip and counts probes.
type fakeProber struct {
	mu       sync.Mutex
	statuses map[string]domain.DeviceStatus
	calls    int
}

func (p *fakeProber) Set(ip string, status domain.DeviceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[ip] = status
}

func (p *fakeProber) Probe(ctx context.Context, ip string) domain.DeviceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if s, ok := p.statuses[ip]; ok {
		return s
	}
	return domain.DEVICE_STATUS_OFFLINE
}

func testLogger() *zap.Logger {
	return zap.Must(zap.NewDevelopment())
}

func testDevice(name, mac, ip string) domain.Device {
	return domain.Device{Name: name, Mac: mac, Ip: ip}
}
