package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DEFAULT_SUBNET_PREFIX    = "192.168.1."
	DEFAULT_HOST_FIRST       = 2
	DEFAULT_HOST_LAST        = 254
	DEFAULT_PER_HOST_TIMEOUT = 1000 * time.Millisecond
	DEFAULT_SCAN_CONCURRENCY = 32
	companionStatusOnline    = "online"
	maxScanConcurrency       = 256
)

var (
	ErrServerNotFound    = errors.New("companion server not found")
	ErrInvalidScanParams = errors.New("invalid scan parameters")
)

type ScanParams struct {
	Prefix          string
	First           int
	Last            int
	Port            uint
	PerHostTimeout  time.Duration
	Concurrency     int
	ProbesPerSecond float64
}

func (p ScanParams) withDefaults() ScanParams {
	if p.Prefix == "" {
		p.Prefix = DetectSubnetPrefix()
	}
	if !strings.HasSuffix(p.Prefix, ".") {
		p.Prefix += "."
	}
	if p.First == 0 && p.Last == 0 {
		p.First, p.Last = DEFAULT_HOST_FIRST, DEFAULT_HOST_LAST
	}
	if p.PerHostTimeout <= 0 {
		p.PerHostTimeout = DEFAULT_PER_HOST_TIMEOUT
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DEFAULT_SCAN_CONCURRENCY
	}
	if p.Concurrency > maxScanConcurrency {
		p.Concurrency = maxScanConcurrency
	}
	return p
}

func (p ScanParams) validate() error {
	if p.First < 0 || p.Last > 255 || p.First > p.Last {
		return fmt.Errorf("%w: host range %d..%d", ErrInvalidScanParams, p.First, p.Last)
	}
	if err := domain.ValidateIPv4(p.Prefix + strconv.Itoa(p.Last)); err != nil {
		return fmt.Errorf("%w: prefix %q", ErrInvalidScanParams, p.Prefix)
	}
	return nil
}

type probeOutcome uint8

const (
	probePending probeOutcome = iota
	probeMiss
	probeHit
)

// Scanner locates a companion server on the local subnet.
type Scanner struct {
	clientFor port.CompanionClientFactory
	browser   port.ServiceBrowser
	logger    *zap.Logger
}

// NewScanner creates a scanner. browser may be nil to disable the mDNS pre-step.
func NewScanner(clientFor port.CompanionClientFactory, browser port.ServiceBrowser, logger *zap.Logger) *Scanner {
	return &Scanner{
		clientFor: clientFor,
		browser:   browser,
		logger:    logger,
	}
}

// Locate tries the announced candidates first and falls back to a subnet scan.
func (s *Scanner) Locate(ctx context.Context, params ScanParams) (string, error) {
	if s.browser != nil {
		candidates, err := s.browser.Browse(ctx)
		if err != nil {
			s.logger.Warn("discovery: mdns browse failed", zap.Error(err))
		} else if address, err := s.Verify(ctx, params, candidates); err == nil {
			s.logger.Info("discovery: server announced via mdns", zap.String("address", address))
			return address, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return s.Scan(ctx, params)
}

// Verify probes the given candidates and returns the lowest address that answers as online.
func (s *Scanner) Verify(ctx context.Context, params ScanParams, candidates []string) (string, error) {
	params = params.withDefaults()
	addrs := make([]netip.Addr, 0, len(candidates))
	for _, c := range candidates {
		addr, err := netip.ParseAddr(c)
		if err != nil || !addr.Is4() {
			continue
		}
		if !slices.Contains(addrs, addr) {
			addrs = append(addrs, addr)
		}
	}
	slices.SortFunc(addrs, func(a, b netip.Addr) int { return a.Compare(b) })

	client := s.clientFor(params.Port)
	for _, addr := range addrs {
		if s.probe(ctx, client, addr.String(), params.PerHostTimeout) {
			return addr.String(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", ErrServerNotFound
}

// Scan probes prefix+First..prefix+Last in parallel and returns the lowest matching host.
// Probes above a confirmed match are never started and in-flight ones are cancelled.
func (s *Scanner) Scan(ctx context.Context, params ScanParams) (string, error) {
	params = params.withDefaults()
	if err := params.validate(); err != nil {
		return "", err
	}
	client := s.clientFor(params.Port)
	count := params.Last - params.First + 1

	var limiter *rate.Limiter
	if params.ProbesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(params.ProbesPerSecond), 1)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		outcomes  = make([]probeOutcome, count)
		cursor    = 0
		lowestHit = -1
		decided   = false
	)
	settle := func(i int, hit bool) {
		mu.Lock()
		defer mu.Unlock()
		if decided {
			return
		}
		if hit {
			outcomes[i] = probeHit
			if lowestHit < 0 || i < lowestHit {
				lowestHit = i
			}
		} else {
			outcomes[i] = probeMiss
		}
		for cursor < count && outcomes[cursor] == probeMiss {
			cursor++
		}
		if cursor < count && outcomes[cursor] == probeHit {
			decided = true
			cancel()
		}
	}
	skip := func(i int) bool {
		mu.Lock()
		defer mu.Unlock()
		return decided || (lowestHit >= 0 && i > lowestHit)
	}

	started := time.Now()
	s.logger.Info("discovery: scan started", zap.String("prefix", params.Prefix),
		zap.Int("first", params.First), zap.Int("last", params.Last), zap.Uint("port", params.Port))

	g, gctx := errgroup.WithContext(scanCtx)
	g.SetLimit(params.Concurrency)
	for i := 0; i < count; i++ {
		if limiter != nil {
			if err := limiter.Wait(scanCtx); err != nil {
				break
			}
		}
		if skip(i) || scanCtx.Err() != nil {
			break
		}
		host := params.Prefix + strconv.Itoa(params.First+i)
		g.Go(func() error {
			if skip(i) {
				return nil
			}
			settle(i, s.probe(gctx, client, host, params.PerHostTimeout))
			return nil
		})
	}
	g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if decided {
		address := params.Prefix + strconv.Itoa(params.First+cursor)
		s.logger.Info("discovery: server found", zap.String("address", address), zap.Duration("elapsed", time.Since(started)))
		return address, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.logger.Info("discovery: server not found", zap.Duration("elapsed", time.Since(started)))
	return "", ErrServerNotFound
}

// probe reports whether host answers /status as an online companion within timeout.
func (s *Scanner) probe(ctx context.Context, client port.CompanionClient, host string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, err := client.Status(ctx, host)
	if err != nil {
		return false
	}
	hit := reply.HTTPStatus == http.StatusOK && reply.Status == companionStatusOnline
	if hit {
		s.logger.Debug("discovery: candidate matched", zap.String("host", host))
	}
	return hit
}

// DetectSubnetPrefix returns the first three octets of the first non-loopback IPv4 interface.
func DetectSubnetPrefix() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return DEFAULT_SUBNET_PREFIX
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
				return fmt.Sprintf("%d.%d.%d.", ip4[0], ip4[1], ip4[2])
			}
		}
	}
	return DEFAULT_SUBNET_PREFIX
}
