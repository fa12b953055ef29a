package mdns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	SERVICE_TYPE    = "_lanremote._tcp"
	DEFAULT_TIMEOUT = 2 * time.Second
	browseDomain    = "local."
)

// Browser lists companion servers announcing themselves over mDNS.
type Browser struct {
	service string
	timeout time.Duration
	logger  *zap.Logger
}

func NewBrowser(timeout time.Duration, logger *zap.Logger) *Browser {
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	return &Browser{
		service: SERVICE_TYPE,
		timeout: timeout,
		logger:  logger,
	}
}

// Browse collects announcements for the browse window and returns their IPv4 addresses.
func (b *Browser) Browse(ctx context.Context) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var (
		found []*zeroconf.ServiceEntry
		wg    sync.WaitGroup
	)
	entries := make(chan *zeroconf.ServiceEntry)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			b.logger.Debug("mdns: announcement", zap.String("instance", entry.Instance), zap.Int("port", entry.Port))
			found = append(found, entry)
		}
	}()

	if err := resolver.Browse(ctx, b.service, browseDomain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	// the resolver closes entries once ctx is done
	wg.Wait()

	addresses := Addresses(found)
	b.logger.Info("mdns: browse finished", zap.Int("candidates", len(addresses)))
	return addresses, nil
}

// Addresses returns the distinct IPv4 addresses of entries in announcement order.
func Addresses(entries []*zeroconf.ServiceEntry) []string {
	seen := map[string]bool{}
	addresses := []string{}
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		for _, ip := range entry.AddrIPv4 {
			s := ip.String()
			if !seen[s] {
				seen[s] = true
				addresses = append(addresses, s)
			}
		}
	}
	return addresses
}
