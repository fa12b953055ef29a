package port

import (
	"context"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
)

// StatusReply is the decoded body of GET /status.
type StatusReply struct {
	HTTPStatus int
	Status     string
	Latency    time.Duration
}

// CommandReply is the decoded body of a command POST.
type CommandReply struct {
	HTTPStatus int
	Status     string
	Success    *bool
	Message    string
	Raw        map[string]any
}

// CompanionClient talks to a companion server at a given IPv4 address.
type CompanionClient interface {
	Status(ctx context.Context, ip string) (*StatusReply, error)
	Send(ctx context.Context, ip string, envelope domain.CommandEnvelope) (*CommandReply, error)
}

// StatusProber reports whether a companion answers /status as reachable.
type StatusProber interface {
	Probe(ctx context.Context, ip string) domain.DeviceStatus
}

// CompanionClientFactory builds a client for companions listening on port.
type CompanionClientFactory func(port uint) CompanionClient

// ServiceBrowser lists candidate companion addresses announced on the LAN.
type ServiceBrowser interface {
	Browse(ctx context.Context) ([]string, error)
}
