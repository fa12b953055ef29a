package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
)

const (
	DEFAULT_COMMAND_TIMEOUT    = 5000 * time.Millisecond
	DEFAULT_WAKE_RESYNC_DELAY  = 8000 * time.Millisecond
	companionStatusSuccess     = "success"
	companionDataReplyField    = "data"
	companionDevicesReplyField = "devices"
)

// TransportError is the single error kind for failed round-trips to the companion server.
type TransportError struct {
	Address string
	Command string
	Err     error
	timeout bool
}

func (e *TransportError) Error() string {
	if e.timeout {
		return fmt.Sprintf("companion %s did not answer %s in time: %v", e.Address, e.Command, e.Err)
	}
	return fmt.Sprintf("companion %s unreachable while sending %s: %v", e.Address, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Timeout() bool {
	return e.timeout
}

func newTransportError(address, command string, err error) *TransportError {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &TransportError{
		Address: address,
		Command: command,
		Err:     err,
		timeout: timeout,
	}
}

type GatewayConfig struct {
	CommandTimeout  time.Duration
	WakeResyncDelay time.Duration
}

// ConnectionLostFunc is told when a round-trip through the bound server fails.
type ConnectionLostFunc func(event domain.ServerConnectionLostEvent)

// Gateway is the only path from user intents to the companion server.
type Gateway struct {
	connection *ServerConnection
	registry   *Registry
	client     port.CompanionClient
	config     GatewayConfig
	onLost     ConnectionLostFunc
	logger     *zap.Logger
}

func NewGateway(connection *ServerConnection, registry *Registry, client port.CompanionClient,
	config GatewayConfig, onLost ConnectionLostFunc, logger *zap.Logger) *Gateway {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DEFAULT_COMMAND_TIMEOUT
	}
	if config.WakeResyncDelay <= 0 {
		config.WakeResyncDelay = DEFAULT_WAKE_RESYNC_DELAY
	}
	return &Gateway{
		connection: connection,
		registry:   registry,
		client:     client,
		config:     config,
		onLost:     onLost,
		logger:     logger,
	}
}

// Dispatch sends action for deviceId and maps the reply to a boolean outcome.
// Precondition failures are reported before any network call. There is no automatic retry.
func (g *Gateway) Dispatch(ctx context.Context, action domain.Action, deviceId string) (bool, error) {
	if action == nil {
		return false, fmt.Errorf("%w: no action given", domain.ErrUnknownAction)
	}
	address := g.connection.Address()
	if address == "" {
		return false, ErrServerNotDiscovered
	}
	device, err := g.registry.Get(deviceId)
	if err != nil {
		return false, err
	}
	envelope, err := domain.BuildEnvelope(action, device)
	if err != nil {
		return false, err
	}
	reply, err := g.roundTrip(ctx, address, envelope)
	if err != nil {
		return false, err
	}
	success := commandSucceeded(reply)
	g.logger.Info("gateway: dispatched", zap.String("action", string(action.Kind())),
		zap.String("device", deviceId), zap.Bool("success", success))
	return success, nil
}

// ResyncDelay tells the caller when to reconcile after action. ok is false for input actions.
func (g *Gateway) ResyncDelay(action domain.Action) (time.Duration, bool) {
	switch domain.EffectOf(action) {
	case domain.EFFECT_POWER_UP:
		return g.config.WakeResyncDelay, true
	case domain.EFFECT_POWER_DOWN:
		return 0, true
	}
	return 0, false
}

// GetStatus tests the command endpoint of the bound server and records the result.
func (g *Gateway) GetStatus(ctx context.Context) (ConnectionSnapshot, error) {
	address := g.connection.Address()
	if address == "" {
		return g.connection.Snapshot(), ErrServerNotDiscovered
	}
	reply, err := g.roundTrip(ctx, address, domain.NewEnvelope(domain.WIRE_CMD_GET_STATUS, nil))
	if err != nil {
		return g.connection.Snapshot(), err
	}
	if !commandSucceeded(reply) && reply.Status != companionStatusOnline {
		g.connection.Invalidate(address, fmt.Errorf("get_status replied %q", reply.Status))
	}
	return g.connection.Snapshot(), nil
}

// ServerDevices lists the devices known to the companion server itself.
func (g *Gateway) ServerDevices(ctx context.Context) ([]map[string]any, error) {
	reply, err := g.SendRaw(ctx, domain.WIRE_CMD_GET_DEVICES, nil)
	if err != nil {
		return nil, err
	}
	devices := []map[string]any{}
	// the server nests the list under data, older builds put it at the top level
	raw, ok := reply.Raw[companionDevicesReplyField].([]any)
	if data, isMap := reply.Raw[companionDataReplyField].(map[string]any); isMap {
		if nested, isList := data[companionDevicesReplyField].([]any); isList {
			raw, ok = nested, true
		}
	}
	if !ok {
		return devices, nil
	}
	for _, item := range raw {
		if d, ok := item.(map[string]any); ok {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

// AddServerDevice registers device on the companion server.
func (g *Gateway) AddServerDevice(ctx context.Context, device domain.Device) (bool, error) {
	reply, err := g.SendRaw(ctx, domain.WIRE_CMD_ADD_DEVICE, map[string]any{
		"deviceId": device.Id,
		"name":     device.Name,
		"mac":      device.Mac,
		"ip":       device.Ip,
	})
	if err != nil {
		return false, err
	}
	return commandSucceeded(reply), nil
}

func (g *Gateway) RemoveServerDevice(ctx context.Context, deviceId string) (bool, error) {
	reply, err := g.SendRaw(ctx, domain.WIRE_CMD_REMOVE_DEVICE, map[string]any{
		"deviceId": deviceId,
	})
	if err != nil {
		return false, err
	}
	return commandSucceeded(reply), nil
}

// SendRaw sends an arbitrary command to the bound server.
func (g *Gateway) SendRaw(ctx context.Context, command string, params map[string]any) (*port.CommandReply, error) {
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", domain.ErrUnknownAction)
	}
	address := g.connection.Address()
	if address == "" {
		return nil, ErrServerNotDiscovered
	}
	return g.roundTrip(ctx, address, domain.NewEnvelope(command, params))
}

// Diagnostics is the result of a ping plus a command endpoint test.
type Diagnostics struct {
	Address       string        `json:"address"`
	Reachable     bool          `json:"reachable"`
	StatusReply   string        `json:"statusReply,omitempty"`
	Latency       time.Duration `json:"latencyNanos"`
	PingError     string        `json:"pingError,omitempty"`
	CommandOk     bool          `json:"commandOk"`
	CommandStatus string        `json:"commandStatus,omitempty"`
	CommandError  string        `json:"commandError,omitempty"`
}

// Diagnose probes /status and the command endpoint of the bound server.
func (g *Gateway) Diagnose(ctx context.Context) (Diagnostics, error) {
	address := g.connection.Address()
	if address == "" {
		return Diagnostics{}, ErrServerNotDiscovered
	}
	diag := Diagnostics{Address: address}

	pingCtx, cancel := context.WithTimeout(ctx, g.config.CommandTimeout)
	status, err := g.client.Status(pingCtx, address)
	cancel()
	if err != nil {
		diag.PingError = err.Error()
	} else {
		diag.Reachable = status.Status == companionStatusOnline || status.Status == companionStatusSuccess
		diag.StatusReply = status.Status
		diag.Latency = status.Latency
	}

	reply, err := g.roundTrip(ctx, address, domain.NewEnvelope(domain.WIRE_CMD_GET_STATUS, nil))
	if err != nil {
		diag.CommandError = err.Error()
	} else {
		diag.CommandOk = commandSucceeded(reply) || reply.Status == companionStatusOnline
		diag.CommandStatus = reply.Status
		if reply.Message != "" {
			diag.CommandError = reply.Message
		}
	}
	return diag, nil
}

// roundTrip posts envelope to address and keeps the connection state current.
// HTTP error statuses come back as a reply, transport failures as *TransportError.
func (g *Gateway) roundTrip(ctx context.Context, address string, envelope domain.CommandEnvelope) (*port.CommandReply, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.CommandTimeout)
	defer cancel()

	reply, err := g.client.Send(ctx, address, envelope)
	if err != nil {
		terr := newTransportError(address, envelope.Command, err)
		g.logger.Warn("gateway: transport failure", zap.String("command", envelope.Command),
			zap.String("address", address), zap.Bool("timeout", terr.Timeout()), zap.Error(err))
		g.connectionLost(address, terr)
		return nil, terr
	}
	if reply.HTTPStatus >= http.StatusBadRequest {
		g.logger.Warn("gateway: companion error status", zap.String("command", envelope.Command),
			zap.String("address", address), zap.Int("http_status", reply.HTTPStatus))
		g.connectionLost(address, fmt.Errorf("companion replied HTTP %d to %s", reply.HTTPStatus, envelope.Command))
		return reply, nil
	}
	g.connection.MarkConnected(address)
	return reply, nil
}

func (g *Gateway) connectionLost(address string, cause error) {
	g.connection.Invalidate(address, cause)
	if g.onLost != nil {
		g.onLost(domain.ServerConnectionLostEvent{
			Address: address,
			Error:   cause.Error(),
		})
	}
}

// commandSucceeded is the uniform outcome mapping shared by every command.
func commandSucceeded(reply *port.CommandReply) bool {
	if reply == nil || reply.HTTPStatus >= http.StatusBadRequest {
		return false
	}
	if reply.Status == companionStatusSuccess {
		return true
	}
	return reply.Success != nil && *reply.Success
}
