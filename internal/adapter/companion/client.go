package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
)

const (
	DEFAULT_PORT       = 7777
	maxReplyBodyBytes  = 1 << 20
	STATUS_ONLINE      = "online"
	STATUS_SUCCESS     = "success"
	STATUS_ERROR       = "error"
	statusPath         = "/status"
	commandContentType = "application/json"
)

// ErrMalformedReply is returned when a companion answers with something that is not a JSON object.
var ErrMalformedReply = errors.New("companion replied with malformed JSON")

// HTTPError is returned by Status when the companion answers with a non 2xx code.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("companion responded with status %d", e.StatusCode)
}

type Client struct {
	port       uint
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a companion client. Timeouts are driven by the caller context.
func NewClient(port uint, logger *zap.Logger) *Client {
	return NewClientWithHTTP(port, &http.Client{
		Transport: &http.Transport{
			Proxy:               nil,
			DialContext:         (&net.Dialer{KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}, logger)
}

func NewClientWithHTTP(port uint, httpClient *http.Client, logger *zap.Logger) *Client {
	if port == 0 {
		port = DEFAULT_PORT
	}
	return &Client{
		port:       port,
		httpClient: httpClient,
		logger:     logger.With(zap.String("component", "companion")),
	}
}

// Factory returns a port.CompanionClientFactory. A nil httpClient gets the default transport.
func Factory(httpClient *http.Client, logger *zap.Logger) port.CompanionClientFactory {
	return func(p uint) port.CompanionClient {
		if httpClient == nil {
			return NewClient(p, logger)
		}
		return NewClientWithHTTP(p, httpClient, logger)
	}
}

func (c *Client) Port() uint {
	return c.port
}

func (c *Client) BaseURL(ip string) string {
	return fmt.Sprintf("http://%s:%d", ip, c.port)
}

// Status performs GET /status on the companion at ip.
func (c *Client) Status(ctx context.Context, ip string) (*port.StatusReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL(ip)+statusPath, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply := &port.StatusReply{
		HTTPStatus: resp.StatusCode,
		Latency:    time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBodyBytes))
		return reply, &HTTPError{StatusCode: resp.StatusCode}
	}

	body := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBodyBytes)).Decode(&body); err != nil {
		return reply, fmt.Errorf("%w: %s", ErrMalformedReply, err)
	}
	if status, ok := body["status"].(string); ok {
		reply.Status = status
	}
	return reply, nil
}

// Send POSTs a command envelope to the companion root endpoint.
// Non 2xx replies are returned without error so callers can map them to a failed outcome.
func (c *Client) Send(ctx context.Context, ip string, envelope domain.CommandEnvelope) (*port.CommandReply, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL(ip)+"/", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", commandContentType)

	c.logger.Debug("companion: send", zap.String("ip", ip), zap.String("command", envelope.Command))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply := &port.CommandReply{HTTPStatus: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBodyBytes))
		return reply, nil
	}

	body := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedReply, err)
	}
	reply.Raw = body
	if status, ok := body["status"].(string); ok {
		reply.Status = status
	}
	if success, ok := body["success"].(bool); ok {
		reply.Success = &success
	}
	if message, ok := body["message"].(string); ok {
		reply.Message = message
	} else if message, ok := body["error"].(string); ok {
		reply.Message = message
	}
	c.logger.Debug("companion: reply", zap.String("ip", ip), zap.String("command", envelope.Command),
		zap.Int("http_status", resp.StatusCode), zap.String("status", reply.Status))
	return reply, nil
}

// StatusProber maps /status replies to a device status with a bounded timeout.
type StatusProber struct {
	client  port.CompanionClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewStatusProber(client port.CompanionClient, timeout time.Duration, logger *zap.Logger) *StatusProber {
	return &StatusProber{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Probe never fails: any error, timeout or unexpected body means offline.
func (p *StatusProber) Probe(ctx context.Context, ip string) domain.DeviceStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reply, err := p.client.Status(ctx, ip)
	if err != nil {
		p.logger.Debug("companion: probe failed", zap.String("ip", ip), zap.Error(err))
		return domain.DEVICE_STATUS_OFFLINE
	}
	if reply.Status == STATUS_ONLINE || reply.Status == STATUS_SUCCESS {
		return domain.DEVICE_STATUS_ONLINE
	}
	return domain.DEVICE_STATUS_OFFLINE
}
