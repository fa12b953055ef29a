package server

import (
	"sync"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	FEED_DEVICES           = "devices"
	FEED_DEVICE_STATUS     = "device_status"
	FEED_SERVER            = "server"
	FEED_SERVER_DISCOVERED = "server_discovered"
	FEED_SERVER_LOST       = "server_lost"

	feedSendBuffer   = 32
	feedWriteTimeout = 10 * time.Second
	feedPongTimeout  = 60 * time.Second
	feedPingInterval = 30 * time.Second
	feedReadLimit    = 4096
)

// FeedMessage is one frame of the /ws event feed.
type FeedMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type deviceStatusData struct {
	Device   domain.Device       `json:"device"`
	Previous domain.DeviceStatus `json:"previous"`
}

type serverEventData struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
}

func feedMessage(evt any) (FeedMessage, bool) {
	switch e := evt.(type) {
	case domain.DeviceStatusChangedEvent:
		return FeedMessage{Type: FEED_DEVICE_STATUS, Data: deviceStatusData{Device: e.Device, Previous: e.Previous}}, true
	case domain.RegistryChangedEvent:
		return FeedMessage{Type: FEED_DEVICES, Data: e.Devices}, true
	case domain.ServerDiscoveredEvent:
		return FeedMessage{Type: FEED_SERVER_DISCOVERED, Data: serverEventData{Address: e.Address}}, true
	case domain.ServerConnectionLostEvent:
		return FeedMessage{Type: FEED_SERVER_LOST, Data: serverEventData{Address: e.Address, Error: e.Error}}, true
	}
	return FeedMessage{}, false
}

// WebSocketHandler streams registry, status and server events until the client goes away.
// Every connection starts with the current device list and server binding.
func (s *Server) WebSocketHandler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered the request
		s.logger.Warn("server: websocket upgrade failed", zap.Error(err))
		return nil
	}
	client := &feedClient{
		conn:   conn,
		send:   make(chan FeedMessage, feedSendBuffer),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	// subscribe before taking the snapshot so no change falls in between
	sub := s.eventStream.Subscribe(func(evt any) {
		if msg, ok := feedMessage(evt); ok {
			client.enqueue(msg)
		}
	})
	defer s.eventStream.Unsubscribe(sub)

	client.enqueue(FeedMessage{Type: FEED_DEVICES, Data: s.registry.List()})
	client.enqueue(FeedMessage{Type: FEED_SERVER, Data: s.connection.Snapshot()})

	go client.writePump()
	client.readPump()
	return nil
}

type feedClient struct {
	conn      *websocket.Conn
	send      chan FeedMessage
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func (c *feedClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue never blocks the publisher. A client that cannot keep up is dropped.
func (c *feedClient) enqueue(msg FeedMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("server: websocket client too slow, closing")
		c.close()
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(feedPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("server: websocket write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump only detects disconnects; inbound frames are discarded.
func (c *feedClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(feedReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("server: websocket read failed", zap.Error(err))
			}
			return
		}
	}
}
