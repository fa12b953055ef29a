package server

import (
	"net/http"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.errorHandler
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)

	e.GET("/devices", s.ListDevicesHandler)
	e.POST("/devices", s.AddDeviceHandler)
	e.DELETE("/devices", s.ClearDevicesHandler)
	e.GET("/devices/active", s.ActiveDeviceHandler)
	e.GET("/devices/:id", s.GetDeviceHandler)
	e.PATCH("/devices/:id", s.UpdateDeviceHandler)
	e.DELETE("/devices/:id", s.RemoveDeviceHandler)
	e.PUT("/devices/:id/active", s.SetActiveDeviceHandler)
	e.POST("/devices/:id/actions/:action", s.DispatchActionHandler)

	e.POST("/sync", s.SyncHandler)

	e.GET("/server", s.ServerConnectionHandler)
	e.PUT("/server", s.SetServerHandler)
	e.POST("/server/discover", s.DiscoverHandler)
	e.GET("/server/diagnostics", s.DiagnosticsHandler)
	e.POST("/server/command", s.RawCommandHandler)
	e.GET("/server/devices", s.ServerDevicesHandler)

	e.GET("/ws", s.WebSocketHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type VersionResponse struct {
	Version    string    `json:"version"`
	Revision   string    `json:"revision"`
	LastCommit time.Time `json:"lastCommit"`
	DirtyBuild bool      `json:"dirtyBuild"`
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{
		Version:    versioninfo.Version,
		Revision:   versioninfo.Revision,
		LastCommit: versioninfo.LastCommit,
		DirtyBuild: versioninfo.DirtyBuild,
	})
}
