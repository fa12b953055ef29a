package server

import (
	"net/http"

	"github.com/berfenger/lanremote/internal/core/domain"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type SetServerRequest struct {
	Address string `json:"address"`
}

type RawCommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

type RawCommandResult struct {
	HTTPStatus int            `json:"httpStatus"`
	Reply      map[string]any `json:"reply"`
}

func (s *Server) ServerConnectionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.connection.Snapshot())
}

// SetServerHandler binds the companion server to a user supplied address.
func (s *Server) SetServerHandler(c echo.Context) error {
	req := SetServerRequest{}
	if err := bindBody(c, &req); err != nil {
		return errorJSON(c, err)
	}
	if err := s.connection.SetDiscovered(req.Address); err != nil {
		return errorJSON(c, err)
	}
	s.logger.Info("server: companion address set manually", zap.String("address", req.Address))
	s.eventStream.Publish(domain.ServerDiscoveredEvent{Address: req.Address})
	return c.JSON(http.StatusOK, s.connection.Snapshot())
}

// DiscoverHandler joins the discovery in flight or starts one, and waits for its outcome.
func (s *Server) DiscoverHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.DiscoverRequest{}, s.discoveryTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: CodeActorUnavailable, Error: err.Error()})
	}
	response, ok := res.(domain.DiscoverResponse)
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: CodeActorUnavailable, Error: "unexpected discovery response"})
	}
	if response.HasResponseError() {
		return errorJSON(c, response.GetResponseError())
	}
	if !response.Found {
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: CodeDiscoveryNotFound, Error: "no companion server answered on the scanned range"})
	}
	return c.JSON(http.StatusOK, s.connection.Snapshot())
}

func (s *Server) DiagnosticsHandler(c echo.Context) error {
	diag, err := s.gateway.Diagnose(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, diag)
}

func (s *Server) RawCommandHandler(c echo.Context) error {
	req := RawCommandRequest{}
	if err := bindBody(c, &req); err != nil {
		return errorJSON(c, err)
	}
	reply, err := s.gateway.SendRaw(c.Request().Context(), req.Command, req.Params)
	if err != nil {
		return errorJSON(c, err)
	}
	raw := reply.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	return c.JSON(http.StatusOK, RawCommandResult{HTTPStatus: reply.HTTPStatus, Reply: raw})
}

func (s *Server) ServerDevicesHandler(c echo.Context) error {
	devices, err := s.gateway.ServerDevices(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, devices)
}
