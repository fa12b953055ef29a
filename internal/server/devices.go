package server

import (
	"net/http"

	"github.com/berfenger/lanremote/internal/core/domain"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AddDeviceRequest struct {
	Name string            `json:"name"`
	Mac  string            `json:"mac"`
	Ip   string            `json:"ip"`
	Type domain.DeviceType `json:"type,omitempty"`
}

type DispatchResult struct {
	Success bool `json:"success"`
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) GetDeviceHandler(c echo.Context) error {
	device, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, device)
}

func (s *Server) AddDeviceHandler(c echo.Context) error {
	req := AddDeviceRequest{}
	if err := bindBody(c, &req); err != nil {
		return errorJSON(c, err)
	}
	device, err := s.registry.Add(domain.Device{
		Name: req.Name,
		Mac:  req.Mac,
		Ip:   req.Ip,
		Type: req.Type,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	s.registryChanged()
	return c.JSON(http.StatusCreated, device)
}

func (s *Server) UpdateDeviceHandler(c echo.Context) error {
	patch := domain.DevicePatch{}
	if err := bindBody(c, &patch); err != nil {
		return errorJSON(c, err)
	}
	device, err := s.registry.Update(c.Param("id"), patch)
	if err != nil {
		return errorJSON(c, err)
	}
	s.registryChanged()
	return c.JSON(http.StatusOK, device)
}

func (s *Server) RemoveDeviceHandler(c echo.Context) error {
	if err := s.registry.Remove(c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	s.registryChanged()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ClearDevicesHandler(c echo.Context) error {
	if err := s.registry.Clear(); err != nil {
		return errorJSON(c, err)
	}
	s.registryChanged()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) SetActiveDeviceHandler(c echo.Context) error {
	device, err := s.registry.SetActive(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, device)
}

func (s *Server) ActiveDeviceHandler(c echo.Context) error {
	device, ok := s.registry.Active()
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: CodeNoActiveDevice, Error: "no active device selected"})
	}
	return c.JSON(http.StatusOK, device)
}

// DispatchActionHandler sends one action to the companion server.
// Power actions schedule a reconciliation through the master actor.
func (s *Server) DispatchActionHandler(c echo.Context) error {
	params := map[string]any{}
	if err := bindBody(c, &params); err != nil {
		return errorJSON(c, err)
	}
	action, err := domain.ParseAction(c.Param("action"), params)
	if err != nil {
		return errorJSON(c, err)
	}
	success, err := s.gateway.Dispatch(c.Request().Context(), action, c.Param("id"))
	if err != nil {
		s.logger.Warn("server: dispatch failed", zap.String("action", string(action.Kind())),
			zap.String("device", c.Param("id")), zap.Error(err))
		return errorJSON(c, err)
	}
	if delay, ok := s.gateway.ResyncDelay(action); ok {
		s.rootContext.Send(s.masterActor, domain.ScheduleResyncRequest{DelayMillis: uint32(delay.Milliseconds())})
	}
	return c.JSON(http.StatusOK, DispatchResult{Success: success})
}

type SyncResult struct {
	Changed []domain.Device `json:"changed"`
}

func (s *Server) SyncHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SyncNowRequest{}, SYNC_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: CodeActorUnavailable, Error: err.Error()})
	}
	response, ok := res.(domain.SyncNowResponse)
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: CodeActorUnavailable, Error: "unexpected sync response"})
	}
	if response.HasResponseError() {
		return errorJSON(c, response.GetResponseError())
	}
	changed := response.Changed
	if changed == nil {
		changed = []domain.Device{}
	}
	return c.JSON(http.StatusOK, SyncResult{Changed: changed})
}

func (s *Server) registryChanged() {
	s.eventStream.Publish(domain.RegistryChangedEvent{Devices: s.registry.List()})
}

// bindBody decodes the JSON body only, leaving path params out of the target.
func bindBody(c echo.Context, target any) error {
	binder := &echo.DefaultBinder{}
	return binder.BindBody(c, target)
}
