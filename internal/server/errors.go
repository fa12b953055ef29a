package server

import (
	"errors"
	"net/http"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Stable error codes returned to API clients as {domain}.{error}.
const (
	CodeValidation          = "validation.failed"
	CodeActionUnknown       = "action.unknown"
	CodeActionInvalidParams = "action.invalid_params"
	CodeRegistryNotFound    = "registry.not_found"
	CodeRegistryDuplicate   = "registry.duplicate"
	CodeNoActiveDevice      = "registry.no_active_device"
	CodeNotDiscovered       = "gateway.not_discovered"
	CodeTransport           = "gateway.transport"
	CodeTimeout             = "gateway.timeout"
	CodeDiscoveryNotFound   = "discovery.not_found"
	CodeDiscoveryInvalid    = "discovery.invalid_params"
	CodeActorUnavailable    = "server.actor_unavailable"
	CodeBadRequest          = "server.bad_request"
	CodeInternal            = "server.internal"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ErrorCode maps err to its stable code and HTTP status.
func ErrorCode(err error) (string, int) {
	var terr *service.TransportError
	var herr *echo.HTTPError
	switch {
	case err == nil:
		return "", http.StatusOK
	case errors.Is(err, domain.ErrUnknownAction):
		return CodeActionUnknown, http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidParams):
		return CodeActionInvalidParams, http.StatusBadRequest
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation, http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidScanParams):
		return CodeDiscoveryInvalid, http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateAddress):
		return CodeRegistryDuplicate, http.StatusConflict
	case errors.Is(err, service.ErrDeviceNotFound):
		return CodeRegistryNotFound, http.StatusNotFound
	case errors.Is(err, service.ErrServerNotFound):
		return CodeDiscoveryNotFound, http.StatusNotFound
	case errors.Is(err, service.ErrServerNotDiscovered):
		return CodeNotDiscovered, http.StatusPreconditionFailed
	case errors.As(err, &terr):
		if terr.Timeout() {
			return CodeTimeout, http.StatusGatewayTimeout
		}
		return CodeTransport, http.StatusBadGateway
	case errors.As(err, &herr):
		if herr.Code >= http.StatusInternalServerError {
			return CodeInternal, herr.Code
		}
		return CodeBadRequest, herr.Code
	}
	return CodeInternal, http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	code, status := ErrorCode(err)
	message := err.Error()
	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		if m, ok := herr.Message.(string); ok {
			message = m
		}
	}
	return c.JSON(status, ErrorResponse{Code: code, Error: message})
}

// errorHandler renders errors echo raises itself, like unknown routes, in the same shape.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if err := errorJSON(c, err); err != nil {
		s.logger.Error("server: error response failed", zap.Error(err))
	}
}
