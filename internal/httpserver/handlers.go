package httpserver

import (
	"cmp"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/xferwatch/internal/notification"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// handleError logs err under a correlation id and writes it to the client.
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	s.log.Warn("api error",
		"correlation_id", resp.CorrelationID,
		"path", c.Path(),
		"ip", c.RealIP(),
		"message", message,
		"error", resp.Error,
		"code", code)
	return c.JSON(code, resp)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	disabled := 0
	active := s.registry.Active()
	for _, n := range active {
		if n.Disabled() {
			disabled++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "healthy",
		"uptime":             uptime.Round(time.Second).String(),
		"uptime_seconds":     uptime.Seconds(),
		"providers":          len(active),
		"disabled_providers": disabled,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

func (s *Server) listProviders(c echo.Context) error {
	active := s.registry.Active()
	out := make([]notification.ProviderStatus, 0, len(active))
	for _, n := range active {
		out = append(out, n.Status())
	}
	slices.SortFunc(out, func(a, b notification.ProviderStatus) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getProvider(c echo.Context) error {
	n, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		return s.handleError(c, nil, "provider not found", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, n.Status())
}

// resetProvider re-enables a provider disabled after repeated failures.
func (s *Server) resetProvider(c echo.Context) error {
	id := c.Param("id")
	n, ok := s.registry.Lookup(id)
	if !ok {
		return s.handleError(c, nil, "provider not found", http.StatusNotFound)
	}
	wasDisabled := n.Disabled()
	n.Reset()
	s.log.Info("provider reset", "provider", id, "was_disabled", wasDisabled, "ip", c.RealIP())
	return c.JSON(http.StatusOK, n.Status())
}

// NotifyRequest is the body of POST /api/v1/notify.
type NotifyRequest struct {
	Text  string         `json:"text"`
	Level string         `json:"level"`
	Type  string         `json:"type"`
	Extra map[string]any `json:"extra"`
}

// NotifyResponse reports the outcome per provider.
type NotifyResponse struct {
	Delivered bool            `json:"delivered"`
	Results   map[string]bool `json:"results"`
}

func (s *Server) notify(c echo.Context) error {
	var req NotifyRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.Text) == "" {
		return s.handleError(c, nil, "text is required", http.StatusBadRequest)
	}

	level := notification.LevelInfo
	if req.Level != "" {
		level = notification.Level(strings.ToUpper(req.Level))
		if !level.Valid() {
			return s.handleError(c, nil, "unknown level "+req.Level, http.StatusBadRequest)
		}
	}
	typ := notification.TypeCustom
	if req.Type != "" {
		typ = notification.Type(strings.ToUpper(req.Type))
		if !typ.Valid() {
			return s.handleError(c, nil, "unknown type "+req.Type, http.StatusBadRequest)
		}
	}

	results := s.dispatcher.Notify(c.Request().Context(), req.Text, level, typ, req.Extra)
	return c.JSON(http.StatusOK, NotifyResponse{
		Delivered: notification.Succeeded(results),
		Results:   results,
	})
}

func (s *Server) transferStatus(c echo.Context) error {
	if s.transfer == nil {
		return s.handleError(c, nil, "no transfer is being monitored", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, s.transfer.Status())
}
