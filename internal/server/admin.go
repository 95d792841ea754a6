package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fichaje/holded-relay/internal/response"
)

// newAdmin serves metrics and liveness on a separate listener so the relay's
// own route set stays exactly the Holded routes.
func (s *Server) newAdmin() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return response.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	return e
}
