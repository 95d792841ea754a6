package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fichaje/holded-relay/internal/response"
)

// CORS answers OPTIONS requests itself and stamps the CORS header set on
// every other response before routing, so 401s, 404s and error envelopes
// carry it too.
//
// A preflight needs Origin plus both Access-Control-Request-* headers and is
// answered 200 with an empty body. Any other OPTIONS gets 204 and an Allow
// header only.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodOptions {
				response.SetCORS(c.Response().Header())
				return next(c)
			}

			if isPreflight(req.Header) {
				response.SetCORS(c.Response().Header())
				return c.NoContent(http.StatusOK)
			}
			c.Response().Header().Set(echo.HeaderAllow, response.AllowMethods)
			return c.NoContent(http.StatusNoContent)
		}
	}
}

// isPreflight checks header presence only; an empty value still counts.
func isPreflight(h http.Header) bool {
	for _, name := range []string{
		echo.HeaderOrigin,
		echo.HeaderAccessControlRequestMethod,
		echo.HeaderAccessControlRequestHeaders,
	} {
		if len(h.Values(name)) == 0 {
			return false
		}
	}
	return true
}
