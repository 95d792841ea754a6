package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fichaje/holded-relay/internal/handler"
)

type route struct {
	method string
	path   string
	handle echo.HandlerFunc
}

// routes is the relay's complete surface. Anything not listed here is a 404.
func routes(h *handler.EmployeeHandler) []route {
	return []route{
		{http.MethodGet, "/api/employees", h.ListEmployees},
		{http.MethodGet, "/api/employees/:id/times", h.ListTimes},
		{http.MethodPost, "/api/employees/:id/clockin", h.ClockIn},
		{http.MethodPost, "/api/employees/:id/clockout", h.ClockOut},
	}
}
