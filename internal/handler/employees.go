package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fichaje/holded-relay/internal/holded"
	"github.com/fichaje/holded-relay/internal/model"
	"github.com/fichaje/holded-relay/internal/response"
)

// Upstream is the subset of the Holded client the relay forwards to.
type Upstream interface {
	ListEmployees(ctx context.Context, key model.Credential) ([]json.RawMessage, error)
	ListTimes(ctx context.Context, key model.Credential, employeeID string) (*holded.Response, error)
	ClockIn(ctx context.Context, key model.Credential, employeeID string) (*holded.Response, error)
	ClockOut(ctx context.Context, key model.Credential, employeeID string) (*holded.Response, error)
}

type upstreamCall func(ctx context.Context, key model.Credential, employeeID string) (*holded.Response, error)

// action carries the messages a forwarding action reports on failure.
type action struct {
	name     string
	rejected string
	internal string
	shape    string
}

var (
	listEmployees = action{
		name:     "fetching employees",
		rejected: "Failed to fetch employees from Holded",
		internal: "Internal server error while fetching employees",
		shape:    "Unexpected response format from Holded API when fetching employees",
	}
	listTimes = action{
		name:     "fetching employee times",
		rejected: "Failed to fetch employee times",
		internal: "Internal server error fetching employee times",
	}
	clockIn = action{
		name:     "clock-in",
		rejected: "Failed to clock in",
		internal: "Internal server error during clock-in action",
	}
	clockOut = action{
		name:     "clock-out",
		rejected: "Failed to clock out",
		internal: "Internal server error during clock-out action",
	}
)

// EmployeeHandler serves the four relay routes.
type EmployeeHandler struct {
	Upstream Upstream
}

// ListEmployees returns every employee across all Holded pages (GET /api/employees).
func (h *EmployeeHandler) ListEmployees(c echo.Context) error {
	employees, err := h.Upstream.ListEmployees(c.Request().Context(), CredentialFrom(c))
	if err != nil {
		return fail(c, listEmployees, err)
	}
	return response.JSON(c, http.StatusOK, employees)
}

// ListTimes forwards GET /api/employees/:id/times.
func (h *EmployeeHandler) ListTimes(c echo.Context) error {
	return forward(c, listTimes, h.Upstream.ListTimes)
}

// ClockIn forwards POST /api/employees/:id/clockin.
func (h *EmployeeHandler) ClockIn(c echo.Context) error {
	return forward(c, clockIn, h.Upstream.ClockIn)
}

// ClockOut forwards POST /api/employees/:id/clockout.
func (h *EmployeeHandler) ClockOut(c echo.Context) error {
	return forward(c, clockOut, h.Upstream.ClockOut)
}

func forward(c echo.Context, a action, call upstreamCall) error {
	id, err := employeeID(c)
	if err != nil {
		return err
	}
	resp, err := call(c.Request().Context(), CredentialFrom(c), id)
	if err != nil {
		return fail(c, a, err)
	}
	return response.Raw(c, resp.StatusCode, resp.Body)
}

// employeeID returns the decoded :id segment. Echo routes on URL.RawPath when
// the request has one and leaves params percent-encoded in that case.
// An empty or undecodable segment is not a route, so it gets the 404.
func employeeID(c echo.Context) (string, error) {
	raw := c.Param("id")
	if raw == "" {
		return "", echo.ErrNotFound
	}
	if c.Request().URL.RawPath == "" {
		return raw, nil
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", echo.ErrNotFound
	}
	return id, nil
}

// fail maps an upstream error onto the relay's error envelope. Holded's own
// rejections keep Holded's status; anything that broke locally is a 500.
func fail(c echo.Context, a action, err error) error {
	log := zerolog.Ctx(c.Request().Context())

	var rejected *holded.StatusError
	var shape *holded.ShapeError
	switch {
	case errors.As(err, &rejected):
		log.Error().
			Int("status", rejected.StatusCode).
			Int("page", rejected.Page).
			Str("details", rejected.Body).
			Msgf("holded api error (%s)", a.name)
		return response.Error(c, rejected.StatusCode, a.rejected, rejected.Body)

	case errors.As(err, &shape) && a.shape != "":
		log.Error().Err(err).Msgf("holded api unexpected response format (%s)", a.name)
		return response.InternalError(c, a.shape, "")

	case errors.Is(err, holded.ErrPageLimit):
		log.Error().Err(err).Msgf("holded pagination cap reached (%s)", a.name)
		return response.Error(c, http.StatusBadGateway, "Holded API pagination did not terminate", err.Error())

	default:
		log.Error().Err(err).Msgf("error %s", a.name)
		return response.InternalError(c, a.internal, err.Error())
	}
}
