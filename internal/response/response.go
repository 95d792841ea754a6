package response

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fichaje/holded-relay/internal/model"
)

const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type, " + model.CredentialHeader

	notFoundBody = "Not Found"
)

// APIError is the only error body the relay emits.
type APIError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SetCORS writes the fixed CORS header set.
func SetCORS(h http.Header) {
	h.Set(echo.HeaderAccessControlAllowOrigin, AllowOrigin)
	h.Set(echo.HeaderAccessControlAllowMethods, AllowMethods)
	h.Set(echo.HeaderAccessControlAllowHeaders, AllowHeaders)
}

// Raw sends an upstream payload untouched.
func Raw(c echo.Context, status int, body json.RawMessage) error {
	return c.JSONBlob(status, body)
}

// JSON encodes v as the response body.
func JSON(c echo.Context, status int, v any) error {
	return c.JSON(status, v)
}

// Error sends the {error, details} envelope.
func Error(c echo.Context, status int, message, details string) error {
	return c.JSON(status, APIError{Error: message, Details: details})
}

// Unauthorized sends 401 for a request without a credential.
func Unauthorized(c echo.Context) error {
	return Error(c, http.StatusUnauthorized, "No token provided", "")
}

// InternalError sends 500 with message and error detail.
func InternalError(c echo.Context, message, details string) error {
	return Error(c, http.StatusInternalServerError, message, details)
}

// NotFound sends the plain-text 404 used for every unmatched request.
func NotFound(c echo.Context) error {
	return c.String(http.StatusNotFound, notFoundBody)
}
