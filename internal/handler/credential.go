package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fichaje/holded-relay/internal/model"
	"github.com/fichaje/holded-relay/internal/response"
)

const credentialKey = "holded_credential"

// RequireCredential rejects any request without an X-Holded-API-Key header
// before routing. The key is not checked further; Holded decides if it is valid.
func RequireCredential() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cred := model.Credential(c.Request().Header.Get(model.CredentialHeader))
			if cred.Empty() {
				zerolog.Ctx(c.Request().Context()).Warn().
					Str("path", c.Request().URL.Path).
					Msg("request without credential")
				return response.Unauthorized(c)
			}
			c.Set(credentialKey, cred)
			return next(c)
		}
	}
}

// CredentialFrom returns the key stored by RequireCredential.
func CredentialFrom(c echo.Context) model.Credential {
	cred, _ := c.Get(credentialKey).(model.Credential)
	return cred
}
