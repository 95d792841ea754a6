// Package observability wires New Relic APM into the relay. Everything here is
// a no-op when no license key is configured.
package observability

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/fichaje/holded-relay/internal/config"
)

// NewApplication returns nil, nil when New Relic is not configured.
func NewApplication(cfg config.ObservabilityConfig) (*newrelic.Application, error) {
	if !cfg.NewRelic.Enabled() {
		return nil, nil
	}
	return newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelic.AppName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"env": cfg.Environment}
		},
	)
}

// Middleware starts one web transaction per routed request, named by route
// pattern so employee ids do not explode the transaction count.
func Middleware(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if app == nil {
			return next
		}
		return func(c echo.Context) error {
			txn := app.StartTransaction(c.Request().Method + " " + c.Path())
			defer txn.End()

			txn.SetWebRequestHTTP(c.Request())
			c.Response().Writer = txn.SetWebResponse(c.Response().Writer)
			c.SetRequest(c.Request().WithContext(newrelic.NewContext(c.Request().Context(), txn)))

			err := next(c)
			if err != nil {
				txn.NoticeError(err)
			}
			return err
		}
	}
}

// RoundTripper records Holded calls as external segments of the current transaction.
func RoundTripper(app *newrelic.Application, next http.RoundTripper) http.RoundTripper {
	if app == nil {
		return next
	}
	return newrelic.NewRoundTripper(next)
}
