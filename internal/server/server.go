package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fichaje/holded-relay/internal/config"
	"github.com/fichaje/holded-relay/internal/handler"
	"github.com/fichaje/holded-relay/internal/holded"
	"github.com/fichaje/holded-relay/internal/metrics"
	"github.com/fichaje/holded-relay/internal/observability"
	"github.com/fichaje/holded-relay/internal/response"
)

const shutdownTimeout = 10 * time.Second

// Server holds the relay and admin Echo apps and their dependencies.
type Server struct {
	Echo   *echo.Echo
	Admin  *echo.Echo // nil unless observability.metrics_addr is set
	Config *config.Config

	logger  zerolog.Logger
	metrics *metrics.Metrics
	nrApp   *newrelic.Application
}

// New builds the relay and registers its routes. The upstream client is
// assembled from cfg.Upstream with metrics and APM transports layered on.
func New(cfg *config.Config, logger zerolog.Logger) *Server {
	nrApp, err := observability.NewApplication(cfg.Observability)
	if err != nil {
		logger.Warn().Err(err).Msg("new relic disabled")
		nrApp = nil
	}

	m := metrics.New()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	upstream := holded.NewClient(cfg.Upstream,
		observability.RoundTripper(nrApp, m.InstrumentRoundTripper(transport)),
	)

	s := &Server{Config: cfg, logger: logger, metrics: m, nrApp: nrApp}
	s.Echo = s.newRelay(&handler.EmployeeHandler{Upstream: upstream})
	if cfg.Observability.MetricsAddr != "" {
		s.Admin = s.newAdmin()
	}
	return s
}

func (s *Server) newRelay(h *handler.EmployeeHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Server.ReadTimeout = s.Config.Server.ReadTimeout
	e.Server.WriteTimeout = s.Config.Server.WriteTimeout
	e.Server.IdleTimeout = s.Config.Server.IdleTimeout

	// Pre middleware runs before routing so the preflight and credential
	// checks also cover requests no route matches.
	e.Pre(
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator:        uuid.NewString,
			RequestIDHandler: s.attachLogger,
		}),
		s.metrics.Middleware(),
		requestLogger(),
		middleware.Recover(),
		handler.CORS(),
		handler.RequireCredential(),
	)
	e.Use(
		observability.Middleware(s.nrApp),
		middleware.ContextTimeout(s.Config.Server.RequestTimeout),
	)

	for _, r := range routes(h) {
		e.Add(r.method, r.path, r.handle)
	}
	return e
}

// attachLogger stores a request-scoped logger in the request context.
func (s *Server) attachLogger(c echo.Context, requestID string) {
	l := s.logger.With().Str("request_id", requestID).Logger()
	c.SetRequest(c.Request().WithContext(l.WithContext(c.Request().Context())))
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log := zerolog.Ctx(c.Request().Context())
			ev := log.Info()
			if v.Error != nil {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// handleError replaces Echo's default handler. Unrouted requests, including a
// known path with the wrong method, get the plain-text 404; anything else is
// a 500 envelope. The CORS headers are already on the response by now.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && (he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed) {
		c.Response().Header().Del(echo.HeaderAllow)
		if err := response.NotFound(c); err != nil {
			zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("writing 404")
		}
		return
	}

	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("unhandled error")

	status := http.StatusInternalServerError
	if he != nil && he.Code >= http.StatusInternalServerError {
		status = he.Code
	}
	if err := response.Error(c, status, "Internal server error", http.StatusText(status)); err != nil {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("writing error response")
	}
}

// Start runs the relay (and the admin listener when configured) until ctx is
// cancelled or a listener fails, then shuts everything down.
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	addr := ":" + s.Config.Server.Port
	g.Go(func() error {
		s.logger.Info().Str("addr", addr).Str("upstream", s.Config.Upstream.BaseURL).Msg("relay listening")
		return ignoreClosed(s.Echo.Start(addr))
	})
	if s.Admin != nil {
		g.Go(func() error {
			s.logger.Info().Str("addr", s.Config.Observability.MetricsAddr).Msg("admin listening")
			return ignoreClosed(s.Admin.Start(s.Config.Observability.MetricsAddr))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown drains both listeners and flushes New Relic.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Echo.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.Admin != nil {
		if err := s.Admin.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nrApp != nil {
		s.nrApp.Shutdown(shutdownTimeout)
	}
	s.logger.Info().Msg("relay stopped")
	return errors.Join(errs...)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
