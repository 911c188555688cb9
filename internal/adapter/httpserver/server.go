package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/lifecycle"
	"github.com/pscheid92/fanpulse/internal/platform/config"
)

type appService interface {
	Status(ctx context.Context, ref domain.EventRef) (lifecycle.State, error)
	Comments(ctx context.Context, ref domain.EventRef) ([]domain.Comment, error)
	AddComment(ctx context.Context, ref domain.EventRef, authorID, body, tempID string) (domain.Comment, error)
	AddReply(ctx context.Context, ref domain.EventRef, commentID, authorID, body, tempID string) (domain.Reply, error)
	ToggleLike(ctx context.Context, ref domain.EventRef, target domain.LikeTarget, userID string) (domain.LikeResult, error)
	Timeline(ctx context.Context, forumID string, limit int) ([]domain.TimelineItem, error)
}

// Deps are the collaborators the server routes to. Metrics and MetricsHandler may be nil.
type Deps struct {
	App              appService
	WebsocketHandler http.Handler
	MetricsHandler   http.Handler
	Metrics          *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app              appService
	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics
	healthChecks     []HealthCheck

	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              deps.App,
		websocketHandler: deps.WebsocketHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.Metrics,
		healthChecks:     deps.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
