package httpserver

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/lifecycle"
	"github.com/pscheid92/fanpulse/internal/platform/config"
)

// mockAppService implements appService. Unset functions return zero values.
type mockAppService struct {
	statusFn     func(ctx context.Context, ref domain.EventRef) (lifecycle.State, error)
	commentsFn   func(ctx context.Context, ref domain.EventRef) ([]domain.Comment, error)
	addCommentFn func(ctx context.Context, ref domain.EventRef, authorID, body, tempID string) (domain.Comment, error)
	addReplyFn   func(ctx context.Context, ref domain.EventRef, commentID, authorID, body, tempID string) (domain.Reply, error)
	toggleLikeFn func(ctx context.Context, ref domain.EventRef, target domain.LikeTarget, userID string) (domain.LikeResult, error)
	timelineFn   func(ctx context.Context, forumID string, limit int) ([]domain.TimelineItem, error)
}

func (m *mockAppService) Status(ctx context.Context, ref domain.EventRef) (lifecycle.State, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, ref)
	}
	return lifecycle.State{}, nil
}

func (m *mockAppService) Comments(ctx context.Context, ref domain.EventRef) ([]domain.Comment, error) {
	if m.commentsFn != nil {
		return m.commentsFn(ctx, ref)
	}
	return []domain.Comment{}, nil
}

func (m *mockAppService) AddComment(ctx context.Context, ref domain.EventRef, authorID, body, tempID string) (domain.Comment, error) {
	if m.addCommentFn != nil {
		return m.addCommentFn(ctx, ref, authorID, body, tempID)
	}
	return domain.Comment{}, nil
}

func (m *mockAppService) AddReply(ctx context.Context, ref domain.EventRef, commentID, authorID, body, tempID string) (domain.Reply, error) {
	if m.addReplyFn != nil {
		return m.addReplyFn(ctx, ref, commentID, authorID, body, tempID)
	}
	return domain.Reply{}, nil
}

func (m *mockAppService) ToggleLike(ctx context.Context, ref domain.EventRef, target domain.LikeTarget, userID string) (domain.LikeResult, error) {
	if m.toggleLikeFn != nil {
		return m.toggleLikeFn(ctx, ref, target, userID)
	}
	return domain.LikeResult{Target: target, UserID: userID}, nil
}

func (m *mockAppService) Timeline(ctx context.Context, forumID string, limit int) ([]domain.TimelineItem, error) {
	if m.timelineFn != nil {
		return m.timelineFn(ctx, forumID, limit)
	}
	return []domain.TimelineItem{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:    "test",
		Port:      "0",
		RateLimit: 1000,
		RateBurst: 1000,
	}
}

func withHealthChecks(checks ...HealthCheck) func(*config.Config, *Deps) {
	return func(_ *config.Config, d *Deps) { d.HealthChecks = checks }
}

func withRateLimit(ratePerSecond float64, burst int) func(*config.Config, *Deps) {
	return func(c *config.Config, _ *Deps) {
		c.RateLimit = ratePerSecond
		c.RateBurst = burst
	}
}

func withDeps(fn func(*Deps)) func(*config.Config, *Deps) {
	return func(_ *config.Config, d *Deps) { fn(d) }
}

func newTestServer(t *testing.T, app appService, opts ...func(*config.Config, *Deps)) *Server {
	t.Helper()

	cfg := testConfig()
	deps := Deps{App: app, Clock: clockwork.NewFakeClock()}
	for _, opt := range opts {
		opt(cfg, &deps)
	}
	return NewServer(cfg, deps)
}

// do sends a request through the full middleware chain. userID "" omits the header.
func do(t *testing.T, srv *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
