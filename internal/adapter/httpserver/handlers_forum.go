package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/fanpulse/internal/platform/errors"
)

const maxTimelineLimit = 500

func (s *Server) registerForumRoutes() {
	s.echo.GET("/api/forums/:id/timeline", s.handleTimeline)
}

func (s *Server) handleTimeline(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return err
	}

	items, err := s.app.Timeline(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, items); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// parseLimit reads the optional limit query parameter. Absent means no limit.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxTimelineLimit {
		return 0, apperrors.ValidationError(fmt.Sprintf("limit must be between 1 and %d", maxTimelineLimit)).WithContext("limit", raw)
	}
	return limit, nil
}
