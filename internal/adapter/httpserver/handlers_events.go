package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanpulse/internal/domain"
	apperrors "github.com/pscheid92/fanpulse/internal/platform/errors"
)

func (s *Server) registerEventRoutes() {
	limit := newRateLimiter(s.config.RateLimit, s.config.RateBurst)

	events := s.echo.Group("/api/events/:kind/:id")
	events.GET("/status", s.handleStatus)
	events.GET("/comments", s.handleComments)
	events.POST("/comments", s.handleAddComment, requireUser, limit)
	events.POST("/comments/:commentId/replies", s.handleAddReply, requireUser, limit)
	events.POST("/comments/:commentId/like", s.handleToggleLike, requireUser, limit)
	events.POST("/comments/:commentId/replies/:replyId/like", s.handleToggleLike, requireUser, limit)
}

type statusResponse struct {
	Status    string    `json:"status"`
	Countdown string    `json:"countdown"`
	Target    time.Time `json:"target"`
}

// messageRequest is the body of comment and reply posts.
type messageRequest struct {
	Message      string `json:"message"`
	ClientTempID string `json:"clientTempId"`
}

type likeResponse struct {
	CommentID string `json:"commentId"`
	ReplyID   string `json:"replyId,omitempty"`
	Liked     bool   `json:"liked"`
	Likes     int    `json:"likes"`
	Version   uint64 `json:"version"`
}

func eventRef(c echo.Context) (domain.EventRef, error) {
	kind, err := domain.ParseEventKind(c.Param("kind"))
	if err != nil {
		return domain.EventRef{}, apperrors.ValidationError("unknown event kind").WithContext("kind", c.Param("kind"))
	}
	id := c.Param("id")
	if id == "" {
		return domain.EventRef{}, apperrors.ValidationError("missing event id")
	}
	return domain.EventRef{Kind: kind, ID: id}, nil
}

func bindMessage(c echo.Context) (messageRequest, error) {
	var req messageRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return messageRequest{}, apperrors.ValidationError("invalid request body")
	}
	return req, nil
}

func (s *Server) handleStatus(c echo.Context) error {
	ref, err := eventRef(c)
	if err != nil {
		return err
	}

	state, err := s.app.Status(c.Request().Context(), ref)
	if err != nil {
		return err
	}

	response := statusResponse{Status: string(state.Status), Countdown: state.Countdown, Target: state.Target}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleComments(c echo.Context) error {
	ref, err := eventRef(c)
	if err != nil {
		return err
	}

	comments, err := s.app.Comments(c.Request().Context(), ref)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, comments); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAddComment(c echo.Context) error {
	ref, err := eventRef(c)
	if err != nil {
		return err
	}
	req, err := bindMessage(c)
	if err != nil {
		return err
	}

	comment, err := s.app.AddComment(c.Request().Context(), ref, userID(c), req.Message, req.ClientTempID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, domain.CommentCreated{Comment: comment, TempID: req.ClientTempID}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAddReply(c echo.Context) error {
	ref, err := eventRef(c)
	if err != nil {
		return err
	}
	req, err := bindMessage(c)
	if err != nil {
		return err
	}

	reply, err := s.app.AddReply(c.Request().Context(), ref, c.Param("commentId"), userID(c), req.Message, req.ClientTempID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, domain.ReplyCreated{Reply: reply, TempID: req.ClientTempID}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleToggleLike serves both the comment and the reply like route; the reply route
// carries a replyId path parameter.
func (s *Server) handleToggleLike(c echo.Context) error {
	ref, err := eventRef(c)
	if err != nil {
		return err
	}

	target := domain.LikeTarget{CommentID: c.Param("commentId"), ReplyID: c.Param("replyId")}
	result, err := s.app.ToggleLike(c.Request().Context(), ref, target, userID(c))
	if err != nil {
		return err
	}

	response := likeResponse{
		CommentID: result.Target.CommentID,
		ReplyID:   result.Target.ReplyID,
		Liked:     result.Liked,
		Likes:     result.LikeCount,
		Version:   result.Version,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
