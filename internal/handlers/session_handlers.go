package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"timeplus_app/internal/middleware"
	"timeplus_app/internal/services"
)

// SessionHandler serves the session lifecycle endpoints. Every route runs
// behind RequireRole, so an actor is always present.
type SessionHandler struct {
	sessions *services.SessionService
	log      *zap.Logger
}

func NewSessionHandler(sessions *services.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

func (h *SessionHandler) List(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	sessions, err := h.sessions.ListForUser(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) Get(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	sess, err := h.sessions.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) Confirm(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	sess, err := h.sessions.Confirm(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) Cancel(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	sess, err := h.sessions.Cancel(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

type notesRequest struct {
	Note string `json:"psychologistNote"`
}

func (h *SessionHandler) SaveNotes(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := h.sessions.SaveNotes(c.Request().Context(), actor, c.Param("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

type leaveRequest struct {
	DurationSeconds int64 `json:"durationSeconds" validate:"gte=0"`
}

// Leave records a room exit. It always answers 200.
func (h *SessionHandler) Leave(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req leaveRequest
	if err := c.Bind(&req); err != nil {
		h.log.Warn("sessionHandler.Leave invalid body", zap.String("sessionId", c.Param("id")), zap.Error(err))
	}
	recorded := h.sessions.RecordRoomExit(c.Request().Context(), actor, c.Param("id"), req.DurationSeconds)
	return c.JSON(http.StatusOK, map[string]bool{"recorded": recorded})
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (h *SessionHandler) Review(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := h.sessions.SubmitReview(c.Request().Context(), actor, c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// CreateLegacy answers the old client-side session creation. Sessions are
// only created by the payment webhook now.
func (h *SessionHandler) CreateLegacy(c echo.Context) error {
	h.log.Warn("sessionHandler.CreateLegacy deprecated endpoint called",
		zap.String("uid", getStringFromContext(c, middleware.ContextUserUID)),
		zap.String("userAgent", c.Request().UserAgent()),
	)
	return &services.ServiceError{
		Kind:    services.KindGone,
		Message: "Sessions are created automatically after payment confirmation.",
	}
}
