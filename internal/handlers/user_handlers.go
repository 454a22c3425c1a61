package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

// UserHandler serves the caller's own account.
type UserHandler struct {
	accounts *services.AccountService
}

func NewUserHandler(accounts *services.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

func (h *UserHandler) Me(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	user, err := h.accounts.Me(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

type settingsRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Whatsapp string `json:"whatsapp"`
}

func (h *UserHandler) UpdateSettings(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req settingsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.accounts.UpdateSettings(c.Request().Context(), actor, services.SettingsInput{
		Name:     req.Name,
		Email:    req.Email,
		Whatsapp: req.Whatsapp,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

type profileRequest struct {
	Title       string             `json:"title"`
	Bio         string             `json:"bio"`
	Specialties []string           `json:"specialties"`
	Rate        float64            `json:"rate" validate:"gt=0"`
	AvatarURL   string             `json:"avatarUrl" validate:"omitempty,url"`
	PayoutInfo  *models.PayoutInfo `json:"payoutInfo"`
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.accounts.UpdateProfile(c.Request().Context(), actor, services.ProfileInput{
		Title:       req.Title,
		Bio:         req.Bio,
		Specialties: req.Specialties,
		Rate:        req.Rate,
		AvatarURL:   req.AvatarURL,
		PayoutInfo:  req.PayoutInfo,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateAvailability replaces the weekly availability. The body is the
// day-keyed map returned in the user document.
func (h *UserHandler) UpdateAvailability(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var availability models.WeeklyAvailability
	if err := json.NewDecoder(c.Request().Body).Decode(&availability); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}
	user, err := h.accounts.UpdateAvailability(c.Request().Context(), actor, availability)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
