package handlers

import (
	"context"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"timeplus_app/internal/middleware"
	"timeplus_app/internal/services"
)

const sessionCookieTTL = 5 * 24 * time.Hour

// SessionIssuer verifies ID tokens and mints session cookies.
type SessionIssuer interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// AuthHandler handles authentication and account creation.
type AuthHandler struct {
	authClient   SessionIssuer
	accounts     *services.AccountService
	cookieSecure bool
	log          *zap.Logger
}

func NewAuthHandler(authClient SessionIssuer, accounts *services.AccountService, cookieSecure bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authClient: authClient, accounts: accounts, cookieSecure: cookieSecure, log: log}
}

func (h *AuthHandler) verifyBearer(c echo.Context) (*auth.Token, string, error) {
	if h.authClient == nil {
		return nil, "", echo.NewHTTPError(http.StatusInternalServerError, "Firebase not initialized")
	}
	tokenString, ok := middleware.BearerToken(c)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
	}
	token, err := h.authClient.VerifyIDToken(c.Request().Context(), tokenString)
	if err != nil {
		return nil, "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}
	return token, tokenString, nil
}

// HandleLogin exchanges a Firebase ID token for a session cookie.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	token, tokenString, err := h.verifyBearer(c)
	if err != nil {
		return err
	}

	cookieValue, err := h.authClient.SessionCookie(c.Request().Context(), tokenString, sessionCookieTTL)
	if err != nil {
		h.log.Error("authHandler.HandleLogin failed to create session cookie", zap.String("uid", token.UID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create session")
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    cookieValue,
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

// HandleLogout clears the session cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

type signupRequest struct {
	Name      string `json:"name" validate:"required"`
	CPF       string `json:"cpf" validate:"required"`
	Whatsapp  string `json:"whatsapp" validate:"required"`
	Role      string `json:"role" validate:"required"`
	CRPNumber string `json:"crpNumber"`
	CRPState  string `json:"crpState"`
}

// Signup creates the user document for the account behind the Bearer token.
func (h *AuthHandler) Signup(c echo.Context) error {
	token, _, err := h.verifyBearer(c)
	if err != nil {
		return err
	}

	var req signupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	email, _ := token.Claims["email"].(string)
	user, err := h.accounts.Signup(c.Request().Context(), services.SignupInput{
		UID:       token.UID,
		Email:     email,
		Name:      req.Name,
		CPF:       req.CPF,
		Whatsapp:  req.Whatsapp,
		Role:      req.Role,
		CRPNumber: req.CRPNumber,
		CRPState:  req.CRPState,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}
