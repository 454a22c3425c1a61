package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

const (
	SessionCookieName = "session"

	ContextUserUID   = "userUID"
	ContextUserEmail = "userEmail"
	ContextUserName  = "userName"
	ContextActor     = "actor"
	ContextUser      = "user"
)

// TokenVerifier is the part of the Firebase auth client the middleware needs.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header || token == "" {
		return "", false
	}
	return token, true
}

func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})
}

// RequireAuth accepts a Firebase ID token in the Authorization header or a
// Firebase session cookie and stores the caller's identity in the context.
func RequireAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return services.ConfigError(errors.New("firebase auth is not initialized"))
			}
			ctx := c.Request().Context()

			var (
				token *auth.Token
				err   error
			)
			if idToken, ok := BearerToken(c); ok {
				token, err = verifier.VerifyIDToken(ctx, idToken)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
				}
			} else {
				cookie, cerr := c.Cookie(SessionCookieName)
				if cerr != nil || cookie.Value == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to continue.")
				}
				token, err = verifier.VerifySessionCookie(ctx, cookie.Value)
				if err != nil {
					clearSessionCookie(c)
					return echo.NewHTTPError(http.StatusUnauthorized, "Session expired")
				}
			}

			c.Set(ContextUserUID, token.UID)
			if email, ok := token.Claims["email"].(string); ok {
				c.Set(ContextUserEmail, email)
			}
			if name, ok := token.Claims["name"].(string); ok {
				c.Set(ContextUserName, name)
			}

			return next(c)
		}
	}
}

// RequireRole loads the caller's user document and rejects callers whose
// role is not listed. With no roles every registered user passes. Must run
// after RequireAuth.
func RequireRole(store services.Store, log *zap.Logger, roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get(ContextUserUID).(string)
			if uid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to continue.")
			}

			user, err := store.GetUser(c.Request().Context(), uid)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					return echo.NewHTTPError(http.StatusForbidden, "Complete your registration first.")
				}
				log.Error("middleware.RequireRole failed to load user", zap.String("uid", uid), zap.Error(err))
				return services.UpstreamError("failed to load user", err)
			}

			if len(roles) > 0 && !hasRole(user.Role, roles) {
				return echo.NewHTTPError(http.StatusForbidden, "You don't have permission to access this resource.")
			}

			c.Set(ContextUser, user)
			c.Set(ContextActor, services.Actor{ID: user.ID, Role: user.Role})
			return next(c)
		}
	}
}

func hasRole(role models.Role, allowed []models.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// ActorFrom returns the actor stored by RequireRole.
func ActorFrom(c echo.Context) (services.Actor, bool) {
	actor, ok := c.Get(ContextActor).(services.Actor)
	return actor, ok
}
