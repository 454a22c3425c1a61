package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"timeplus_app/internal/middleware"
	"timeplus_app/internal/models"
	"timeplus_app/internal/services"
)

// Router groups the handlers and what the auth middleware needs.
type Router struct {
	Verifier middleware.TokenVerifier
	Store    services.Store
	Log      *zap.Logger

	Auth     *AuthHandler
	Payments *PaymentHandler
	Catalog  *CatalogHandler
	Sessions *SessionHandler
	Finance  *FinanceHandler
	Admin    *AdminHandler
	Users    *UserHandler
}

func (r *Router) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public routes
	e.POST("/auth/login", r.Auth.HandleLogin)
	e.POST("/auth/logout", r.Auth.HandleLogout)
	e.POST("/api/signup", r.Auth.Signup)
	e.POST("/api/mp-webhook", r.Payments.Webhook)

	e.GET("/api/psychologists", r.Catalog.ListPsychologists)
	e.GET("/api/psychologists/:id", r.Catalog.GetPsychologist)
	e.GET("/api/psychologists/:id/slots", r.Catalog.Slots)

	// Registered users
	api := e.Group("/api", middleware.RequireAuth(r.Verifier), middleware.RequireRole(r.Store, r.Log))

	api.GET("/me", r.Users.Me)
	api.PUT("/me/settings", r.Users.UpdateSettings)
	api.PUT("/me/profile", r.Users.UpdateProfile)
	api.PUT("/me/availability", r.Users.UpdateAvailability)

	api.POST("/create-payment", r.Payments.CreatePayment)
	api.POST("/create-pix-payment", r.Payments.CreatePixPayment)

	api.GET("/sessions", r.Sessions.List)
	api.POST("/sessions", r.Sessions.CreateLegacy)
	api.GET("/sessions/:id", r.Sessions.Get)
	api.POST("/sessions/:id/confirm", r.Sessions.Confirm)
	api.POST("/sessions/:id/cancel", r.Sessions.Cancel)
	api.POST("/sessions/:id/notes", r.Sessions.SaveNotes)
	api.POST("/sessions/:id/leave", r.Sessions.Leave)
	api.POST("/sessions/:id/review", r.Sessions.Review)

	// Psychologist routes
	psychologist := e.Group("/api", middleware.RequireAuth(r.Verifier), middleware.RequireRole(r.Store, r.Log, models.RolePsychologist))
	psychologist.GET("/finance", r.Finance.Overview)
	psychologist.POST("/payouts", r.Finance.RequestPayout)

	// Admin routes
	admin := e.Group("/api/admin", middleware.RequireAuth(r.Verifier), middleware.RequireRole(r.Store, r.Log, models.RoleAdmin))
	admin.GET("/stats", r.Admin.Stats)
	admin.GET("/transactions", r.Admin.Transactions)
	admin.GET("/users", r.Admin.ListUsers)
	admin.GET("/users/:id", r.Admin.UserDetails)
	admin.GET("/payouts", r.Admin.ListPayouts)
	admin.POST("/payouts/:id/status", r.Admin.UpdatePayoutStatus)
	admin.GET("/callbacks/:paymentId", r.Admin.CallbackHistory)
}
