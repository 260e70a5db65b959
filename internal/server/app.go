package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/auth"
	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/config"
	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/messaging"
	mware "github.com/sudo-init-do/servicehub/internal/middleware"
	"github.com/sudo-init-do/servicehub/internal/realtime"
	"github.com/sudo-init-do/servicehub/internal/stats"
	"github.com/sudo-init-do/servicehub/internal/tasks"
	"github.com/sudo-init-do/servicehub/internal/user"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

type Options struct {
	Config    *config.Config
	Clock     clock.Clock
	Scheduler tasks.Scheduler
	Journal   wallet.Journal
	Hasher    user.Hasher
	// Ready reports whether backing services are reachable; nil means always ready.
	Ready func(ctx context.Context) error
	Log   zerolog.Logger
}

// App holds the wired components behind the HTTP surface.
type App struct {
	Echo     *echo.Echo
	Users    *user.Store
	Listings *marketplace.Store
	Engine   *wallet.Engine
	Messages *messaging.Service
	Hub      *realtime.Hub
	Issuer   *auth.Issuer
}

func NewApp(opts Options) (*App, error) {
	cfg := opts.Config
	if opts.Hasher == nil {
		opts.Hasher = user.BcryptHasher{Cost: cfg.Auth.BcryptCost}
	}

	commission, err := wallet.NewCommission(cfg.Payments.CommissionRate)
	if err != nil {
		return nil, err
	}
	policy, err := wallet.NewPolicy(cfg.Payments.Policy, cfg.Payments.VerificationCodes, cfg.Payments.MerchantNumbers)
	if err != nil {
		return nil, fmt.Errorf("payment policy: %w", err)
	}

	users := user.NewStore(opts.Hasher, opts.Clock)
	listings := marketplace.NewStore(users, opts.Clock)
	hub := realtime.NewHub(users, realtime.DefaultSessionBuffer, opts.Log.With().Str("component", "realtime").Logger())
	engine := wallet.NewEngine(users, listings, hub, opts.Scheduler, opts.Clock, wallet.Options{
		Policy:          policy,
		Commission:      commission,
		SettlementDelay: cfg.Payments.SettlementDelay,
		WithdrawalDelay: cfg.Payments.WithdrawalDelay,
		Journal:         opts.Journal,
		Logger:          opts.Log.With().Str("component", "wallet").Logger(),
	})
	messages := messaging.NewService(messaging.NewStore(opts.Clock), users, listings, hub,
		opts.Log.With().Str("component", "messaging").Logger())
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.AdminPhones, opts.Clock)

	app := &App{
		Users:    users,
		Listings: listings,
		Engine:   engine,
		Messages: messages,
		Hub:      hub,
		Issuer:   issuer,
	}
	app.Echo = app.routes(opts)
	return app, nil
}

func (a *App) routes(opts Options) *echo.Echo {
	cfg := opts.Config
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(mware.RequestLogger(opts.Log.With().Str("component", "http").Logger()))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Server.Origin},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))

	authH := auth.NewHandler(a.Users, a.Issuer, opts.Log.With().Str("component", "auth").Logger())
	userH := user.NewHandler(a.Users)
	listingH := marketplace.NewHandler(a.Listings)
	walletH := wallet.NewHandler(a.Engine)
	msgH := messaging.NewHandler(a.Messages)
	statsH := stats.NewHandler(a.Users, a.Listings, a.Engine, a.Messages)
	gateway := realtime.NewGateway(a.Hub, a.Messages, cfg.Server.Origin, opts.Log.With().Str("component", "ws").Logger())

	// Health and readiness
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "servicehub", "policy": a.Engine.Policy()})
	})
	e.GET("/ready", func(c echo.Context) error {
		if opts.Ready != nil {
			if err := opts.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Public routes
	e.POST("/register", authH.Register)
	e.POST("/login", authH.Login)
	e.GET("/listings", listingH.SearchListings)
	e.GET("/listings/:id", listingH.GetListing)
	e.GET("/users/:id/profile", userH.PublicProfile)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware(a.Issuer))

	api.GET("/me", userH.Me)
	api.PUT("/me", userH.UpdateProfile)
	api.GET("/me/listings", listingH.MyListings)
	api.GET("/me/transactions", walletH.History)
	api.GET("/me/balance", walletH.Balance)

	api.POST("/listings", listingH.CreateListing, mware.RequireRoles(user.RoleProvider, user.RoleBoth))
	api.PUT("/listings/:id", listingH.UpdateListing)
	api.POST("/listings/:id/complete", walletH.CompleteListing)
	api.POST("/listings/:id/cancel", walletH.CancelListing)

	api.POST("/transactions/payment", walletH.Pay)
	api.GET("/transactions/:id", walletH.GetTransaction)
	api.POST("/withdraw", walletH.Withdraw)

	api.GET("/conversations", msgH.ListConversations)
	api.POST("/conversations", msgH.OpenConversation)
	api.GET("/conversations/unread", msgH.UnreadCount)
	api.GET("/conversations/:id/messages", msgH.ListMessages)
	api.POST("/conversations/:id/messages", msgH.SendMessage)
	api.POST("/conversations/:id/read", msgH.MarkRead)

	api.GET("/stats", statsH.Stats)
	api.GET("/ws", gateway.ServeWS)

	// Admin routes
	admin := e.Group("/admin")
	admin.Use(mware.JWTMiddleware(a.Issuer))
	admin.Use(mware.AdminGuard)

	admin.GET("/transactions/awaiting", walletH.ListAwaitingConfirmation)
	admin.POST("/transactions/:id/confirm", walletH.ConfirmPayment)
	admin.POST("/transactions/:id/reject", walletH.RejectPayment)

	return e
}
