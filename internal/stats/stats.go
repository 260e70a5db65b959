package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

type UserCounter interface {
	Count() int
}

type ListingStats interface {
	Stats() marketplace.Stats
	UserStats(userID string) marketplace.UserStats
}

type TransactionStats interface {
	Stats(userID string) (wallet.PlatformStats, wallet.UserStats)
}

type UnreadCounter interface {
	TotalUnread(userID string) int
}

type Platform struct {
	TotalUsers int `json:"totalUsers"`
	marketplace.Stats
	wallet.PlatformStats
}

type User struct {
	TotalEarnings               int64 `json:"totalEarnings"`
	TotalSpent                  int64 `json:"totalSpent"`
	CompletedServicesAsProvider int   `json:"completedServicesAsProvider"`
	CompletedServicesAsClient   int   `json:"completedServicesAsClient"`
	ActiveServicesAsProvider    int   `json:"activeServicesAsProvider"`
	ActiveServicesAsClient      int   `json:"activeServicesAsClient"`
	UnreadMessages              int   `json:"unreadMessages"`
}

type Handler struct {
	users        UserCounter
	listings     ListingStats
	transactions TransactionStats
	messages     UnreadCounter
}

func NewHandler(users UserCounter, listings ListingStats, transactions TransactionStats, messages UnreadCounter) *Handler {
	return &Handler{users: users, listings: listings, transactions: transactions, messages: messages}
}

func (h *Handler) Collect(userID string) (Platform, User) {
	ps, us := h.transactions.Stats(userID)
	ls := h.listings.UserStats(userID)
	platform := Platform{
		TotalUsers:    h.users.Count(),
		Stats:         h.listings.Stats(),
		PlatformStats: ps,
	}
	return platform, User{
		TotalEarnings:               us.TotalEarnings,
		TotalSpent:                  us.TotalSpent,
		CompletedServicesAsProvider: ls.CompletedAsProvider,
		CompletedServicesAsClient:   ls.CompletedAsClient,
		ActiveServicesAsProvider:    ls.ActiveAsProvider,
		ActiveServicesAsClient:      ls.ActiveAsClient,
		UnreadMessages:              h.messages.TotalUnread(userID),
	}
}

// GET /stats
func (h *Handler) Stats(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	platform, mine := h.Collect(userID)
	return c.JSON(http.StatusOK, echo.Map{
		"platform": platform,
		"user":     mine,
	})
}
