package wallet

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/servicehub/internal/apperr"
)

type Handler struct {
	engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// Pay starts a payment for a listing
func (h *Handler) Pay(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")
	}

	r, err := h.engine.InitiatePayment(c.Request().Context(), uid, req)
	if err != nil {
		return apperr.JSON(c, err)
	}

	msg := "payment is being processed"
	if r.Instructions != nil {
		msg = "send the payment to one of the merchant numbers using the reference"
	}
	resp := echo.Map{"success": true, "transaction": r.Transaction, "message": msg}
	if r.Instructions != nil {
		resp["instructions"] = r.Instructions
	}
	if r.Replayed {
		resp["replayed"] = true
	}
	return c.JSON(http.StatusOK, resp)
}

// CompleteListing confirms the service was delivered
func (h *Handler) CompleteListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	l, err := h.engine.CompleteService(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "service": l})
}

// CancelListing cancels a listing and its open payments
func (h *Handler) CancelListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	l, cancelled, err := h.engine.Cancel(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return apperr.JSON(c, err)
	}
	if cancelled == nil {
		cancelled = []Transaction{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "service": l, "cancelledTransactions": cancelled})
}

// Withdraw requests a payout of the caller's balance
func (h *Handler) Withdraw(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized or invalid user"})
	}

	var req WithdrawalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	tx, err := h.engine.Withdraw(c.Request().Context(), uid, req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"transaction": tx,
		"message":     "withdrawal request is being processed",
	})
}

// Balance returns the caller's balance and what can still be withdrawn
func (h *Handler) Balance(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	balance, available, err := h.engine.Balance(uid)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "balance": balance, "available": available})
}

// History returns the caller's latest transactions
func (h *Handler) History(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized or invalid user"})
	}

	limit := DefaultHistoryLimit
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return c.JSON(http.StatusOK, h.engine.ListForUser(uid, limit))
}

// GetTransaction returns one transaction the caller is party to
func (h *Handler) GetTransaction(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	tx, err := h.engine.Get(c.Param("id"), uid)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// ListAwaitingConfirmation returns manual payments waiting for an operator
func (h *Handler) ListAwaitingConfirmation(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"awaiting_confirmation": h.engine.ListByStatus(StatusAwaitingConfirmation),
	})
}

// ConfirmPayment releases a manual payment into settlement
func (h *Handler) ConfirmPayment(c echo.Context) error {
	tx, err := h.engine.ConfirmManualPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "transaction": tx})
}

// RejectPayment marks a manual payment as not received
func (h *Handler) RejectPayment(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&req)

	tx, err := h.engine.RejectManualPayment(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "transaction": tx})
}
