package marketplace

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/servicehub/internal/apperr"
)

type Handler struct {
	store *Store
}

func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

// CreateListing allows a provider to post a new service
func (h *Handler) CreateListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req Fields
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	l, err := h.store.Create(uid, req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "service": l})
}

// UpdateListing lets the owning provider patch a listing
func (h *Handler) UpdateListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req Patch
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	l, err := h.store.Edit(c.Param("id"), uid, req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "service": l})
}

// GetListing returns one listing and counts the view
func (h *Handler) GetListing(c echo.Context) error {
	l, err := h.store.View(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func queryInt(c echo.Context, name string) (int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer")
	}
	return n, nil
}

// SearchListings returns active listings, newest first
func (h *Handler) SearchListings(c echo.Context) error {
	f := Filter{
		Category: c.QueryParam("category"),
		Location: c.QueryParam("location"),
		Search:   c.QueryParam("search"),
		Limit:    100,
	}
	var err error
	if f.MinPrice, err = queryInt(c, "minPrice"); err != nil {
		return apperr.JSON(c, err)
	}
	if f.MaxPrice, err = queryInt(c, "maxPrice"); err != nil {
		return apperr.JSON(c, err)
	}
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			f.Limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			f.Offset = v
		}
	}

	return c.JSON(http.StatusOK, h.store.Search(f))
}

// MyListings returns listings the caller provides or requested (?type=provided|requested)
func (h *Handler) MyListings(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o := Ownership(c.QueryParam("type"))
	switch o {
	case "":
		o = OwnershipAll
	case OwnershipAll, OwnershipProvided, OwnershipRequested:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be all, provided or requested"})
	}

	out := h.store.ListForUser(uid, o)
	if out == nil {
		out = []Listing{}
	}
	return c.JSON(http.StatusOK, out)
}
