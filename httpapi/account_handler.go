package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fundflow/account"
)

type AccountHandler struct {
	accounts *account.Service
}

func NewAccountHandler(accounts *account.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Get returns one user's public profile.
func (h *AccountHandler) Get(c *gin.Context) {
	profile, err := h.accounts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profileView(profile))
}

// List returns profiles filtered by role.
func (h *AccountHandler) List(c *gin.Context) {
	role := c.Query("role")
	if role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role query parameter is required", "field": "role"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	profiles, err := h.accounts.ListByRole(c.Request.Context(), role, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, profileView(p))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func profileView(p account.Profile) gin.H {
	view := gin.H{
		"id":         p.ID,
		"full_name":  p.FullName,
		"role":       p.Role,
		"created_at": p.CreatedAt.Format(time.RFC3339),
	}
	if p.Organization != nil {
		view["organization"] = *p.Organization
	}
	return view
}
