package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/services/session"
)

type AdminHandler struct {
	DB       *gorm.DB
	Sessions *session.Store
	// SessionTTL is the session token lifetime.
	SessionTTL time.Duration
}

func NewAdminHandler(db *gorm.DB, sessions *session.Store, sessionTTL time.Duration) *AdminHandler {
	return &AdminHandler{DB: db, Sessions: sessions, SessionTTL: sessionTTL}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.User{})
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		q = q.Where("LOWER(email) LIKE ?", likePattern(s))
	}
	if role := c.Query("role"); role != "" {
		q = q.Where("role = ?", role)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load users", err)
	}

	var users []models.User
	if err := q.Preload("Profile").Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&users).Error; err != nil {
		return fail500(c, "failed to load users", err)
	}
	return okPage(c, users, p, total)
}

type SetActiveReq struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// SetActive enables or disables an account. Disabling also ends the account's
// open sessions.
func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req SetActiveReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	res := h.DB.WithContext(c.UserContext()).Model(&models.User{}).Where("id = ?", id).Update("is_active", *req.IsActive)
	if res.Error != nil {
		return fail500(c, "failed to update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "User not found")
	}

	if !*req.IsActive && h.Sessions != nil {
		if err := h.Sessions.RevokeUser(c.UserContext(), id.String(), h.SessionTTL); err != nil {
			return fail500(c, "failed to end user sessions", err)
		}
	}

	return c.JSON(fiber.Map{"success": true, "message": "User updated"})
}
