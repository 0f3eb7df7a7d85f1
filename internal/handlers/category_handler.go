package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CategoryHandler struct {
	DB *gorm.DB
}

func NewCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{DB: db}
}

// Distinct returns a handler listing the categories in use on table,
// counting only rows in one of the visible statuses.
func (h *CategoryHandler) Distinct(table string, visible ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var categories []string

		q := h.DB.WithContext(c.UserContext()).
			Table(table).
			Where("category <> ''")
		if len(visible) > 0 {
			q = q.Where("status IN ?", visible)
		}

		if err := q.Distinct("category").Order("category").Pluck("category", &categories).Error; err != nil {
			return fail500(c, "failed to load categories", err)
		}

		return c.JSON(fiber.Map{
			"success": true,
			"data":    categories,
		})
	}
}
