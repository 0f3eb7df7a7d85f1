package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

type EduTaskHandler struct {
	DB   *gorm.DB
	Feed realtime.Publisher
}

func NewEduTaskHandler(db *gorm.DB, feed realtime.Publisher) *EduTaskHandler {
	return &EduTaskHandler{DB: db, Feed: feed}
}

type EduTaskReq struct {
	Title       string     `json:"title" validate:"required,min=3,max=160"`
	Description string     `json:"description" validate:"max=10000"`
	Subject     string     `json:"subject" validate:"required,max=80"`
	Reward      int64      `json:"reward" validate:"gte=0"`
	DueDate     *time.Time `json:"due_date"`
}

type EduTaskStatusReq struct {
	Status string `json:"status" validate:"required,oneof=open in_progress done"`
}

func (h *EduTaskHandler) List(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.EduTask{})
	if subject := strings.TrimSpace(c.Query("subject")); subject != "" {
		q = q.Where("subject = ?", subject)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if c.Query("mine") == "true" {
		userID, err := getAuth(c)
		if err != nil {
			return err
		}
		q = q.Where("user_id = ?", userID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load tasks", err)
	}

	var tasks []models.EduTask
	if err := q.Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&tasks).Error; err != nil {
		return fail500(c, "failed to load tasks", err)
	}
	return okPage(c, tasks, p, total)
}

func (h *EduTaskHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req EduTaskReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	task := models.EduTask{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Subject:     strings.TrimSpace(req.Subject),
		Reward:      req.Reward,
		DueDate:     req.DueDate,
		Status:      models.EduTaskOpen,
	}
	if err := h.DB.WithContext(c.UserContext()).Create(&task).Error; err != nil {
		return fail500(c, "failed to save task", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "edu_tasks", realtime.ChangeInsert, task.ID.String(), task)
	return created(c, "Task created", task)
}

func (h *EduTaskHandler) loadOwned(c *fiber.Ctx) (*models.EduTask, error) {
	userID, err := getAuth(c)
	if err != nil {
		return nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return nil, err
	}

	var task models.EduTask
	if err := h.DB.WithContext(c.UserContext()).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Task not found")
		}
		return nil, err
	}
	if task.UserID != userID && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return &task, nil
}

func (h *EduTaskHandler) UpdateStatus(c *fiber.Ctx) error {
	task, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var req EduTaskStatusReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	status := models.EduTaskStatus(req.Status)
	if task.Status == status {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": task, "changed": false})
	}
	if err := h.DB.WithContext(c.UserContext()).Model(task).Update("status", status).Error; err != nil {
		return fail500(c, "failed to update status", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "edu_tasks", realtime.ChangeUpdate, task.ID.String(), task)
	return c.JSON(fiber.Map{"success": true, "message": "Status updated", "data": task, "changed": true})
}

func (h *EduTaskHandler) Delete(c *fiber.Ctx) error {
	task, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	if err := h.DB.WithContext(c.UserContext()).Delete(task).Error; err != nil {
		return fail500(c, "failed to delete task", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "edu_tasks", realtime.ChangeDelete, task.ID.String(), task)
	return c.JSON(fiber.Map{"success": true, "message": "Task deleted"})
}
