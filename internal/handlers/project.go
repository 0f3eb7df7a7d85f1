package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
	"github.com/finitixhub/finitix_be/internal/services/storage"
)

type ProjectHandler struct {
	DB     *gorm.DB
	Bucket storage.Bucket
	Feed   realtime.Publisher
}

func NewProjectHandler(db *gorm.DB, bucket storage.Bucket, feed realtime.Publisher) *ProjectHandler {
	return &ProjectHandler{DB: db, Bucket: bucket, Feed: feed}
}

type ProjectReq struct {
	Title       string   `json:"title" form:"title" validate:"required,min=3,max=160"`
	Description string   `json:"description" form:"description" validate:"max=10000"`
	Category    string   `json:"category" form:"category" validate:"required,max=60"`
	TechStack   []string `json:"tech_stack" form:"tech_stack" validate:"max=30"`
	RepoURL     string   `json:"repo_url" form:"repo_url" validate:"omitempty,url"`
	DemoURL     string   `json:"demo_url" form:"demo_url" validate:"omitempty,url"`
	Status      string   `json:"status" form:"status" validate:"omitempty,oneof=draft published archived"`
}

func (r ProjectReq) apply(p *models.Project) {
	p.Title = strings.TrimSpace(r.Title)
	p.Description = strings.TrimSpace(r.Description)
	p.Category = strings.TrimSpace(r.Category)
	p.TechStack = trimList(r.TechStack)
	p.RepoURL = strings.TrimSpace(r.RepoURL)
	p.DemoURL = strings.TrimSpace(r.DemoURL)
	if r.Status != "" {
		p.Status = models.ProjectStatus(r.Status)
	}
}

// emit publishes a project change. Unpublished projects are only sent to
// their owner, like Get only shows them to the owner.
func (h *ProjectHandler) emit(c *fiber.Ctx, typ realtime.ChangeType, p *models.Project) {
	if p.Status == models.ProjectPublished {
		realtime.Emit(c.UserContext(), h.Feed, "projects", typ, p.ID.String(), p)
		return
	}
	realtime.Emit(c.UserContext(), h.Feed, "projects", typ, p.ID.String(), p, p.UserID)
}

// List shows published projects (the project hub).
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.Project{}).Where("status = ?", models.ProjectPublished)
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("category = ?", cat)
	}
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := likePattern(s)
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if tech := strings.TrimSpace(c.Query("tech")); tech != "" {
		q = q.Where("LOWER(CAST(tech_stack AS TEXT)) LIKE ?", likePattern(tech))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load projects", err)
	}

	var projects []models.Project
	if err := q.Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&projects).Error; err != nil {
		return fail500(c, "failed to load projects", err)
	}
	return okPage(c, projects, p, total)
}

func (h *ProjectHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var projects []models.Project
	if err := h.DB.WithContext(c.UserContext()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return fail500(c, "failed to load projects", err)
	}
	return ok(c, "", projects)
}

// Get returns a published project, or any project to its owner.
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var p models.Project
	if err := h.DB.WithContext(c.UserContext()).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Project not found")
		}
		return fail500(c, "failed to load project", err)
	}

	if p.Status != models.ProjectPublished {
		userID, _ := getAuth(c)
		if userID != p.UserID {
			return fail(c, fiber.StatusNotFound, "Project not found")
		}
	}
	return ok(c, "", p)
}

// Create stores the project with its uploaded files. Files over the size
// limit are skipped and listed under "rejected".
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req ProjectReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	project := models.Project{UserID: userID, Status: models.ProjectPublished}
	req.apply(&project)

	if covers := formFiles(c, "cover"); len(covers) > 0 {
		if !isImage(covers[0].Filename) {
			return fail(c, fiber.StatusBadRequest, "cover must be an image")
		}
		url, err := storeFile(c.UserContext(), h.Bucket, "projects/covers", covers[0])
		if err != nil {
			return uploadFail(c, h.Bucket, err)
		}
		project.CoverURL = url
	}

	files, rejected := storeFiles(c.UserContext(), h.Bucket, "projects", formFiles(c, "files"))
	project.Files = files

	if err := h.DB.WithContext(c.UserContext()).Create(&project).Error; err != nil {
		return fail500(c, "failed to save project", err)
	}

	h.emit(c, realtime.ChangeInsert, &project)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  "Project uploaded",
		"data":     project,
		"rejected": rejected,
	})
}

func (h *ProjectHandler) loadOwned(c *fiber.Ctx) (*models.Project, error) {
	userID, err := getAuth(c)
	if err != nil {
		return nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return nil, err
	}

	var p models.Project
	if err := h.DB.WithContext(c.UserContext()).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Project not found")
		}
		return nil, err
	}
	if p.UserID != userID && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return &p, nil
}

func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	project, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var req ProjectReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}
	wasPublished := project.Status == models.ProjectPublished
	req.apply(project)

	files, rejected := storeFiles(c.UserContext(), h.Bucket, "projects", formFiles(c, "files"))
	project.Files = append(project.Files, files...)

	if err := h.DB.WithContext(c.UserContext()).Save(project).Error; err != nil {
		return fail500(c, "failed to update project", err)
	}

	if wasPublished && project.Status != models.ProjectPublished {
		// public subscribers only learn that the project left the hub
		realtime.Emit(c.UserContext(), h.Feed, "projects", realtime.ChangeUpdate, project.ID.String(),
			fiber.Map{"id": project.ID, "status": project.Status})
	}
	h.emit(c, realtime.ChangeUpdate, project)
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "Project updated",
		"data":     project,
		"rejected": rejected,
	})
}

func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	project, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	if err := h.DB.WithContext(c.UserContext()).Delete(project).Error; err != nil {
		return fail500(c, "failed to delete project", err)
	}

	for _, u := range append([]string{project.CoverURL}, project.Files...) {
		if u != "" {
			_ = h.Bucket.Remove(c.UserContext(), u)
		}
	}

	h.emit(c, realtime.ChangeDelete, project)
	return c.JSON(fiber.Map{"success": true, "message": "Project deleted"})
}
