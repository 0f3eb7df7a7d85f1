package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

type JobHandler struct {
	DB   *gorm.DB
	Feed realtime.Publisher
}

func NewJobHandler(db *gorm.DB, feed realtime.Publisher) *JobHandler {
	return &JobHandler{DB: db, Feed: feed}
}

// ==== REQUEST STRUCTS ====

type JobReq struct {
	Title       string     `json:"title" validate:"required,min=3,max=160"`
	Company     string     `json:"company" validate:"max=120"`
	Description string     `json:"description" validate:"required"`
	Category    string     `json:"category" validate:"required,max=60"`
	JobType     string     `json:"job_type" validate:"required,oneof=full_time part_time contract freelance internship"`
	Location    string     `json:"location" validate:"max=120"`
	Remote      bool       `json:"remote"`
	BudgetMin   int64      `json:"budget_min" validate:"gte=0"`
	BudgetMax   int64      `json:"budget_max" validate:"gte=0,gtefield=BudgetMin"`
	Skills      []string   `json:"skills" validate:"max=30"`
	Deadline    *time.Time `json:"deadline"`
}

type JobStatusReq struct {
	Status string `json:"status" validate:"required,oneof=open closed filled"`
}

func (r JobReq) apply(j *models.JobPosting) {
	j.Title = strings.TrimSpace(r.Title)
	j.Company = strings.TrimSpace(r.Company)
	j.Description = strings.TrimSpace(r.Description)
	j.Category = strings.TrimSpace(r.Category)
	j.JobType = models.JobType(r.JobType)
	j.Location = strings.TrimSpace(r.Location)
	j.Remote = r.Remote
	j.BudgetMin = r.BudgetMin
	j.BudgetMax = r.BudgetMax
	j.Skills = trimList(r.Skills)
	j.Deadline = r.Deadline
}

// ==== HANDLER ====

// List is the public job board. Category matches exactly; q matches title or company.
func (h *JobHandler) List(c *fiber.Ctx) error {
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.JobPosting{})

	status := strings.TrimSpace(c.Query("status", string(models.JobStatusOpen)))
	if status != "all" {
		q = q.Where("status = ?", status)
	}
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("category = ?", cat)
	}
	if jt := strings.TrimSpace(c.Query("job_type")); jt != "" {
		q = q.Where("job_type = ?", jt)
	}
	if remote := c.Query("remote"); remote != "" {
		q = q.Where("remote = ?", remote == "true" || remote == "1")
	}
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := likePattern(s)
		q = q.Where("LOWER(title) LIKE ? OR LOWER(company) LIKE ?", like, like)
	}
	if skill := strings.TrimSpace(c.Query("skill")); skill != "" {
		q = q.Where("LOWER(CAST(skills AS TEXT)) LIKE ?", likePattern(skill))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load jobs", err)
	}

	var jobs []models.JobPosting
	if err := q.Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&jobs).Error; err != nil {
		return fail500(c, "failed to load jobs", err)
	}

	return okPage(c, jobs, p, total)
}

func (h *JobHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var jobs []models.JobPosting
	if err := h.DB.WithContext(c.UserContext()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return fail500(c, "failed to load jobs", err)
	}

	// applicant counts in one grouped query
	type countRow struct {
		JobID uuid.UUID
		Total int64
	}
	var rows []countRow
	if len(jobs) > 0 {
		ids := make([]uuid.UUID, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		if err := h.DB.WithContext(c.UserContext()).
			Model(&models.JobApplication{}).
			Select("job_id, COUNT(*) AS total").
			Where("job_id IN ?", ids).
			Group("job_id").
			Scan(&rows).Error; err != nil {
			return fail500(c, "failed to load jobs", err)
		}
	}
	counts := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		counts[r.JobID] = r.Total
	}

	data := make([]fiber.Map, 0, len(jobs))
	for _, j := range jobs {
		data = append(data, fiber.Map{
			"job":          j,
			"applications": counts[j.ID],
		})
	}
	return ok(c, "", data)
}

func (h *JobHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var job models.JobPosting
	if err := h.DB.WithContext(c.UserContext()).
		Preload("Owner").Preload("Owner.Profile").
		First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Job not found")
		}
		return fail500(c, "failed to load job", err)
	}

	return ok(c, "", JobDetail{JobPosting: job, Owner: publicUser(job.Owner)})
}

func (h *JobHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req JobReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if errs == nil {
		errs = FieldErrors{}
	}
	if req.Deadline != nil && req.Deadline.Before(time.Now()) {
		errs.Add("deadline", "must be in the future")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	job := models.JobPosting{UserID: userID, Status: models.JobStatusOpen}
	req.apply(&job)

	if err := h.DB.WithContext(c.UserContext()).Create(&job).Error; err != nil {
		return fail500(c, "failed to save job", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "job_postings", realtime.ChangeInsert, job.ID.String(), job)
	return created(c, "Job posted", job)
}

// loadOwned fetches a job and checks the caller may change it.
func (h *JobHandler) loadOwned(c *fiber.Ctx) (*models.JobPosting, error) {
	userID, err := getAuth(c)
	if err != nil {
		return nil, err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return nil, err
	}

	var job models.JobPosting
	if err := h.DB.WithContext(c.UserContext()).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Job not found")
		}
		return nil, err
	}
	if job.UserID != userID && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return &job, nil
}

func (h *JobHandler) Update(c *fiber.Ctx) error {
	job, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var req JobReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	req.apply(job)
	if err := h.DB.WithContext(c.UserContext()).Save(job).Error; err != nil {
		return fail500(c, "failed to update job", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "job_postings", realtime.ChangeUpdate, job.ID.String(), job)
	return ok(c, "Job updated", job)
}

func (h *JobHandler) UpdateStatus(c *fiber.Ctx) error {
	job, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var req JobStatusReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	status := models.JobStatus(req.Status)
	if job.Status == status {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": job, "changed": false})
	}

	job.Status = status
	if err := h.DB.WithContext(c.UserContext()).Model(job).Update("status", status).Error; err != nil {
		return fail500(c, "failed to update status", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "job_postings", realtime.ChangeUpdate, job.ID.String(), job)
	return c.JSON(fiber.Map{"success": true, "message": "Status updated", "data": job, "changed": true})
}

// Delete removes the job together with its applications.
func (h *JobHandler) Delete(c *fiber.Ctx) error {
	job, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", job.ID).Delete(&models.JobApplication{}).Error; err != nil {
			return err
		}
		return tx.Delete(job).Error
	})
	if err != nil {
		return fail500(c, "failed to delete job", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "job_postings", realtime.ChangeDelete, job.ID.String(), job)
	return c.JSON(fiber.Map{"success": true, "message": "Job deleted"})
}
