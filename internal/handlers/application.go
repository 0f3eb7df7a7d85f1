package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/db"
	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
	"github.com/finitixhub/finitix_be/internal/services/storage"
)

const applicationsTable = "job_applications"

type ApplicationHandler struct {
	DB     *gorm.DB
	Bucket storage.Bucket
	Feed   realtime.Publisher
}

func NewApplicationHandler(db *gorm.DB, bucket storage.Bucket, feed realtime.Publisher) *ApplicationHandler {
	return &ApplicationHandler{DB: db, Bucket: bucket, Feed: feed}
}

type ApplyReq struct {
	CoverLetter  string `json:"cover_letter" form:"cover_letter" validate:"required,min=10,max=5000"`
	ProposedRate int64  `json:"proposed_rate" form:"proposed_rate" validate:"gte=0"`
	ResumeURL    string `json:"resume_url" form:"resume_url" validate:"omitempty,url"`
}

type ApplicationStatusReq struct {
	Status string `json:"status" validate:"required,oneof=pending accepted rejected"`
}

// emit sends an application change to the applicant and the job owner only.
func (h *ApplicationHandler) emit(c *fiber.Ctx, typ realtime.ChangeType, app *models.JobApplication, ownerID uuid.UUID) {
	realtime.Emit(c.UserContext(), h.Feed, applicationsTable, typ, app.ID.String(), app, app.UserID, ownerID)
}

// Apply submits an application for a job. Attachments over the size limit
// are skipped and reported under "rejected".
func (h *ApplicationHandler) Apply(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	jobID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req ApplyReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var job models.JobPosting
	if err := gdb.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Job not found")
		}
		return fail500(c, "failed to load job", err)
	}
	if job.UserID == userID {
		return fail(c, fiber.StatusBadRequest, "You cannot apply to your own job")
	}
	if job.Status != models.JobStatusOpen {
		return fail(c, fiber.StatusBadRequest, "This job is no longer accepting applications")
	}

	var n int64
	if err := gdb.Model(&models.JobApplication{}).Where("job_id = ? AND user_id = ?", jobID, userID).Count(&n).Error; err != nil {
		return fail500(c, "failed to check application", err)
	}
	if n > 0 {
		return fail(c, fiber.StatusConflict, "You have already applied to this job")
	}

	resumeURL := strings.TrimSpace(req.ResumeURL)
	if files := formFiles(c, "resume"); len(files) > 0 {
		url, err := storeFile(c.UserContext(), h.Bucket, "resumes", files[0])
		if err != nil {
			return uploadFail(c, h.Bucket, err)
		}
		resumeURL = url
	}
	attachments, rejected := storeFiles(c.UserContext(), h.Bucket, "applications", formFiles(c, "attachments"))

	app := models.JobApplication{
		JobID:        jobID,
		UserID:       userID,
		CoverLetter:  strings.TrimSpace(req.CoverLetter),
		ProposedRate: req.ProposedRate,
		ResumeURL:    resumeURL,
		Attachments:  attachments,
		Status:       models.ApplicationPending,
	}
	if err := gdb.Create(&app).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return fail(c, fiber.StatusConflict, "You have already applied to this job")
		}
		return fail500(c, "failed to submit application", err)
	}

	h.emit(c, realtime.ChangeInsert, &app, job.UserID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  "Application submitted",
		"data":     app,
		"rejected": rejected,
	})
}

// ListForJob returns every application of a job to its owner.
func (h *ApplicationHandler) ListForJob(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	jobID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	gdb := h.DB.WithContext(c.UserContext())

	var job models.JobPosting
	if err := gdb.Select("id", "user_id").First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Job not found")
		}
		return fail500(c, "failed to load job", err)
	}
	if job.UserID != userID && !isAdmin(c) {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}

	q := gdb.Preload("Applicant").Preload("Applicant.Profile").Where("job_id = ?", jobID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var apps []models.JobApplication
	if err := q.Order("created_at DESC").Find(&apps).Error; err != nil {
		return fail500(c, "failed to load applications", err)
	}
	return ok(c, "", apps)
}

func (h *ApplicationHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	p := pagination(c)

	q := h.DB.WithContext(c.UserContext()).Model(&models.JobApplication{}).Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fail500(c, "failed to load applications", err)
	}

	var apps []models.JobApplication
	if err := q.Preload("Job").Order("created_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&apps).Error; err != nil {
		return fail500(c, "failed to load applications", err)
	}
	return okPage(c, apps, p, total)
}

// UpdateStatus lets the job owner accept, reject or reset an application.
// Setting the status it already has leaves the row untouched.
func (h *ApplicationHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	appID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req ApplicationStatusReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())

	var app models.JobApplication
	if err := gdb.Preload("Job").First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Application not found")
		}
		return fail500(c, "failed to load application", err)
	}
	if app.Job == nil || app.Job.UserID != userID {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}
	if app.Status == models.ApplicationWithdrawn {
		return fail(c, fiber.StatusBadRequest, "Application was withdrawn")
	}

	status := models.ApplicationStatus(req.Status)
	if app.Status == status {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": app, "changed": false})
	}

	// conditional update keeps concurrent identical requests from double-firing
	res := gdb.Model(&models.JobApplication{}).
		Where("id = ? AND status <> ?", app.ID, status).
		Update("status", status)
	if res.Error != nil {
		return fail500(c, "failed to update status", res.Error)
	}
	app.Status = status
	if res.RowsAffected == 0 {
		return c.JSON(fiber.Map{"success": true, "message": "Status unchanged", "data": app, "changed": false})
	}

	h.emit(c, realtime.ChangeUpdate, &app, app.Job.UserID)
	return c.JSON(fiber.Map{"success": true, "message": "Status updated", "data": app, "changed": true})
}

// Withdraw lets the applicant pull back a pending application.
func (h *ApplicationHandler) Withdraw(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	appID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	gdb := h.DB.WithContext(c.UserContext())

	var app models.JobApplication
	if err := gdb.Preload("Job").First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Application not found")
		}
		return fail500(c, "failed to load application", err)
	}
	if app.UserID != userID {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}
	if app.Status == models.ApplicationWithdrawn {
		return c.JSON(fiber.Map{"success": true, "message": "Already withdrawn", "data": app, "changed": false})
	}
	if app.Status != models.ApplicationPending {
		return fail(c, fiber.StatusBadRequest, "Only pending applications can be withdrawn")
	}

	if err := gdb.Model(&app).Update("status", models.ApplicationWithdrawn).Error; err != nil {
		return fail500(c, "failed to withdraw application", err)
	}

	var ownerID uuid.UUID
	if app.Job != nil {
		ownerID = app.Job.UserID
	}
	h.emit(c, realtime.ChangeUpdate, &app, ownerID)
	return c.JSON(fiber.Map{"success": true, "message": "Application withdrawn", "data": app, "changed": true})
}
