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

type ProfileHandler struct {
	DB     *gorm.DB
	Bucket storage.Bucket
	Feed   realtime.Publisher
}

func NewProfileHandler(db *gorm.DB, bucket storage.Bucket, feed realtime.Publisher) *ProfileHandler {
	return &ProfileHandler{DB: db, Bucket: bucket, Feed: feed}
}

// findOrCreateProfile returns the user's profile, creating an empty one on first use.
func (h *ProfileHandler) findOrCreateProfile(tx *gorm.DB, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := tx.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var u models.User
	if err := tx.Select("id", "email").First(&u, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	p = models.Profile{
		UserID:   userID,
		Username: "user-" + strings.ReplaceAll(userID.String(), "-", "")[:12],
	}
	if err := tx.Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	p, err := h.findOrCreateProfile(h.DB.WithContext(c.UserContext()), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusUnauthorized, "User not found")
		}
		return fail500(c, "failed to load profile", err)
	}
	return ok(c, "", p)
}

type UpdateProfileReq struct {
	Username *string  `json:"username" validate:"omitempty,min=3,max=40"`
	FullName *string  `json:"full_name" validate:"omitempty,max=120"`
	Headline *string  `json:"headline" validate:"omitempty,max=160"`
	Bio      *string  `json:"bio" validate:"omitempty,max=2000"`
	Location *string  `json:"location" validate:"omitempty,max=120"`
	Website  *string  `json:"website" validate:"omitempty,url"`
	Skills   []string `json:"skills" validate:"omitempty,max=30"`
}

func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req UpdateProfileReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if errs == nil {
		errs = FieldErrors{}
	}
	if req.Username != nil {
		u := strings.ToLower(strings.TrimSpace(*req.Username))
		req.Username = &u
		if !validUsername(u) {
			errs.Add("username", "may contain only lowercase letters, digits, dot, dash and underscore")
		}
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gdb := h.DB.WithContext(c.UserContext())
	p, err := h.findOrCreateProfile(gdb, userID)
	if err != nil {
		return fail500(c, "failed to load profile", err)
	}

	if req.Username != nil && *req.Username != p.Username {
		var n int64
		if err := gdb.Model(&models.Profile{}).Where("username = ? AND user_id <> ?", *req.Username, userID).Count(&n).Error; err != nil {
			return fail500(c, "failed to check username", err)
		}
		if n > 0 {
			return validationFail(c, FieldErrors{"username": {"is already taken"}})
		}
		p.Username = *req.Username
	}
	if req.FullName != nil {
		p.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Headline != nil {
		p.Headline = strings.TrimSpace(*req.Headline)
	}
	if req.Bio != nil {
		p.Bio = strings.TrimSpace(*req.Bio)
	}
	if req.Location != nil {
		p.Location = strings.TrimSpace(*req.Location)
	}
	if req.Website != nil {
		p.Website = strings.TrimSpace(*req.Website)
	}
	if req.Skills != nil {
		p.Skills = trimList(req.Skills)
	}

	if err := gdb.Save(p).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return validationFail(c, FieldErrors{"username": {"is already taken"}})
		}
		return fail500(c, "failed to update profile", err)
	}

	realtime.Emit(c.UserContext(), h.Feed, "profiles", realtime.ChangeUpdate, p.ID.String(), p)
	return ok(c, "Profile updated", p)
}

func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "avatar is required (multipart field: avatar)")
	}
	if !isImage(file.Filename) {
		return fail(c, fiber.StatusBadRequest, "avatar must be jpg/jpeg/png/webp/gif")
	}

	url, err := storeFile(c.UserContext(), h.Bucket, "avatars", file)
	if err != nil {
		return uploadFail(c, h.Bucket, err)
	}

	gdb := h.DB.WithContext(c.UserContext())
	p, err := h.findOrCreateProfile(gdb, userID)
	if err != nil {
		return fail500(c, "failed to load profile", err)
	}

	old := p.AvatarURL
	p.AvatarURL = url
	if err := gdb.Save(p).Error; err != nil {
		_ = h.Bucket.Remove(c.UserContext(), url)
		return fail500(c, "failed to update profile", err)
	}
	if old != "" {
		_ = h.Bucket.Remove(c.UserContext(), old)
	}

	realtime.Emit(c.UserContext(), h.Feed, "profiles", realtime.ChangeUpdate, p.ID.String(), p)
	return ok(c, "Avatar uploaded", p)
}

// GetPublic shows a profile by username with counts of its public work.
func (h *ProfileHandler) GetPublic(c *fiber.Ctx) error {
	username := strings.ToLower(strings.TrimSpace(c.Params("username")))
	gdb := h.DB.WithContext(c.UserContext())

	var p models.Profile
	if err := gdb.Where("username = ?", username).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Profile not found")
		}
		return fail500(c, "failed to load profile", err)
	}

	var projects, gigs int64
	if err := gdb.Model(&models.Project{}).Where("user_id = ? AND status = ?", p.UserID, models.ProjectPublished).Count(&projects).Error; err != nil {
		return fail500(c, "failed to load profile", err)
	}
	if err := gdb.Model(&models.Gig{}).Where("user_id = ? AND status = ?", p.UserID, models.GigActive).Count(&gigs).Error; err != nil {
		return fail500(c, "failed to load profile", err)
	}

	var mentor models.MentorProfile
	isMentor := gdb.Where("user_id = ?", p.UserID).First(&mentor).Error == nil

	return ok(c, "", fiber.Map{
		"profile": fiber.Map{
			"user_id":    p.UserID,
			"username":   p.Username,
			"full_name":  p.FullName,
			"headline":   p.Headline,
			"bio":        p.Bio,
			"avatar_url": p.AvatarURL,
			"location":   p.Location,
			"website":    p.Website,
			"skills":     p.Skills,
			"created_at": p.CreatedAt,
		},
		"counts": fiber.Map{
			"projects": projects,
			"gigs":     gigs,
		},
		"is_mentor": isMentor,
	})
}
