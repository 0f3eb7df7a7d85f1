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
	"github.com/finitixhub/finitix_be/internal/services/storage"
	"github.com/finitixhub/finitix_be/internal/utils"
)

type GigHandler struct {
	DB     *gorm.DB
	Bucket storage.Bucket
	Feed   realtime.Publisher
	IDKey  string
}

func NewGigHandler(db *gorm.DB, bucket storage.Bucket, feed realtime.Publisher, idKey string) *GigHandler {
	return &GigHandler{DB: db, Bucket: bucket, Feed: feed, IDKey: idKey}
}

// ==== REQUEST / RESPONSE ====

type GigReq struct {
	Title        string   `json:"title" validate:"required,min=3,max=160"`
	Description  string   `json:"description" validate:"max=10000"`
	Category     string   `json:"category" validate:"required,max=60"`
	Price        int64    `json:"price" validate:"required,gt=0"`
	DeliveryDays int      `json:"delivery_days" validate:"required,gte=1,lte=365"`
	Tags         []string `json:"tags" validate:"max=20"`
	CoverURL     string   `json:"cover_url" validate:"omitempty,max=2048"`
	Status       string   `json:"status" validate:"omitempty,oneof=active paused"`
}

func (r GigReq) apply(g *models.Gig) {
	g.Title = strings.TrimSpace(r.Title)
	g.Description = strings.TrimSpace(r.Description)
	g.Category = strings.TrimSpace(r.Category)
	g.Price = r.Price
	g.DeliveryDays = r.DeliveryDays
	g.Tags = trimList(r.Tags)
	g.CoverURL = strings.TrimSpace(r.CoverURL)
	if r.Status != "" {
		g.Status = models.GigStatus(r.Status)
	}
}

// GigResponse exposes the gig with its opaque id.
type GigResponse struct {
	ID           string    `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Price        int64     `json:"price"`
	DeliveryDays int       `json:"delivery_days"`
	Tags         []string  `json:"tags"`
	CoverURL     string    `json:"cover_url"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (h *GigHandler) toResponse(g *models.Gig) (GigResponse, error) {
	enc, err := utils.EncryptID(g.ID, h.IDKey)
	if err != nil {
		return GigResponse{}, err
	}
	tags := []string(g.Tags)
	if tags == nil {
		tags = []string{}
	}
	return GigResponse{
		ID:           enc,
		UserID:       g.UserID,
		Title:        g.Title,
		Description:  g.Description,
		Category:     g.Category,
		Price:        g.Price,
		DeliveryDays: g.DeliveryDays,
		Tags:         tags,
		CoverURL:     g.CoverURL,
		Status:       string(g.Status),
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}, nil
}

func (h *GigHandler) emit(c *fiber.Ctx, typ realtime.ChangeType, g *models.Gig) {
	resp, err := h.toResponse(g)
	if err != nil {
		return
	}
	realtime.Emit(c.UserContext(), h.Feed, "gigs", typ, resp.ID, resp)
}

func (h *GigHandler) decodeID(c *fiber.Ctx) (uint, error) {
	id, err := utils.DecryptID(c.Params("id"), h.IDKey)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid gig id")
	}
	return id, nil
}

// ==== HANDLER ====

// List is the public gig board (bubble-gigs) with seller details.
func (h *GigHandler) List(c *fiber.Ctx) error {
	type Result struct {
		ID           uint
		Title        string
		Category     string
		Price        int64
		DeliveryDays int
		CoverURL     string
		UserID       uuid.UUID
		Username     string
		FullName     string
		AvatarURL    string
		Sold         int64
	}

	qSearch := strings.TrimSpace(c.Query("q"))
	category := strings.TrimSpace(c.Query("category"))
	minPrice := c.QueryInt("min", 0)
	maxPrice := c.QueryInt("max", 0)

	filters := func(db *gorm.DB) *gorm.DB {
		db = db.Where("gigs.status = ?", models.GigActive)
		if qSearch != "" {
			like := likePattern(qSearch)
			db = db.Where("LOWER(gigs.title) LIKE ? OR LOWER(CAST(gigs.tags AS TEXT)) LIKE ?", like, like)
		}
		if category != "" {
			db = db.Where("gigs.category = ?", category)
		}
		if minPrice > 0 {
			db = db.Where("gigs.price >= ?", minPrice)
		}
		if maxPrice > 0 {
			db = db.Where("gigs.price <= ?", maxPrice)
		}
		return db
	}

	gdb := h.DB.WithContext(c.UserContext())
	p := pagination(c)

	var total int64
	if err := filters(gdb.Table("gigs")).Count(&total).Error; err != nil {
		return fail500(c, "failed to count gigs", err)
	}

	q := filters(gdb.Table("gigs").
		Select(`
			gigs.id,
			gigs.title,
			gigs.category,
			gigs.price,
			gigs.delivery_days,
			gigs.cover_url,
			gigs.user_id,
			COALESCE(pr.username, '') AS username,
			COALESCE(pr.full_name, '') AS full_name,
			COALESCE(pr.avatar_url, '') AS avatar_url,
			(SELECT COUNT(*) FROM gig_bookings gb WHERE gb.gig_id = gigs.id AND gb.status = 'completed') AS sold
		`).
		Joins("LEFT JOIN profiles pr ON pr.user_id = gigs.user_id"))

	switch c.Query("sort") {
	case "price_low":
		q = q.Order("gigs.price ASC")
	case "price_high":
		q = q.Order("gigs.price DESC")
	default:
		q = q.Order("gigs.created_at DESC")
	}

	var rows []Result
	if err := q.Limit(p.Limit).Offset(p.Offset).Scan(&rows).Error; err != nil {
		return fail500(c, "failed to load gigs", err)
	}

	out := make([]fiber.Map, 0, len(rows))
	for _, r := range rows {
		encID, err := utils.EncryptID(r.ID, h.IDKey)
		if err != nil {
			return fail500(c, "failed to encode gig id", err)
		}

		name := r.FullName
		if name == "" {
			name = r.Username
		}

		out = append(out, fiber.Map{
			"id":            encID,
			"title":         r.Title,
			"category":      r.Category,
			"price":         r.Price,
			"delivery_days": r.DeliveryDays,
			"cover_url":     r.CoverURL,
			"sold":          r.Sold,
			"seller": fiber.Map{
				"user_id":    r.UserID,
				"username":   r.Username,
				"name":       name,
				"avatar_url": r.AvatarURL,
			},
		})
	}

	return okPage(c, out, p, total)
}

func (h *GigHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var gigs []models.Gig
	if err := h.DB.WithContext(c.UserContext()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&gigs).Error; err != nil {
		return fail500(c, "failed to load gigs", err)
	}

	out := make([]GigResponse, 0, len(gigs))
	for i := range gigs {
		resp, err := h.toResponse(&gigs[i])
		if err != nil {
			return fail500(c, "failed to encode gig id", err)
		}
		out = append(out, resp)
	}
	return ok(c, "", out)
}

func (h *GigHandler) Get(c *fiber.Ctx) error {
	id, err := h.decodeID(c)
	if err != nil {
		return err
	}

	gdb := h.DB.WithContext(c.UserContext())

	var gig models.Gig
	if err := gdb.First(&gig, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "Gig not found")
		}
		return fail500(c, "failed to load gig", err)
	}

	var seller models.Profile
	_ = gdb.Where("user_id = ?", gig.UserID).First(&seller).Error

	resp, err := h.toResponse(&gig)
	if err != nil {
		return fail500(c, "failed to encode gig id", err)
	}

	return ok(c, "", fiber.Map{
		"gig": resp,
		"seller": fiber.Map{
			"user_id":    gig.UserID,
			"username":   seller.Username,
			"full_name":  seller.FullName,
			"avatar_url": seller.AvatarURL,
			"headline":   seller.Headline,
		},
	})
}

func (h *GigHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req GigReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	gig := models.Gig{UserID: userID, Status: models.GigActive}
	req.apply(&gig)

	if err := h.DB.WithContext(c.UserContext()).Create(&gig).Error; err != nil {
		return fail500(c, "failed to save gig", err)
	}

	resp, err := h.toResponse(&gig)
	if err != nil {
		return fail500(c, "failed to encode gig id", err)
	}
	realtime.Emit(c.UserContext(), h.Feed, "gigs", realtime.ChangeInsert, resp.ID, resp)
	return created(c, "Gig created", resp)
}

func (h *GigHandler) loadOwned(c *fiber.Ctx) (*models.Gig, error) {
	userID, err := getAuth(c)
	if err != nil {
		return nil, err
	}
	id, err := h.decodeID(c)
	if err != nil {
		return nil, err
	}

	var gig models.Gig
	if err := h.DB.WithContext(c.UserContext()).First(&gig, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Gig not found")
		}
		return nil, err
	}
	if gig.UserID != userID && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return &gig, nil
}

func (h *GigHandler) Update(c *fiber.Ctx) error {
	gig, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var req GigReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}
	req.apply(gig)

	if err := h.DB.WithContext(c.UserContext()).Save(gig).Error; err != nil {
		return fail500(c, "failed to update gig", err)
	}

	h.emit(c, realtime.ChangeUpdate, gig)
	resp, _ := h.toResponse(gig)
	return ok(c, "Gig updated", resp)
}

// Delete removes the gig and its bookings.
func (h *GigHandler) Delete(c *fiber.Ctx) error {
	gig, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gig_id = ?", gig.ID).Delete(&models.GigBooking{}).Error; err != nil {
			return err
		}
		return tx.Delete(gig).Error
	})
	if err != nil {
		return fail500(c, "failed to delete gig", err)
	}

	h.emit(c, realtime.ChangeDelete, gig)
	return c.JSON(fiber.Map{"success": true, "message": "Gig deleted"})
}

func (h *GigHandler) UploadCover(c *fiber.Ctx) error {
	if _, err := getAuth(c); err != nil {
		return err
	}

	file, err := c.FormFile("cover")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "cover is required (multipart field: cover)")
	}
	if !isImage(file.Filename) {
		return fail(c, fiber.StatusBadRequest, "cover must be jpg/jpeg/png/webp/gif")
	}

	url, err := storeFile(c.UserContext(), h.Bucket, "gigs/covers", file)
	if err != nil {
		return uploadFail(c, h.Bucket, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"url":     url,
	})
}
