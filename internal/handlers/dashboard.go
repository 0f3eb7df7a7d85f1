package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
)

type DashboardHandler struct {
	DB *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{DB: db}
}

// DashboardStats is the merged workspace counters object.
type DashboardStats struct {
	JobsPosted           int64 `json:"jobs_posted"`
	JobsOpen             int64 `json:"jobs_open"`
	ApplicationsReceived int64 `json:"applications_received"`
	ApplicationsPending  int64 `json:"applications_pending"`
	ApplicationsSent     int64 `json:"applications_sent"`
	Projects             int64 `json:"projects"`
	Gigs                 int64 `json:"gigs"`
	BookingsAsSeller     int64 `json:"bookings_as_seller"`
	BookingsAsBuyer      int64 `json:"bookings_as_buyer"`
	Exchanges            int64 `json:"exchanges"`
	Questions            int64 `json:"questions"`
	Answers              int64 `json:"answers"`
	EduTasks             int64 `json:"edu_tasks"`
}

type countQuery struct {
	name  string
	dst   *int64
	build func(db *gorm.DB) *gorm.DB
}

func (h *DashboardHandler) statQueries(userID uuid.UUID, s *DashboardStats) []countQuery {
	receivedApps := func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.JobApplication{}).
			Joins("JOIN job_postings ON job_postings.id = job_applications.job_id").
			Where("job_postings.user_id = ?", userID)
	}

	return []countQuery{
		{"jobs_posted", &s.JobsPosted, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.JobPosting{}).Where("user_id = ?", userID)
		}},
		{"jobs_open", &s.JobsOpen, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.JobPosting{}).Where("user_id = ? AND status = ?", userID, models.JobStatusOpen)
		}},
		{"applications_received", &s.ApplicationsReceived, receivedApps},
		{"applications_pending", &s.ApplicationsPending, func(db *gorm.DB) *gorm.DB {
			return receivedApps(db).Where("job_applications.status = ?", models.ApplicationPending)
		}},
		{"applications_sent", &s.ApplicationsSent, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.JobApplication{}).Where("user_id = ?", userID)
		}},
		{"projects", &s.Projects, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Project{}).Where("user_id = ?", userID)
		}},
		{"gigs", &s.Gigs, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Gig{}).Where("user_id = ?", userID)
		}},
		{"bookings_as_seller", &s.BookingsAsSeller, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.GigBooking{}).Where("seller_id = ?", userID)
		}},
		{"bookings_as_buyer", &s.BookingsAsBuyer, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.GigBooking{}).Where("buyer_id = ?", userID)
		}},
		{"exchanges", &s.Exchanges, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.SkillExchange{}).Where("user_id = ?", userID)
		}},
		{"questions", &s.Questions, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Question{}).Where("user_id = ?", userID)
		}},
		{"answers", &s.Answers, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Answer{}).Where("user_id = ?", userID)
		}},
		{"edu_tasks", &s.EduTasks, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.EduTask{}).Where("user_id = ?", userID)
		}},
	}
}

// Stats runs every counter as its own query in parallel and merges the results.
// Any failing query fails the whole request.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	stats, err := h.collectStats(c.UserContext(), userID)
	if err != nil {
		return fail500(c, "failed to load dashboard", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

func (h *DashboardHandler) collectStats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	var stats DashboardStats
	g, gctx := errgroup.WithContext(ctx)

	for _, q := range h.statQueries(userID, &stats) {
		q := q
		g.Go(func() error {
			// each goroutine owns its destination field
			if err := q.build(h.DB.WithContext(gctx)).Count(q.dst).Error; err != nil {
				log.Printf("[DashboardStats] %s for user %s: %v", q.name, userID, err)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Activity lists the latest applications received and bookings for the user.
func (h *DashboardHandler) Activity(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var (
		apps     []models.JobApplication
		bookings []models.GigBooking
	)

	g, gctx := errgroup.WithContext(c.UserContext())
	g.Go(func() error {
		return h.DB.WithContext(gctx).
			Preload("Job").Preload("Applicant").Preload("Applicant.Profile").
			Joins("JOIN job_postings ON job_postings.id = job_applications.job_id").
			Where("job_postings.user_id = ?", userID).
			Order("job_applications.created_at DESC").
			Limit(limit).
			Find(&apps).Error
	})
	g.Go(func() error {
		return h.DB.WithContext(gctx).
			Preload("Gig").
			Where("seller_id = ? OR buyer_id = ?", userID, userID).
			Order("created_at DESC").
			Limit(limit).
			Find(&bookings).Error
	})
	if err := g.Wait(); err != nil {
		return fail500(c, "failed to load activity", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"applications": apps,
			"bookings":     bookings,
		},
	})
}
