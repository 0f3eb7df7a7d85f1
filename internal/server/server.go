package server

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/config"
	"github.com/finitixhub/finitix_be/internal/handlers"
	"github.com/finitixhub/finitix_be/internal/middleware"
	"github.com/finitixhub/finitix_be/internal/realtime"
	"github.com/finitixhub/finitix_be/internal/services/session"
	"github.com/finitixhub/finitix_be/internal/services/storage"
	"github.com/finitixhub/finitix_be/internal/web"
)

// Deps are the long-lived services the HTTP layer is built from.
type Deps struct {
	Config   config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Hub      *realtime.Hub
	Feed     realtime.Publisher
	Sessions *session.Store
	Bucket   storage.Bucket
	Bot      handlers.Replier

	// AccessLog toggles the fiber request logger.
	AccessLog bool
}

// New builds the fiber app with every API, websocket and page route.
func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		AppName:      "finitix-api",
		ErrorHandler: errorHandler,
		BodyLimit:    8 * 1024 * 1024,
	})

	app.Use(recover.New())
	if d.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	// preflight always answered
	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Static("/uploads", cfg.UploadDir)

	authH := &handlers.AuthHandler{
		DB:              d.DB,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		Sessions:        d.Sessions,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              d.DB,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	profileH := handlers.NewProfileHandler(d.DB, d.Bucket, d.Feed)
	jobH := handlers.NewJobHandler(d.DB, d.Feed)
	categoryH := handlers.NewCategoryHandler(d.DB)
	applicationH := handlers.NewApplicationHandler(d.DB, d.Bucket, d.Feed)
	projectH := handlers.NewProjectHandler(d.DB, d.Bucket, d.Feed)
	gigH := handlers.NewGigHandler(d.DB, d.Bucket, d.Feed, cfg.IDEncryptKey)
	bookingH := handlers.NewBookingHandler(d.DB, d.Feed, cfg.IDEncryptKey)
	exchangeH := handlers.NewSkillExchangeHandler(d.DB, d.Feed)
	qaH := handlers.NewQAHandler(d.DB, d.Feed)
	eduH := handlers.NewEduTaskHandler(d.DB, d.Feed)
	dashboardH := handlers.NewDashboardHandler(d.DB)
	chatbotH := handlers.NewChatbotHandler(d.Bot)
	storageH := handlers.NewStorageHandler(d.Bucket)
	adminH := handlers.NewAdminHandler(d.DB, d.Sessions, time.Duration(cfg.JWTExpiresMin)*time.Minute)

	var revoked middleware.RevocationChecker
	if d.Sessions != nil {
		revoked = d.Sessions
	}
	realtimeH := handlers.NewRealtimeHandler(d.Hub, cfg.JWTSecret, revoked)
	authLimit := middleware.NewRateLimiter(d.Redis, "auth", cfg.AuthRateLimit, cfg.AuthRateWindow).Handler()
	optional := middleware.OptionalJWT(cfg.JWTSecret, revoked)
	requireAuth := middleware.JWTFromCookie(cfg.JWTSecret, revoked)
	attachLocals := middleware.AttachJWTLocals()

	api := app.Group("/api")

	// public
	api.Post("/auth/signup", authLimit, authH.SignUp)
	api.Post("/auth/signin", authLimit, authH.SignIn)
	api.Post("/auth/signout", authH.SignOut)
	api.Post("/auth/password/forgot", authLimit, authH.ForgotPassword)
	api.Post("/auth/password/reset", authH.ResetPassword)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)

	api.Get("/profiles/:username", profileH.GetPublic)

	api.Get("/jobs", jobH.List)
	api.Get("/jobs/categories", categoryH.Distinct("job_postings", "open"))
	api.Get("/projects", projectH.List)
	api.Get("/projects/categories", categoryH.Distinct("projects", "published"))
	api.Get("/gigs", gigH.List)
	api.Get("/gigs/categories", categoryH.Distinct("gigs", "active"))
	api.Get("/skill-exchanges", exchangeH.List)
	api.Get("/questions", qaH.ListQuestions)
	api.Get("/mentors", qaH.ListMentors)
	api.Get("/edutasks", optional, eduH.List)
	api.Post("/chatbot", chatbotH.Ask)

	// protected (JWT); attached per route so unknown /api paths still 404
	protected := authed{r: api, mw: []fiber.Handler{requireAuth, attachLocals}}

	// "mine" listings must win over the public :id routes below
	protected.Get("/jobs/mine", jobH.ListMine)
	protected.Get("/projects/mine", projectH.ListMine)
	protected.Get("/gigs/mine", gigH.ListMine)

	api.Get("/jobs/:id", jobH.Get)
	api.Get("/projects/:id", optional, projectH.Get)
	api.Get("/gigs/:id", gigH.Get)
	api.Get("/skill-exchanges/:id", exchangeH.Get)
	api.Get("/questions/:id", qaH.GetQuestion)

	// websocket (auth via cookie, bearer or token query)
	app.Get("/ws/changes", realtimeH.Upgrade, realtimeH.Changes())

	protected.Get("/me", authH.Me)

	protected.Get("/profile", profileH.Get)
	protected.Put("/profile", profileH.Update)
	protected.Post("/profile/avatar", profileH.UploadAvatar)

	protected.Post("/jobs", jobH.Create)
	protected.Put("/jobs/:id", jobH.Update)
	protected.Patch("/jobs/:id/status", jobH.UpdateStatus)
	protected.Delete("/jobs/:id", jobH.Delete)
	protected.Post("/jobs/:id/applications", applicationH.Apply)
	protected.Get("/jobs/:id/applications", applicationH.ListForJob)

	protected.Get("/applications/mine", applicationH.ListMine)
	protected.Patch("/applications/:id/status", applicationH.UpdateStatus)
	protected.Post("/applications/:id/withdraw", applicationH.Withdraw)

	protected.Post("/projects", projectH.Create)
	protected.Put("/projects/:id", projectH.Update)
	protected.Delete("/projects/:id", projectH.Delete)

	protected.Post("/gigs/cover", gigH.UploadCover)
	protected.Post("/gigs", gigH.Create)
	protected.Put("/gigs/:id", gigH.Update)
	protected.Delete("/gigs/:id", gigH.Delete)
	protected.Post("/gigs/:id/bookings", bookingH.Book)

	protected.Get("/bookings", bookingH.List)
	protected.Patch("/bookings/:id/status", bookingH.UpdateStatus)

	protected.Post("/skill-exchanges", exchangeH.Create)
	protected.Put("/skill-exchanges/:id", exchangeH.Update)
	protected.Delete("/skill-exchanges/:id", exchangeH.Delete)
	protected.Post("/skill-exchanges/:id/proposals", exchangeH.Propose)
	protected.Get("/skill-exchanges/:id/proposals", exchangeH.ListProposals)
	protected.Patch("/exchange-proposals/:id/status", exchangeH.UpdateProposalStatus)

	protected.Post("/questions", qaH.CreateQuestion)
	protected.Patch("/questions/:id/status", qaH.UpdateQuestionStatus)
	protected.Delete("/questions/:id", qaH.DeleteQuestion)
	protected.Post("/questions/:id/answers", qaH.CreateAnswer)
	protected.Post("/answers/:id/accept", qaH.AcceptAnswer)
	protected.Delete("/answers/:id", qaH.DeleteAnswer)
	protected.Put("/mentors/me", qaH.UpsertMentor)

	protected.Post("/edutasks", eduH.Create)
	protected.Patch("/edutasks/:id/status", eduH.UpdateStatus)
	protected.Delete("/edutasks/:id", eduH.Delete)

	protected.Get("/dashboard/stats", dashboardH.Stats)
	protected.Get("/dashboard/activity", dashboardH.Activity)

	protected.Post("/storage/upload", storageH.Upload)

	// admin only
	protected.Get("/admin/users", middleware.RequireRoles("admin"), adminH.ListUsers)
	protected.Patch("/admin/users/:id/active", middleware.RequireRoles("admin"), adminH.SetActive)

	web.NewHandler(cfg.WebDir, cfg.JWTSecret, revoked).Register(app)

	return app
}

// authed registers routes behind a fixed middleware chain without adding a
// group-wide middleware to the router.
type authed struct {
	r  fiber.Router
	mw []fiber.Handler
}

func (a authed) with(h []fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(a.mw)+len(h))
	out = append(out, a.mw...)
	return append(out, h...)
}

func (a authed) Get(path string, h ...fiber.Handler)    { a.r.Get(path, a.with(h)...) }
func (a authed) Post(path string, h ...fiber.Handler)   { a.r.Post(path, a.with(h)...) }
func (a authed) Put(path string, h ...fiber.Handler)    { a.r.Put(path, a.with(h)...) }
func (a authed) Patch(path string, h ...fiber.Handler)  { a.r.Patch(path, a.with(h)...) }
func (a authed) Delete(path string, h ...fiber.Handler) { a.r.Delete(path, a.with(h)...) }

// errorHandler renders every returned error in the API envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
