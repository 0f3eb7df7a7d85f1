package web

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/finitixhub/finitix_be/internal/middleware"
)

// Page is one browser route of the single page app.
type Page struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

var Pages = []Page{
	{Path: "/", Name: "home"},
	{Path: "/jobs", Name: "jobs"},
	{Path: "/post-job", Name: "post-job", Protected: true},
	{Path: "/apply-job/:id", Name: "apply-job", Protected: true},
	{Path: "/profile", Name: "profile", Protected: true},
	{Path: "/dashboard", Name: "dashboard", Protected: true},
	{Path: "/dashboard/jobs", Name: "dashboard-jobs", Protected: true},
	{Path: "/dashboard/applications", Name: "dashboard-applications", Protected: true},
	{Path: "/dashboard/gigs", Name: "dashboard-gigs", Protected: true},
	{Path: "/dashboard/bookings", Name: "dashboard-bookings", Protected: true},
	{Path: "/dashboard/settings", Name: "dashboard-settings", Protected: true},
	{Path: "/upload-project", Name: "upload-project", Protected: true},
	{Path: "/edutask", Name: "edutask"},
	{Path: "/projecthub", Name: "projecthub"},
	{Path: "/bubble-gigs", Name: "bubble-gigs"},
	{Path: "/create-gig", Name: "create-gig", Protected: true},
	{Path: "/skill-exchange", Name: "skill-exchange"},
	{Path: "/ask-teach", Name: "ask-teach"},
	{Path: "/signin", Name: "signin"},
	{Path: "/signup", Name: "signup"},
	{Path: "/forgot-password", Name: "forgot-password"},
	{Path: "/reset-password", Name: "reset-password"},
	{Path: "/u/:username", Name: "public-profile"},
}

type Handler struct {
	Dir       string
	JWTSecret string
	Revoked   middleware.RevocationChecker
}

func NewHandler(dir, jwtSecret string, revoked middleware.RevocationChecker) *Handler {
	return &Handler{Dir: dir, JWTSecret: jwtSecret, Revoked: revoked}
}

// Register mounts every page plus the catch-all 404. Call it after the API
// routes so it never shadows them.
func (h *Handler) Register(app fiber.Router) {
	for _, p := range Pages {
		app.Get(p.Path, h.page(p))
	}
	app.Use(h.notFound)
}

func (h *Handler) page(p Page) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p.Protected {
			if _, err := middleware.SessionFromRequest(c, h.JWTSecret, h.Revoked); err != nil {
				return c.Redirect(SigninURL(c.OriginalURL()), fiber.StatusFound)
			}
		}
		return h.render(c, fiber.StatusOK, p, c.AllParams())
	}
}

func (h *Handler) notFound(c *fiber.Ctx) error {
	if isAPI(c.Path()) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	}
	return h.render(c, fiber.StatusNotFound, Page{Path: c.Path(), Name: "not-found"}, nil)
}

// render serves the built app shell when it exists so client-side routing
// can take over, and a small page descriptor otherwise.
func (h *Handler) render(c *fiber.Ctx, status int, p Page, params map[string]string) error {
	if index := h.indexFile(); index != "" {
		c.Status(status)
		return c.SendFile(index)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": status < fiber.StatusBadRequest,
		"data": fiber.Map{
			"page":      p.Name,
			"path":      c.Path(),
			"protected": p.Protected,
			"params":    params,
		},
	})
}

func (h *Handler) indexFile() string {
	if h.Dir == "" {
		return ""
	}
	index := filepath.Join(h.Dir, "index.html")
	if st, err := os.Stat(index); err != nil || st.IsDir() {
		return ""
	}
	return index
}

func SigninURL(next string) string {
	return "/signin?next=" + url.QueryEscape(next)
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/ws/")
}
