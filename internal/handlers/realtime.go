package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/finitixhub/finitix_be/internal/middleware"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

// FeedTables are the tables a browser may subscribe to.
var FeedTables = map[string]bool{
	"profiles":           true,
	"job_postings":       true,
	"job_applications":   true,
	"projects":           true,
	"gigs":               true,
	"gig_bookings":       true,
	"skill_exchanges":    true,
	"exchange_proposals": true,
	"questions":          true,
	"answers":            true,
	"mentor_profiles":    true,
	"edu_tasks":          true,
}

type RealtimeHandler struct {
	Hub       *realtime.Hub
	JWTSecret string
	Revoked   middleware.RevocationChecker
}

func NewRealtimeHandler(hub *realtime.Hub, jwtSecret string, revoked middleware.RevocationChecker) *RealtimeHandler {
	return &RealtimeHandler{Hub: hub, JWTSecret: jwtSecret, Revoked: revoked}
}

// Upgrade authenticates the request (cookie, bearer or ?token=) before the
// websocket handshake so rejected clients get a normal HTTP error.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claims, err := middleware.SessionFromRequest(c, h.JWTSecret, h.Revoked)
	if err != nil {
		return err
	}
	c.Locals("userId", claims.UserID)
	return c.Next()
}

// Changes serves one change-feed socket.
func (h *RealtimeHandler) Changes() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		rawID, _ := conn.Locals("userId").(string)
		userID, err := uuid.Parse(rawID)
		if err != nil {
			log.Printf("[WS] rejecting socket with bad user id %q", rawID)
			_ = conn.Close()
			return
		}

		log.Printf("[WS] user %s connected", userID)
		client := realtime.NewClient(userID, realtime.NewWebSocketConn(conn))
		realtime.Serve(h.Hub, client, FeedTables)
		log.Printf("[WS] user %s disconnected", userID)
	})
}
