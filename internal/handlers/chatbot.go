package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Replier produces the canned chatbot answer for a message.
type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

type ChatbotHandler struct {
	Bot Replier
}

func NewChatbotHandler(bot Replier) *ChatbotHandler {
	return &ChatbotHandler{Bot: bot}
}

type ChatbotReq struct {
	Message string `json:"message" validate:"required,max=1000"`
}

func (h *ChatbotHandler) Ask(c *fiber.Ctx) error {
	var req ChatbotReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	reply, err := h.Bot.Reply(c.UserContext(), strings.TrimSpace(req.Message))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fail(c, fiber.StatusRequestTimeout, "request cancelled")
		}
		return fail500(c, "chatbot unavailable", err)
	}

	return ok(c, "", fiber.Map{
		"reply": reply,
	})
}
