package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"voxareflect/internal/models"
	"voxareflect/internal/services"
)

// ChatHandler serves typed chat turns
type ChatHandler struct {
	turns *services.TurnService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(turns *services.TurnService) *ChatHandler {
	return &ChatHandler{turns: turns}
}

// NewChat runs one chat turn. A body that is not valid JSON is treated as empty;
// the envelope always carries every field.
func (h *ChatHandler) NewChat(c *fiber.Ctx) error {
	var req models.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("⚠️  [CHAT] Ignoring unreadable request body: %v", err)
		req = models.TurnRequest{}
	}
	return c.JSON(h.turns.ProcessTurn(c.UserContext(), &req))
}
