package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"voxareflect/internal/services"
)

// TTSHandler serves synthesised reply audio and the client voice settings
type TTSHandler struct {
	speech *services.SpeechService
}

// NewTTSHandler creates a new TTS handler
func NewTTSHandler(speech *services.SpeechService) *TTSHandler {
	return &TTSHandler{speech: speech}
}

// Audio returns cached audio by id. Entries expire; clients must not cache them.
func (h *TTSHandler) Audio(c *fiber.Ctx) error {
	entry, err := h.speech.Audio(c.Params("id"))
	if errors.Is(err, services.ErrAudioNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"result":  "",
			"error":   "Audio not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"result":  "",
			"error":   err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, entry.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(entry.Audio)
}

// Config returns the voices clients may choose from
func (h *TTSHandler) Config(c *fiber.Ctx) error {
	return c.JSON(h.speech.ClientConfig())
}
