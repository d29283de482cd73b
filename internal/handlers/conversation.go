package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"voxareflect/internal/models"
	"voxareflect/internal/phases"
	"voxareflect/internal/services"
)

// ConversationHandler serves conversation listing and housekeeping endpoints
type ConversationHandler struct {
	turns *services.TurnService
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(turns *services.TurnService) *ConversationHandler {
	return &ConversationHandler{turns: turns}
}

type conversationRequest struct {
	Username         string      `json:"username"`
	ConversationID   json.Number `json:"conversationID"`
	NewMessageUser   string      `json:"newMessageUser"`
	NewMessageSystem string      `json:"newMessageSystem"`
	Buttons          []string    `json:"buttons"`
	TurnPreset       string      `json:"turnPreset"`
	Text             string      `json:"text"`
	Language         string      `json:"language"`
	CurrentStage     string      `json:"currentStage"`
}

func (r *conversationRequest) id() int {
	turn := models.TurnRequest{ConversationID: r.ConversationID}
	return turn.ConversationIDOrNew()
}

// List returns every conversation of a user
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "result": []any{}})
	}

	views, err := h.turns.ListConversations(c.UserContext(), req.Username)
	if err != nil {
		log.Printf("❌ [CONVERSATION] Failed to list conversations for %s: %v", req.Username, err)
		return c.JSON(fiber.Map{"success": false, "result": []any{}})
	}
	return c.JSON(fiber.Map{"success": true, "result": views})
}

// AddChat appends a canned user/system exchange, used by the client's button flows
func (h *ConversationHandler) AddChat(c *fiber.Ctx) error {
	now := models.UnixSeconds(time.Now())
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(addChatFailure(now, models.NewConversationID))
	}
	id := req.id()
	buttons := req.Buttons
	if buttons == nil {
		buttons = []string{}
	}

	conv, err := h.turns.AppendExchange(c.UserContext(), req.Username, id, req.NewMessageUser, req.NewMessageSystem, buttons)
	if err != nil {
		log.Printf("❌ [CONVERSATION] Failed to add chat to conversation %d: %v", id, err)
		return c.JSON(addChatFailure(now, id))
	}

	view := conv.View()
	return c.JSON(fiber.Map{
		"success":    true,
		"result":     req.NewMessageSystem,
		"buttons":    buttons,
		"video":      "",
		"time":       now,
		"title":      view.Title,
		"text":       view.Text,
		"stage":      view.Stage,
		"id":         view.ID,
		"turnPreset": view.TurnPreset,
		"phase":      view.Phase,
	})
}

func addChatFailure(now float64, id int) fiber.Map {
	return fiber.Map{
		"success": false,
		"result":  "",
		"buttons": []string{},
		"video":   "",
		"time":    now,
		"title":   "",
		"text":    "",
		"stage":   "",
		"id":      id,
	}
}

// UpdateTurnPreset stores a conversation's turn preset
func (h *ConversationHandler) UpdateTurnPreset(c *fiber.Ctx) error {
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "turnPreset": phases.DefaultPreset})
	}

	preset, err := h.turns.UpdateTurnPreset(c.UserContext(), req.Username, req.id(), req.TurnPreset)
	if err != nil {
		log.Printf("⚠️  [CONVERSATION] Failed to update turn preset: %v", err)
		return c.JSON(fiber.Map{"success": false, "turnPreset": preset})
	}
	return c.JSON(fiber.Map{"success": true, "turnPreset": preset})
}

// CreateTitle generates and stores a title for the reflective text
func (h *ConversationHandler) CreateTitle(c *fiber.Ctx) error {
	failure := fiber.Map{"success": false, "result": "", "buttons": []string{}, "new_title": ""}
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(failure)
	}

	title, err := h.turns.CreateTitle(c.UserContext(), req.Username, req.id(), req.Text, req.Language)
	if err != nil {
		log.Printf("❌ [CONVERSATION] Failed to create title: %v", err)
		return c.JSON(failure)
	}
	return c.JSON(fiber.Map{"success": true, "result": title, "buttons": []string{}, "new_title": title})
}

// DetermineFeedback checks which Gibbs stages the text covers and returns feedback
func (h *ConversationHandler) DetermineFeedback(c *fiber.Ctx) error {
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "result": "", "new_stage": ""})
	}

	feedback, err := h.turns.DetermineFeedback(c.UserContext(), req.Text, req.Language, req.CurrentStage)
	if err != nil {
		log.Printf("❌ [CONVERSATION] Failed to determine feedback: %v", err)
		return c.JSON(fiber.Map{"success": false, "result": "", "new_stage": req.CurrentStage})
	}
	return c.JSON(fiber.Map{"success": true, "result": feedback.Text, "new_stage": feedback.NewStage})
}
