package handlers

import "github.com/gofiber/fiber/v2"

// Handlers groups every HTTP handler of the server
type Handlers struct {
	Chat         *ChatHandler
	Voice        *VoiceHandler
	TTS          *TTSHandler
	Conversation *ConversationHandler
	Health       *HealthHandler
}

// RegisterRoutes mounts the API. uploadLimiter guards /uploadAudio and may be nil.
func RegisterRoutes(app *fiber.App, h Handlers, uploadLimiter fiber.Handler) {
	app.Get("/health", h.Health.Handle)

	app.Post("/newChat", h.Chat.NewChat)

	if uploadLimiter != nil {
		app.Post("/uploadAudio", uploadLimiter, h.Voice.UploadAudio)
	} else {
		app.Post("/uploadAudio", h.Voice.UploadAudio)
	}
	app.Get("/voiceJobStatus", h.Voice.JobStatus)

	app.Get("/tts/audio/:id", h.TTS.Audio)
	app.Get("/tts/config", h.TTS.Config)

	app.Post("/getConversations", h.Conversation.List)
	app.Post("/addChatToConversation", h.Conversation.AddChat)
	app.Post("/updateTurnPreset", h.Conversation.UpdateTurnPreset)
	app.Post("/createNewTitle", h.Conversation.CreateTitle)
	app.Post("/determineFeedbackAndTitle", h.Conversation.DetermineFeedback)
}
