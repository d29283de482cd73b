package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"voxareflect/internal/audio"
	"voxareflect/internal/models"
	"voxareflect/internal/services"
)

// maxUploadSize is Whisper's file size limit.
const maxUploadSize = 25 * 1024 * 1024

// VoiceHandler accepts recorded audio and reports async voice job status
type VoiceHandler struct {
	pool        *services.VoiceWorkerPool
	jobs        *services.VoiceJobStore
	transcriber services.Transcriber
	uploadDir   string
}

// NewVoiceHandler creates a new voice handler. Uploads are saved to uploadDir until
// their job ends.
func NewVoiceHandler(pool *services.VoiceWorkerPool, jobs *services.VoiceJobStore, transcriber services.Transcriber, uploadDir string) *VoiceHandler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &VoiceHandler{pool: pool, jobs: jobs, transcriber: transcriber, uploadDir: uploadDir}
}

// UploadAudio transcribes an upload directly when no metadata is sent. With
// metadata it queues a voice turn and returns the job id.
func (h *VoiceHandler) UploadAudio(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		log.Printf("❌ [VOICE] No file uploaded: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"result":  "",
			"error":   "Missing audio file",
		})
	}
	if file.Size > maxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"result":  "",
			"error":   "Audio file too large. Maximum size is 25MB",
		})
	}

	metadataRaw := strings.TrimSpace(c.FormValue("metadata"))
	language := strings.TrimSpace(c.FormValue("language"))

	// Metadata is validated before anything touches the disk.
	var req models.TurnRequest
	if metadataRaw != "" {
		if err := json.Unmarshal([]byte(metadataRaw), &req); err != nil {
			log.Printf("⚠️  [VOICE] Invalid metadata: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"result":  "",
				"error":   "Invalid metadata",
			})
		}
		if req.Language == "" {
			req.Language = language
		}
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".webm"
	}
	tempFile := filepath.Join(h.uploadDir, fmt.Sprintf("%s%s%s", audio.UploadFilePrefix, uuid.New().String(), ext))
	if err := c.SaveFile(file, tempFile); err != nil {
		log.Printf("❌ [VOICE] Failed to save temp file: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"result":  "",
			"error":   "Failed to save audio",
		})
	}

	if metadataRaw == "" {
		return h.transcribeDirect(c, tempFile, language)
	}

	jobID, err := h.pool.Submit(c.UserContext(), tempFile, req)
	if err != nil {
		log.Printf("❌ [VOICE] Failed to queue voice job: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"result":  "",
			"error":   "Voice processing is unavailable",
		})
	}
	log.Printf("🎵 [VOICE] Queued job %s for %s (%d bytes)", jobID, req.Username, file.Size)
	return c.JSON(fiber.Map{"success": true, "jobId": jobID})
}

func (h *VoiceHandler) transcribeDirect(c *fiber.Ctx, path, language string) error {
	defer os.Remove(path)

	transcription, err := h.transcriber.Transcribe(c.UserContext(), audio.TranscribeRequest{
		AudioPath: path,
		Language:  language,
	})
	if err != nil {
		log.Printf("❌ [VOICE] Transcription failed: %v", err)
		return c.JSON(fiber.Map{"success": false, "result": ""})
	}
	log.Printf("✅ [VOICE] Transcription complete via %s: %d chars", transcription.Provider, len(transcription.Text))
	return c.JSON(fiber.Map{"success": true, "result": transcription.Text})
}

type jobStatusRequest struct {
	JobID      string `json:"jobId"`
	JobIDSnake string `json:"job_id"`
}

// JobStatus reports the state of a voice job. The id comes from the query string
// (jobId or job_id) or from a JSON body.
func (h *VoiceHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Query("jobId")
	if jobID == "" {
		jobID = c.Query("job_id")
	}
	if jobID == "" && len(c.Body()) > 0 {
		var body jobStatusRequest
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			jobID = body.JobID
			if jobID == "" {
				jobID = body.JobIDSnake
			}
		}
	}
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing jobId",
		})
	}

	job, err := h.jobs.Get(jobID)
	if errors.Is(err, services.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Job not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"status":  job.Status,
		"result":  job.Result,
		"error":   job.Error,
	})
}
