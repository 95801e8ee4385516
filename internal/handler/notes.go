package handler

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/voiceflow/api/internal/middleware"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/service"
	"github.com/voiceflow/api/internal/session"
	"github.com/voiceflow/api/pkg/response"
)

const maxNoteSize = 25 * 1024 * 1024 // 25MB

type NotesHandler struct {
	service  *service.NoteService
	sessions *session.Manager
}

func NewNotesHandler(svc *service.NoteService, sessions *session.Manager) *NotesHandler {
	return &NotesHandler{
		service:  svc,
		sessions: sessions,
	}
}

// Create handles POST /api/notes
// @Summary      Submit a voice note
// @Description  Upload a recorded voice note and start the processing pipeline
// @Tags         Notes
// @Accept       multipart/form-data
// @Produce      json
// @Param        file     formData file   true  "Audio recording (WebM/Opus; max 25MB)"
// @Param        timezone formData string false "IANA timezone of the speaker"
// @Success      202 {object} model.CreateNoteResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/notes [post]
func (h *NotesHandler) Create(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxNoteSize {
		return response.ValidationError(c, "File size exceeds 25MB limit", map[string]interface{}{
			"maxSize":  maxNoteSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"audio/webm": true,
		"audio/ogg":  true,
		"audio/mp4":  true,
		"audio/mpeg": true,
		"audio/wav":  true,
	}
	if contentType != "" && !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: WebM, OGG, MP4, MP3, WAV", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}
	if len(audio) == 0 {
		return response.ValidationError(c, "File is empty", nil)
	}

	// A delegated calendar token can ride along on the request; otherwise
	// the one captured at sign-in is used. Without either, calendar sync
	// is skipped and the note is still processed.
	providerToken := c.Get("X-Provider-Token")
	if providerToken == "" && h.sessions != nil {
		providerToken = h.sessions.ProviderToken(userID)
	}

	task, err := h.service.Create(c.Context(), &model.NoteJobPayload{
		Owner:         userID,
		Audio:         audio,
		ContentType:   contentType,
		Timezone:      c.FormValue("timezone"),
		ReferenceDate: time.Now(),
		ProviderToken: providerToken,
	})
	if err != nil {
		return response.ServiceError(c, "Failed to start note processing")
	}

	return response.Accepted(c, model.CreateNoteResponse{Task: *task})
}

// List handles GET /api/notes
// @Summary      List voice notes
// @Description  Return the caller's tasks, newest first, including in-flight ones
// @Tags         Notes
// @Produce      json
// @Success      200 {object} model.ListNotesResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/notes [get]
func (h *NotesHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	tasks, err := h.service.List(c.Context(), userID)
	if err != nil {
		return response.ServiceError(c, "Failed to list notes")
	}

	return response.OK(c, model.ListNotesResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}
