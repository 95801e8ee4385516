package handler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/voiceflow/api/internal/capture"
	"github.com/voiceflow/api/internal/middleware"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/service"
	"github.com/voiceflow/api/internal/session"
	"github.com/voiceflow/api/pkg/response"
)

// CaptureHandler drives the server-side microphone. One recording at a
// time; the finished artifact is submitted as a voice note for the user
// who started it.
type CaptureHandler struct {
	service  *service.NoteService
	sessions *session.Manager
	device   capture.Device

	mu         sync.Mutex
	controller *capture.Controller
}

func NewCaptureHandler(svc *service.NoteService, sessions *session.Manager, device capture.Device) *CaptureHandler {
	return &CaptureHandler{
		service:  svc,
		sessions: sessions,
		device:   device,
	}
}

// Start handles POST /api/capture/start
func (h *CaptureHandler) Start(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	timezone := c.Query("timezone")

	providerToken := c.Get("X-Provider-Token")
	if providerToken == "" && h.sessions != nil {
		providerToken = h.sessions.ProviderToken(userID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.controller != nil && h.controller.State() == capture.StateRecording {
		return response.Error(c, fiber.StatusConflict, response.CodeValidationError, "Recording already in progress", nil)
	}

	owner := userID
	token := providerToken
	tz := timezone
	controller := capture.NewController(h.device, func(artifact capture.Artifact) {
		recordedAt := artifact.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now()
		}
		_, err := h.service.Create(context.Background(), &model.NoteJobPayload{
			Owner:         owner,
			Audio:         artifact.Data,
			ContentType:   artifact.MimeType,
			Timezone:      tz,
			ReferenceDate: recordedAt,
			ProviderToken: token,
		})
		if err != nil {
			log.Printf("Failed to submit captured note for user %s: %v", owner, err)
		}
	})

	// The recording outlives this request; it must not die with the
	// request context.
	if err := controller.Start(context.Background()); err != nil {
		return response.ServiceError(c, "Failed to start recording: "+err.Error())
	}

	h.controller = controller
	return response.Accepted(c, fiber.Map{"state": capture.StateRecording})
}

// Stop handles POST /api/capture/stop. Stopping while idle is a no-op.
func (h *CaptureHandler) Stop(c *fiber.Ctx) error {
	h.mu.Lock()
	controller := h.controller
	h.controller = nil
	h.mu.Unlock()

	if controller == nil {
		return response.OK(c, fiber.Map{"state": capture.StateIdle})
	}

	if err := controller.Stop(); err != nil {
		return response.ServiceError(c, "Failed to stop recording: "+err.Error())
	}

	return response.OK(c, fiber.Map{"state": capture.StateIdle})
}

// Status handles GET /api/capture
func (h *CaptureHandler) Status(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := capture.StateIdle
	if h.controller != nil {
		state = h.controller.State()
	}
	return response.OK(c, fiber.Map{"state": state})
}
