package handler

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/voiceflow/api/internal/model"
	"github.com/voiceflow/api/internal/service"
)

type InterpretHandler struct {
	service   *service.InterpretService
	validator *validator.Validate
}

func NewInterpretHandler(svc *service.InterpretService, v *validator.Validate) *InterpretHandler {
	return &InterpretHandler{
		service:   svc,
		validator: v,
	}
}

// Interpret handles POST /functions/interpret
// @Summary      Interpret a voice note
// @Description  Transcribe the audio behind a signed URL and extract the event title and date
// @Tags         Interpret
// @Accept       json
// @Produce      json
// @Param        request body model.InterpretRequest true "Audio URL with timezone and reference date context"
// @Success      200 {object} model.InterpretResponse
// @Failure      400 {object} model.InterpretErrorResponse
// @Failure      500 {object} model.InterpretErrorResponse
// @Router       /functions/interpret [post]
func (h *InterpretHandler) Interpret(c *fiber.Ctx) error {
	var req model.InterpretRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.InterpretErrorResponse{
			Error: "Invalid request body",
		})
	}

	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.InterpretErrorResponse{
			Error: "Missing audioUrl",
		})
	}

	result, err := h.service.Interpret(c.Context(), &req)
	if err != nil {
		log.Printf("Error processing audio: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(model.InterpretErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(result)
}
