package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-intake/internal/api/dto"
	"github.com/spec-kit/ticket-intake/internal/service"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util"
)

// ChatHandler serves the end-user intake conversation.
type ChatHandler struct {
	conversations *service.ConversationService
}

// NewChatHandler constructs handler.
func NewChatHandler(conversations *service.ConversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

// Post POST /api/chat.
func (h *ChatHandler) Post(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	reply, err := h.conversations.HandleUserMessage(c.UserContext(), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(dto.ChatResponse{Reply: reply})
}
