package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/services"
)

type ConfirmationHandler struct {
	notifier services.Notifier
	logger   *logrus.Logger
}

func NewConfirmationHandler(notifier services.Notifier, logger *logrus.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// SendConfirmation handles POST /send-confirmation
func (h *ConfirmationHandler) SendConfirmation(c *gin.Context) {
	var req models.ConfirmationRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, models.NewMissingTemplateFieldError(nil))
		return
	}

	if err := h.notifier.Send(c.Request.Context(), req.Email, req.Fields()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ConfirmationResponse{
		Success: true,
		Message: "Confirmation email sent successfully",
	})
}
