package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/middleware"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
)

// respondError writes err as {"error": ..., "message": ...}. Errors that are
// not an AppError are logged and collapsed into a generic 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	appErr, ok := models.AsAppError(err)
	if !ok {
		logger.WithError(err).WithField("request_id", middleware.GetRequestID(c)).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	body := gin.H{"error": appErr.Message}
	if appErr.Details != "" {
		body["message"] = appErr.Details
	}
	c.JSON(appErr.StatusCode, body)
}

// MethodNotAllowed answers any non-POST request to a POST-only route
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"error":   "Method Not Allowed",
		"message": "Only POST requests are allowed",
	})
}

// Preflight answers OPTIONS with an empty 200; CORS headers are already set
func Preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}
