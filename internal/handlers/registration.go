package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
)

const (
	// multipartOverhead covers the non-file form fields and part headers
	multipartOverhead = 1 << 20
	maxJSONBodyBytes  = 64 << 10
)

// Registrar runs a submission through the intake pipeline
type Registrar interface {
	Submit(ctx context.Context, sub *models.Submission) (*models.Registration, error)
}

type RegistrationHandler struct {
	registrar          Registrar
	maxScreenshotBytes int64
	logger             *logrus.Logger
}

func NewRegistrationHandler(registrar Registrar, maxScreenshotBytes int64, logger *logrus.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		registrar:          registrar,
		maxScreenshotBytes: maxScreenshotBytes,
		logger:             logger,
	}
}

// Register handles POST /register. JSON bodies carry a pre-uploaded
// screenshot reference; multipart bodies carry the screenshot file itself.
func (h *RegistrationHandler) Register(c *gin.Context) {
	var (
		sub *models.Submission
		err error
	)

	switch c.ContentType() {
	case binding.MIMEMultipartPOSTForm:
		var file multipart.File
		sub, file, err = h.bindForm(c)
		if file != nil {
			defer func() { _ = file.Close() }()
		}
	case binding.MIMEJSON, "":
		sub, err = h.bindJSON(c)
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":   "Unsupported Media Type",
			"message": "Send application/json or multipart/form-data",
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	registration, err := h.registrar.Submit(c.Request.Context(), sub)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.RegisterResponse{
		Success: true,
		Data:    registration,
	})
}

func (h *RegistrationHandler) bindJSON(c *gin.Context) (*models.Submission, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)

	var req models.RegisterRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, models.NewValidationError("Invalid request body",
				fmt.Sprintf("Request body must be smaller than %dKB", maxJSONBodyBytes>>10))
		}
		return nil, models.NewValidationError("Invalid request body", "Request body must be valid JSON")
	}
	return req.ToSubmission(models.PathAPI), nil
}

func (h *RegistrationHandler) bindForm(c *gin.Context) (*models.Submission, multipart.File, error) {
	limit := h.maxScreenshotBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		return nil, nil, h.formError(&http.MaxBytesError{Limit: limit})
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var req models.RegisterRequest
	if err := c.ShouldBindWith(&req, binding.FormMultipart); err != nil {
		return nil, nil, h.formError(err)
	}
	sub := req.ToSubmission(models.PathForm)

	header, err := c.FormFile("screenshot")
	if errors.Is(err, http.ErrMissingFile) {
		return sub, nil, nil
	}
	if err != nil {
		return nil, nil, h.formError(err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, models.NewInternalError("Failed to read screenshot", err)
	}

	sub.Screenshot = &models.ProofFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}
	return sub, file, nil
}

func (h *RegistrationHandler) formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return models.NewValidationError("Invalid screenshot",
			fmt.Sprintf("File size must be less than %dMB.", h.maxScreenshotBytes>>20))
	}
	return models.NewValidationError("Invalid request body", "Request body must be valid multipart/form-data")
}
