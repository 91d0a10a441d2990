package services

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/repositories"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/storage"
	apperrors "github.com/rscoe-coding-club/codigo-registration-backend/pkg/errors"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

// Submission outcomes, used as metric labels
const (
	OutcomeValidationError   = "validation_error"
	OutcomeRateLimited       = "rate_limited"
	OutcomeRateLimitFailed   = "rate_limit_check_failed"
	OutcomeStorageError      = "storage_error"
	OutcomePersistenceError  = "persistence_error"
	OutcomePersisted         = "persisted"
	OutcomeNotified          = "notified"
	OutcomeNotificationError = "notification_failed"
)

// ProofKeyPrefix prefixes every stored proof-of-payment object
const ProofKeyPrefix = "screenshot-"

// IntakeConfig holds the intake service settings
type IntakeConfig struct {
	EventName          string
	MaxScreenshotBytes int64
}

// IntakeService turns a raw submission into a persisted registration.
// Validation and rate limiting run before any durable write, and the
// proof upload always completes before the row is inserted.
type IntakeService struct {
	limiter  *RateLimiter
	store    repositories.PublicRegistrationView
	storage  storage.ObjectStorage
	notifier Notifier
	cfg      IntakeConfig
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// NewIntakeService creates a new intake service
func NewIntakeService(
	limiter *RateLimiter,
	store repositories.PublicRegistrationView,
	objectStorage storage.ObjectStorage,
	notifier Notifier,
	cfg IntakeConfig,
	logger *logrus.Logger,
) *IntakeService {
	return &IntakeService{
		limiter:  limiter,
		store:    store,
		storage:  objectStorage,
		notifier: notifier,
		cfg:      cfg,
		validate: newValidator(),
		metrics:  metrics.NewMetrics(),
		logger:   logger,
		now:      time.Now,
	}
}

// Submit runs one registration attempt to a terminal state. On error no
// registration row exists for this attempt.
func (s *IntakeService) Submit(ctx context.Context, sub *models.Submission) (*models.Registration, error) {
	normalizeSubmission(sub)
	if sub.Path == "" {
		sub.Path = models.PathAPI
	}
	log := s.logger.WithFields(logrus.Fields{
		"email": sub.Email,
		"path":  string(sub.Path),
	})

	if err := s.validateSubmission(sub); err != nil {
		s.record(sub, OutcomeValidationError)
		return nil, err
	}

	now := s.now()

	decision, err := s.limiter.CheckAndReserve(ctx, sub.Email, now)
	if err != nil {
		s.record(sub, OutcomeRateLimitFailed)
		return nil, err
	}
	if !decision.Allowed {
		s.record(sub, OutcomeRateLimited)
		return nil, models.NewRateLimitError(fmt.Sprintf(
			"You have already submitted %d registrations with this email in the last %s.",
			decision.Limit, humanizeWindow(s.limiter.Window()),
		))
	}

	screenshotPath := sub.ScreenshotURL
	uploaded := false
	if sub.Screenshot != nil {
		path, err := s.uploadProof(ctx, sub, now)
		if err != nil {
			s.record(sub, OutcomeStorageError)
			return nil, err
		}
		screenshotPath = path
		uploaded = true
		log = log.WithField("screenshot_path", path)
	}

	registration := &models.Registration{
		Email:         sub.Email,
		Name:          sub.Name,
		TeamName:      nullable(sub.TeamName),
		TeamID:        nullable(sub.TeamID),
		College:       nullable(sub.College),
		Phone:         nullable(sub.Phone),
		Member2Name:   nullable(sub.Member2Name),
		Member3Name:   nullable(sub.Member3Name),
		UpiID:         nullable(sub.UpiID),
		ScreenshotURL: nullable(screenshotPath),
	}

	if err := s.store.Create(ctx, registration); err != nil {
		log.WithError(err).Error("Insert error")
		if uploaded {
			s.compensateUpload(screenshotPath, log)
		}
		s.record(sub, OutcomePersistenceError)
		return nil, models.NewPersistenceError(repositories.StoreMessage(err), err)
	}

	log.WithField("registration_id", registration.ID).Info("Registration persisted")

	outcome := OutcomePersisted
	if sub.TeamName != "" && sub.TeamID != "" {
		outcome = s.notify(ctx, sub, log)
	}
	s.record(sub, outcome)

	return registration, nil
}

func (s *IntakeService) validateSubmission(sub *models.Submission) error {
	if err := s.validate.Struct(sub); err != nil {
		fields := missingFields(err)
		if len(fields) == 0 {
			return models.NewValidationError("Invalid submission", err.Error())
		}
		return models.NewValidationError("Missing required fields",
			"Please provide: "+strings.Join(fields, ", ")).WithMetadata("fields", fields)
	}

	if sub.Path == models.PathForm && sub.Screenshot == nil {
		return models.NewValidationError("Missing required fields",
			"Please select a transaction screenshot to upload.").WithMetadata("fields", []string{"screenshot"})
	}

	if sub.Screenshot != nil {
		if sub.Screenshot.Size <= 0 || sub.Screenshot.Content == nil {
			return models.NewValidationError("Invalid screenshot",
				"Please select a transaction screenshot to upload.")
		}
		if sub.Screenshot.Size > s.cfg.MaxScreenshotBytes {
			return models.NewValidationError("Invalid screenshot",
				fmt.Sprintf("File size must be less than %s.", humanizeBytes(s.cfg.MaxScreenshotBytes)))
		}
	}

	return nil
}

func (s *IntakeService) uploadProof(ctx context.Context, sub *models.Submission, now time.Time) (string, error) {
	key := ProofObjectKey(sub.Name, sub.Screenshot.Filename, sub.Screenshot.ContentType, now)

	start := time.Now()
	path, err := s.storage.Upload(ctx, key, sub.Screenshot.ContentType, sub.Screenshot.Content, sub.Screenshot.Size)
	s.metrics.RecordStorageOperation("upload", err == nil, time.Since(start))
	if err != nil {
		cause := storage.ClassifyUploadError(err)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"key":          key,
			"cause":        string(cause),
			"circuit_open": apperrors.IsCircuitOpen(err),
		}).Error("Upload error")
		return "", models.NewStorageUploadError(cause, s.storage.Bucket(), err)
	}

	return path, nil
}

// compensateUpload removes a proof object whose row could not be inserted.
// It runs on a fresh context because the request context may be what failed.
func (s *IntakeService) compensateUpload(path string, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := s.storage.Delete(ctx, path)
	s.metrics.RecordStorageOperation("delete", err == nil, time.Since(start))
	if err != nil {
		log.WithError(err).Warn("Failed to remove orphaned screenshot; the sweep will collect it")
		return
	}
	s.metrics.RecordOrphansDeleted("compensation", 1)
}

func (s *IntakeService) notify(ctx context.Context, sub *models.Submission, log *logrus.Entry) string {
	fields := models.ConfirmationFields{
		Name:      sub.Name,
		EventName: s.cfg.EventName,
		TeamName:  sub.TeamName,
		TeamID:    sub.TeamID,
	}

	if err := s.notifier.Send(ctx, sub.Email, fields); err != nil {
		log.WithError(err).Warn("Confirmation email failed; registration is kept")
		return OutcomeNotificationError
	}

	return OutcomeNotified
}

func (s *IntakeService) record(sub *models.Submission, outcome string) {
	s.metrics.RecordSubmission(string(sub.Path), outcome)
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeKeyChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// ProofObjectKey derives the storage key for a proof upload from the
// submitter name and submission time.
func ProofObjectKey(name, filename, contentType string, at time.Time) string {
	slug := whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "-")
	slug = unsafeKeyChar.ReplaceAllString(slug, "")
	slug = strings.Trim(slug, ".-")
	if slug == "" {
		slug = "participant"
	}

	return fmt.Sprintf("%s%s-%d.%s", ProofKeyPrefix, slug, at.UnixMilli(), proofExtension(filename, contentType))
}

func proofExtension(filename, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	ext = unsafeKeyChar.ReplaceAllString(ext, "")
	if ext != "" {
		return ext
	}

	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}

	return "bin"
}

func normalizeSubmission(sub *models.Submission) {
	for _, f := range []*string{
		&sub.Email, &sub.Name, &sub.TeamName, &sub.TeamID, &sub.College, &sub.Phone,
		&sub.Member2Name, &sub.Member3Name, &sub.UpiID, &sub.ScreenshotURL,
	} {
		*f = strings.TrimSpace(*f)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func humanizeWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

func humanizeBytes(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	if n%(1<<10) == 0 {
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
