package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	apperrors "github.com/rscoe-coding-club/codigo-registration-backend/pkg/errors"
)

// ObjectStorage stores proof-of-payment objects in a named bucket
type ObjectStorage interface {
	Bucket() string
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	// List returns one raw page of the folder listing. The page is not
	// filtered, so a short page is the only end-of-listing signal.
	List(ctx context.Context, folder string, limit, offset int) ([]Object, error)
	Delete(ctx context.Context, keys ...string) error
}

// Object is a stored object as reported by the list endpoint
type Object struct {
	Name      string
	ID        string
	CreatedAt time.Time
}

// Config configures a SupabaseStorage client
type Config struct {
	BaseURL        string
	AnonKey        string
	ServiceRoleKey string
	Bucket         string
	CacheControl   int
	Timeout        time.Duration
}

// APIError is an error body returned by the storage API
type APIError = storage_go.StorageError

// SupabaseStorage talks to Supabase Storage. Uploads use the public key so
// bucket policies apply; listing and deletion use the service key and are
// reserved for cleanup.
type SupabaseStorage struct {
	cfg      Config
	endpoint string
	admin    *storage_go.Client
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *logrus.Logger
}

// NewSupabaseStorage creates a new storage client
func NewSupabaseStorage(cfg Config, logger *logrus.Logger) *SupabaseStorage {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/storage/v1"

	s := &SupabaseStorage{
		cfg:      cfg,
		endpoint: endpoint,
		admin:    newClient(endpoint, cfg.ServiceRoleKey),
		logger:   logger,
	}

	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "supabase-storage",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// An error body from the API means storage answered
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Message != ""
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Storage circuit breaker changed state")
		},
	})

	return s
}

func newClient(endpoint, key string) *storage_go.Client {
	return storage_go.NewClient(endpoint, key, map[string]string{"apikey": key})
}

// Bucket returns the configured bucket name
func (s *SupabaseStorage) Bucket() string {
	return s.cfg.Bucket
}

// Upload stores body under key and fails if the key already exists.
// The returned path is the key relative to the bucket.
func (s *SupabaseStorage) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if size > 0 {
		body = io.LimitReader(body, size)
	}

	upsert := false
	cacheControl := "max-age=" + strconv.Itoa(s.cfg.CacheControl)
	opts := storage_go.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &contentType,
		Upsert:       &upsert,
	}

	err := s.execute(ctx, func() error {
		// File options are stored on the client headers, so each upload gets its own client
		_, err := newClient(s.endpoint, s.cfg.AnonKey).UploadFile(s.cfg.Bucket, key, body, opts)
		return err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "already exists") {
			return "", fmt.Errorf("upload %s: %w: %w", key, apperrors.ErrObjectExists, err)
		}
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return key, nil
}

// List returns one page of the folder listing, oldest first. An empty
// folder lists the bucket root.
func (s *SupabaseStorage) List(ctx context.Context, folder string, limit, offset int) ([]Object, error) {
	var files []storage_go.FileObject
	err := s.execute(ctx, func() error {
		var err error
		files, err = s.admin.ListFiles(s.cfg.Bucket, folder, storage_go.FileSearchOptions{
			Limit:         limit,
			Offset:        offset,
			SortByOptions: storage_go.SortBy{Column: "created_at", Order: "asc"},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	objects := make([]Object, 0, len(files))
	for _, f := range files {
		obj := Object{Name: f.Name, ID: f.Id}
		// Folder placeholders carry no timestamp and stay zero
		if t, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err == nil {
			obj.CreatedAt = t
		}
		objects = append(objects, obj)
	}

	return objects, nil
}

// Delete removes the given keys from the bucket
func (s *SupabaseStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	err := s.execute(ctx, func() error {
		_, err := s.admin.RemoveFile(s.cfg.Bucket, keys)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %d objects: %w", len(keys), err)
	}

	return nil
}

// execute runs fn through the breaker and bounds it by ctx and the client
// timeout. The storage client takes no context, so an abandoned call keeps
// running in the background; an upload that lands late is left for the
// orphan sweep.
func (s *SupabaseStorage) execute(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (struct{}, error) {
		done := make(chan error, 1)
		go func() { done <- describe(fn()) }()

		select {
		case err := <-done:
			return struct{}{}, err
		case <-ctx.Done():
			return struct{}{}, fmt.Errorf("storage request abandoned: %w", ctx.Err())
		}
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Wrap(apperrors.ErrCircuitOpen, err.Error())
	}
	return err
}

// describe gives empty API error bodies a readable message
func describe(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message == "" {
		return fmt.Errorf("storage api returned no error message: %w", err)
	}
	return err
}

// ClassifyUploadError maps an upload failure to the cause shown to the submitter
func ClassifyUploadError(err error) models.StorageFailure {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if strings.Contains(apiErr.Message, "Bucket not found") {
			return models.StorageBucketMissing
		}
		if strings.Contains(apiErr.Message, "row-level security") || strings.Contains(apiErr.Message, "RLS") {
			return models.StorageAccessPolicyDenied
		}
	}

	return models.StorageOther
}
