package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/storage"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// memoryStore backs both registration views with one in-memory table
type memoryStore struct {
	mu          sync.Mutex
	rows        []models.Registration
	now         func() time.Time
	createErr   error
	countErr    error
	refErr      error
	createCalls int
	countCalls  int

	// countHook runs after a count is taken, before it is returned
	countHook func()
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{now: now}
}

func (m *memoryStore) seed(email string, createdAt time.Time, screenshot string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := models.Registration{ID: "seed", Email: email, Name: "Seed", CreatedAt: createdAt}
	if screenshot != "" {
		row.ScreenshotURL = &screenshot
	}
	m.rows = append(m.rows, row)
}

func (m *memoryStore) Create(_ context.Context, registration *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	registration.ID = "reg-" + strings.Repeat("x", len(m.rows)+1)
	registration.CreatedAt = m.now()
	m.rows = append(m.rows, *registration)
	return nil
}

func (m *memoryStore) CountByEmailSince(_ context.Context, email string, since time.Time) (int, error) {
	m.mu.Lock()
	m.countCalls++
	if m.countErr != nil {
		m.mu.Unlock()
		return 0, m.countErr
	}
	count := 0
	for _, row := range m.rows {
		if row.Email == email && row.CreatedAt.After(since) {
			count++
		}
	}
	hook := m.countHook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return count, nil
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			r := row
			return &r, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memoryStore) ReferencedScreenshots(_ context.Context, paths []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refErr != nil {
		return nil, m.refErr
	}
	referenced := make(map[string]bool)
	for _, p := range paths {
		for _, row := range m.rows {
			if row.ScreenshotURL != nil && *row.ScreenshotURL == p {
				referenced[p] = true
			}
		}
	}
	return referenced, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memoryStorage is an in-memory bucket
type memoryStorage struct {
	mu          sync.Mutex
	objects     map[string]storage.Object
	uploadErr   error
	deleteErr   error
	listErr     error
	uploadCalls int
	deleteCalls int
	deleted     []string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string]storage.Object)}
}

func (s *memoryStorage) Bucket() string { return "codigo-registrations" }

func (s *memoryStorage) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadCalls++
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	s.objects[key] = storage.Object{Name: key, CreatedAt: time.Now()}
	return key, nil
}

func (s *memoryStorage) put(name string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = storage.Object{Name: name, CreatedAt: createdAt}
}

func (s *memoryStorage) List(_ context.Context, folder string, limit, offset int) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var all []storage.Object
	for name, obj := range s.objects {
		if folder == "" || strings.HasPrefix(name, folder+"/") {
			all = append(all, obj)
		}
	}
	sortObjects(all)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memoryStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, k := range keys {
		delete(s.objects, k)
		s.deleted = append(s.deleted, k)
	}
	return nil
}

func (s *memoryStorage) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[name]
	return ok
}

func sortObjects(objs []storage.Object) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
}

// recordingNotifier captures confirmation requests
type recordingNotifier struct {
	mu    sync.Mutex
	err   error
	calls []models.ConfirmationFields
	to    []string
}

func (n *recordingNotifier) Send(_ context.Context, recipient string, fields models.ConfirmationFields) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fields)
	n.to = append(n.to, recipient)
	return n.err
}

// recordingMailer captures outbound messages
type recordingMailer struct {
	err      error
	messages []*Message
}

func (m *recordingMailer) Send(_ context.Context, msg *Message) error {
	m.messages = append(m.messages, msg)
	return m.err
}

func proofFile(name string, size int) *models.ProofFile {
	return &models.ProofFile{
		Filename:    name,
		ContentType: "image/png",
		Size:        int64(size),
		Content:     bytes.NewReader(make([]byte, size)),
	}
}
