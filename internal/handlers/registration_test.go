package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/middleware"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeRegistrar struct {
	got        *models.Submission
	screenshot []byte
	result     *models.Registration
	err        error
	calls      int
}

func (f *fakeRegistrar) Submit(_ context.Context, sub *models.Submission) (*models.Registration, error) {
	f.calls++
	f.got = sub
	if sub.Screenshot != nil {
		f.screenshot, _ = io.ReadAll(sub.Screenshot.Content)
	}
	return f.result, f.err
}

type fakeNotifier struct {
	recipient string
	fields    models.ConfirmationFields
	err       error
	calls     int
}

func (f *fakeNotifier) Send(_ context.Context, recipient string, fields models.ConfirmationFields) error {
	f.calls++
	f.recipient = recipient
	f.fields = fields
	return f.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func newTestRouter(registrar Registrar, notifier *fakeNotifier) *gin.Engine {
	logger := testLogger()
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.CORS(middleware.DefaultCORSConfig()))
	RegisterRoutes(router,
		NewRegistrationHandler(registrar, 5<<20, logger),
		NewConfirmationHandler(notifier, logger),
		NewHealthHandler(map[string]Pinger{"public": fakePinger{}, "privileged": fakePinger{}}, logger, "test"),
		nil,
	)
	return router
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type formPart struct {
	filename    string
	contentType string
	content     []byte
}

func multipartRequest(t *testing.T, fields map[string]string, file *formPart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="screenshot"; filename="`+file.filename+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/register", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestPreflight(t *testing.T) {
	router := newTestRouter(&fakeRegistrar{}, &fakeNotifier{})

	for _, path := range []string{"/register", "/send-confirmation"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(router, httptest.NewRequest(http.MethodOptions, path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t,
				"X-CSRF-Token, X-Requested-With, Accept, Accept-Version, Content-Length, Content-MD5, Content-Type, Date, X-Api-Version",
				rec.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	registrar := &fakeRegistrar{}
	router := newTestRouter(registrar, &fakeNotifier{})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			rec := serve(router, httptest.NewRequest(method, "/register", nil))

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "Method Not Allowed", body["error"])
			assert.Equal(t, "Only POST requests are allowed", body["message"])
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
	assert.Zero(t, registrar.calls)
}

func TestRegister_JSONSuccess(t *testing.T) {
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	shot := "screenshot-Asha-1.png"
	registrar := &fakeRegistrar{result: &models.Registration{
		ID: "0b6f7c5e-1111-4d1f-9a42-7b1b2a3c4d5e", Email: "asha@example.com", Name: "Asha",
		ScreenshotURL: &shot, CreatedAt: created,
	}}
	router := newTestRouter(registrar, &fakeNotifier{})

	rec := serve(router, jsonRequest(http.MethodPost, "/register",
		`{"email":"asha@example.com","name":"Asha","teamName":"Null Pointers","screenshot_url":"screenshot-Asha-1.png"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, registrar.got)
	assert.Equal(t, models.PathAPI, registrar.got.Path)
	assert.Equal(t, "Null Pointers", registrar.got.TeamName)
	assert.Equal(t, "screenshot-Asha-1.png", registrar.got.ScreenshotURL)
	assert.Nil(t, registrar.got.Screenshot)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0b6f7c5e-1111-4d1f-9a42-7b1b2a3c4d5e", data["id"])
	assert.Equal(t, "screenshot-Asha-1.png", data["screenshotUrl"])
	assert.Nil(t, data["teamName"])
}

func TestRegister_InvalidJSON(t *testing.T) {
	registrar := &fakeRegistrar{}
	router := newTestRouter(registrar, &fakeNotifier{})

	rec := serve(router, jsonRequest(http.MethodPost, "/register", `{"email":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, registrar.calls)
}

func TestRegister_JSONBodyTooLarge(t *testing.T) {
	registrar := &fakeRegistrar{}
	router := newTestRouter(registrar, &fakeNotifier{})
	body := `{"email":"asha@example.com","name":"` + strings.Repeat("a", maxJSONBodyBytes) + `"}`

	rec := serve(router, jsonRequest(http.MethodPost, "/register", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeBody(t, rec)["error"])
	assert.Zero(t, registrar.calls)
}

func TestRegister_UnsupportedMediaType(t *testing.T) {
	registrar := &fakeRegistrar{}
	router := newTestRouter(registrar, &fakeNotifier{})
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("email=a"))
	req.Header.Set("Content-Type", "text/plain")

	rec := serve(router, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Zero(t, registrar.calls)
}

func TestRegister_ServiceErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantError   string
		wantMessage interface{}
	}{
		{
			name:        "missing fields",
			err:         models.NewValidationError("Missing required fields", "Please provide: email"),
			wantStatus:  http.StatusBadRequest,
			wantError:   "Missing required fields",
			wantMessage: "Please provide: email",
		},
		{
			name:        "rate limited",
			err:         models.NewRateLimitError("You have already submitted 2 registrations with this email in the last 24 hours."),
			wantStatus:  http.StatusTooManyRequests,
			wantError:   "Rate limit exceeded",
			wantMessage: "You have already submitted 2 registrations with this email in the last 24 hours.",
		},
		{
			name:       "rate check failed",
			err:        models.NewRateLimitCheckError(errors.New("db down")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to validate registration rate limit",
		},
		{
			name:       "persistence",
			err:        models.NewPersistenceError(`duplicate key value violates unique constraint`, errors.New("pq")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "duplicate key value violates unique constraint",
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeRegistrar{err: tt.err}, &fakeNotifier{})

			rec := serve(router, jsonRequest(http.MethodPost, "/register", `{"email":"a@example.com","name":"A"}`))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, tt.wantMessage, body["message"])
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestRegister_Multipart(t *testing.T) {
	registrar := &fakeRegistrar{result: &models.Registration{ID: "id-1", Email: "asha@example.com", Name: "Asha"}}
	router := newTestRouter(registrar, &fakeNotifier{})

	req := multipartRequest(t, map[string]string{
		"email":       "asha@example.com",
		"name":        "Asha Patil",
		"teamName":    "Null Pointers",
		"teamId":      "CDG-042",
		"college":     "RSCOE",
		"phone":       "9876543210",
		"member2Name": "Rohan",
		"upiId":       "TXN123",
	}, &formPart{filename: "proof.png", contentType: "image/png", content: []byte("png-bytes")})

	rec := serve(router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, registrar.got)
	assert.Equal(t, models.PathForm, registrar.got.Path)
	assert.Equal(t, "RSCOE", registrar.got.College)
	assert.Equal(t, "TXN123", registrar.got.UpiID)
	require.NotNil(t, registrar.got.Screenshot)
	assert.Equal(t, "proof.png", registrar.got.Screenshot.Filename)
	assert.Equal(t, "image/png", registrar.got.Screenshot.ContentType)
	assert.Equal(t, int64(9), registrar.got.Screenshot.Size)
	assert.Equal(t, "png-bytes", string(registrar.screenshot))
}

func TestRegister_MultipartWithoutFile(t *testing.T) {
	registrar := &fakeRegistrar{err: models.NewValidationError("Missing required fields", "Please select a transaction screenshot to upload.")}
	router := newTestRouter(registrar, &fakeNotifier{})

	rec := serve(router, multipartRequest(t, map[string]string{"email": "a@example.com", "name": "A"}, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, registrar.got)
	assert.Nil(t, registrar.got.Screenshot)
}

func TestRegister_MultipartTooLarge(t *testing.T) {
	registrar := &fakeRegistrar{}
	logger := testLogger()
	router := gin.New()
	RegisterRoutes(router,
		NewRegistrationHandler(registrar, 1<<20, logger),
		NewConfirmationHandler(&fakeNotifier{}, logger),
		NewHealthHandler(nil, logger, "test"),
		nil,
	)

	big := bytes.Repeat([]byte("x"), 3<<20)
	rec := serve(router, multipartRequest(t, map[string]string{"email": "a@example.com", "name": "A"},
		&formPart{filename: "big.png", contentType: "image/png", content: big}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "File size must be less than 1MB.", body["message"])
	assert.Zero(t, registrar.calls)
}

func TestRoutes_ThrottleCoversIntakeOnly(t *testing.T) {
	logger := testLogger()
	throttle := middleware.NewThrottle(0.001, 1, logger)
	defer throttle.Stop()

	registrar := &fakeRegistrar{result: &models.Registration{ID: "r1"}}
	router := gin.New()
	RegisterRoutes(router,
		NewRegistrationHandler(registrar, 5<<20, logger),
		NewConfirmationHandler(&fakeNotifier{}, logger),
		NewHealthHandler(map[string]Pinger{"public": fakePinger{}}, logger, "test"),
		http.NotFoundHandler(),
		throttle.Middleware(),
	)

	body := `{"email":"asha@example.com","name":"Asha"}`
	assert.Equal(t, http.StatusOK, serve(router, jsonRequest(http.MethodPost, "/register", body)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, jsonRequest(http.MethodPost, "/register", body)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, jsonRequest(http.MethodPost, "/send-confirmation", `{}`)).Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
		assert.Equal(t, http.StatusNotFound, serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code,
			"metrics reaches its handler")
	}
	assert.Equal(t, 1, registrar.calls)
}

func TestHealth(t *testing.T) {
	logger := testLogger()

	tests := []struct {
		name       string
		pools      map[string]Pinger
		wantStatus int
	}{
		{name: "healthy", pools: map[string]Pinger{"public": fakePinger{}, "privileged": fakePinger{}}, wantStatus: http.StatusOK},
		{name: "privileged down", pools: map[string]Pinger{"public": fakePinger{}, "privileged": fakePinger{err: errors.New("refused")}}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/healthz", NewHealthHandler(tt.pools, logger, "test").Health)

			rec := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Len(t, body["database"], 2)
		})
	}
}
