package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivetheory/theory-hub/internal/application/command"
	"github.com/drivetheory/theory-hub/internal/application/query"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/internal/infrastructure/lock"
	"github.com/drivetheory/theory-hub/internal/infrastructure/persistence/sqlite"
	"github.com/drivetheory/theory-hub/internal/interface/http/handlers"
	"github.com/drivetheory/theory-hub/pkg/logger"
	"github.com/drivetheory/theory-hub/pkg/timeutil"
)

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	catalog, err := achievement.DefaultCatalog()
	require.NoError(t, err)
	store, err := sqlite.OpenMemory(ctx, catalog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	submit := command.NewSubmitPracticeHandler(
		store,
		lock.NewLocalLocker(time.Second),
		achievement.NewEvaluator(catalog),
		timeutil.NewCalendar(time.UTC, nil),
		nil, nil, logger.Nop(),
		command.DefaultSubmitPracticeHandlerConfig(),
	)
	progress := query.NewGetStudentProgressHandler(store, catalog, nil, 0, nil, logger.Nop())

	health := handlers.NewHealthChecker("test")
	health.AddCheck("store", handlers.PingCheck(store), true)

	srv := NewServer(DefaultConfig(), Dependencies{
		Submitter: submit,
		Progress:  progress,
		Health:    health,
		Logger:    logger.Nop(),
	})
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

const perfectBody = `{
	"userId": 42,
	"categoryId": "all",
	"timeSpent": 300,
	"results": [
		{"questionId": 1, "isCorrect": true}, {"questionId": 2, "isCorrect": true},
		{"questionId": 3, "isCorrect": true}, {"questionId": 4, "isCorrect": true},
		{"questionId": 5, "isCorrect": true}, {"questionId": 6, "isCorrect": true},
		{"questionId": 7, "isCorrect": true}, {"questionId": 8, "isCorrect": true},
		{"questionId": 9, "isCorrect": true}, {"questionId": 10, "isCorrect": true, "timeSpent": 12.5}
	]
}`

func TestSubmit_Success(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := do(t, srv.Handler(), http.MethodPost, "/theory/submit", perfectBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(handlers.HeaderRequestID))

	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, 10.0, data["score"])
	assert.Equal(t, 10.0, data["totalQuestions"])
	assert.Equal(t, 100.0, data["accuracyPercentage"])
	assert.Equal(t, 195.0, data["pointsEarned"])
	assert.Equal(t, "pass", data["result"])
	assert.NotEmpty(t, data["feedback"])

	achievements := data["newAchievements"].([]any)
	require.Len(t, achievements, 1)
	first := achievements[0].(map[string]any)
	assert.Equal(t, "Perfect Score", first["name"])
	assert.Equal(t, 100.0, first["points"])
}

func TestSubmit_FlexibleIdentifiers(t *testing.T) {
	srv, store := newTestServer(t)

	payload := `{"userId":"abc-7","categoryId":"12","results":[{"questionId":3,"isCorrect":false}]}`
	rec, body := do(t, srv.Handler(), http.MethodPost, "/theory/submit", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "fail", body["data"].(map[string]any)["result"])

	cp, err := store.Categories().ListCategoryProgress(context.Background(), "abc-7")
	require.NoError(t, err)
	require.Len(t, cp, 1)
	assert.Equal(t, shared.CategoryID(12), cp[0].CategoryID)
}

func TestSubmit_InvalidBodies(t *testing.T) {
	srv, store := newTestServer(t)

	bodies := map[string]string{
		"empty results":     `{"userId":1,"results":[]}`,
		"missing results":   `{"userId":1}`,
		"missing user":      `{"results":[{"questionId":1,"isCorrect":true}]}`,
		"string isCorrect":  `{"userId":1,"results":[{"questionId":1,"isCorrect":"yes"}]}`,
		"missing isCorrect": `{"userId":1,"results":[{"questionId":1}]}`,
		"bad category":      `{"userId":1,"categoryId":"maths","results":[{"questionId":1,"isCorrect":true}]}`,
		"fractional user":   `{"userId":1.5,"results":[{"questionId":1,"isCorrect":true}]}`,
		"negative time":     `{"userId":1,"timeSpent":-3,"results":[{"questionId":1,"isCorrect":true}]}`,
		"huge time":         `{"userId":1,"timeSpent":1e19,"results":[{"questionId":1,"isCorrect":true}]}`,
		"huge result time":  `{"userId":1,"results":[{"questionId":1,"isCorrect":true,"timeSpent":1e308}]}`,
		"not json":          `{"userId":`,
	}
	for name, payload := range bodies {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, srv.Handler(), http.MethodPost, "/theory/submit", payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, handlers.MsgInvalidSubmission, body["error"])
		})
	}

	sessions, err := store.Sessions().ListRecent(context.Background(), "1", 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

type failingSubmitter struct{}

func (failingSubmitter) Handle(context.Context, command.SubmitPracticeCommand) (*command.SubmitPracticeResult, error) {
	return nil, shared.StorageFailure("Apply", errors.New("connection reset"))
}

func TestSubmit_StorageFailure(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{Submitter: failingSubmitter{}, Logger: logger.Nop()})

	rec, body := do(t, srv.Handler(), http.MethodPost, "/theory/submit",
		`{"userId":1,"results":[{"questionId":1,"isCorrect":true}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "error": handlers.MsgSubmitFailed}, body)
}

func TestProgress_AfterSubmit(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := do(t, srv.Handler(), http.MethodPost, "/theory/submit", perfectBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := do(t, srv.Handler(), http.MethodGet, "/theory/progress/42", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := body["data"].(map[string]any)
	assert.Equal(t, 195.0, data["totalPoints"])
	assert.Equal(t, 1.0, data["currentStreak"])
	assert.Len(t, data["achievements"].([]any), 1)
	assert.Len(t, data["recentSessions"].([]any), 1)
}

func TestProgress_UnknownStudent(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := do(t, srv.Handler(), http.MethodGet, "/theory/progress/nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, 0.0, data["totalPoints"])
	assert.Nil(t, data["lastActivityDate"])
	assert.Empty(t, data["categories"])
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := do(t, srv.Handler(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	rec, body = do(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["healthy"])
}

func TestReady_CriticalCheckFails(t *testing.T) {
	health := handlers.NewHealthChecker("test")
	health.AddCheck("store", func(context.Context) error { return errors.New("down") }, true)
	health.AddCheck("redis", func(context.Context) error { return errors.New("down") }, false)
	srv := NewServer(DefaultConfig(), Dependencies{Health: health, Logger: logger.Nop()})

	rec, body := do(t, srv.Handler(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Checks failed: store", body["message"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set(handlers.HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(handlers.HeaderRequestID))
}
