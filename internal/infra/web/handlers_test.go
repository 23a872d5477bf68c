//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"goalforge-async/internal/config"
	"goalforge-async/internal/domain"
	"goalforge-async/internal/domain/model"
	"goalforge-async/internal/domain/ports/repository"
	"goalforge-async/internal/usecase"
)

const testSecret = "web-test-secret"

// --- Mock Repositories (Ports) ---

type mockStateRepo struct {
	mu   sync.Mutex
	rows map[string]*model.ProcessingState
}

func newMockStateRepo() *mockStateRepo {
	return &mockStateRepo{rows: map[string]*model.ProcessingState{}}
}

func (m *mockStateRepo) Create(ctx context.Context, tx repository.Tx, state *model.ProcessingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.rows[state.ID] = &cp
	return nil
}

func (m *mockStateRepo) FindByIDAndUser(ctx context.Context, tx repository.Tx, id, userID string) (*model.ProcessingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *mockStateRepo) UpdateStatus(ctx context.Context, tx repository.Tx, state *model.ProcessingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.rows[state.ID]
	if !ok || prev.UserID != state.UserID {
		return domain.ErrNotFound
	}
	if prev.Status != state.Status && !model.CanTransition(prev.Status, state.Status) {
		return domain.ErrInvalidTransition
	}
	cp := *state
	m.rows[state.ID] = &cp
	return nil
}

func (m *mockStateRepo) Delete(ctx context.Context, tx repository.Tx, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *mockStateRepo) put(state *model.ProcessingState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.rows[state.ID] = &cp
}

type mockEngine struct{}

func (mockEngine) Name() string { return "mock" }
func (mockEngine) StartExecution(ctx context.Context, name string, input json.RawMessage) error {
	return nil
}
func (mockEngine) StopExecution(ctx context.Context, name, cause string) error { return nil }

// --- test harness ---

func newTestServer(t *testing.T) (*httptest.Server, *mockStateRepo) {
	t.Helper()
	repo := newMockStateRepo()
	logger := zerolog.Nop()
	gen := config.GenerationConfig{
		SubGoalEstimate: 60 * time.Second,
		ActionEstimate:  180 * time.Second,
		TaskEstimate:    300 * time.Second,
	}
	uc := usecase.NewGenerationUseCase(repo, mockEngine{}, nil, 0, gen, &logger)
	srv := NewServer(uc, NewAuthManager(testSecret), &logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, repo
}

func mintToken(t *testing.T, userID, email string) string {
	t.Helper()
	claims := callerClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return tok
}

func doReq(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

type wireError struct {
	Success bool `json:"success"`
	Error   struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
		Details   map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, b []byte) wireError {
	t.Helper()
	var we wireError
	if err := json.Unmarshal(b, &we); err != nil {
		t.Fatalf("decode error body %q: %v", b, err)
	}
	return we
}

// --- tests ---

func TestHealthNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, b := doReq(t, ts, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Timestamp.IsZero() {
		t.Errorf("health body = %s", b)
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)
	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"wrong key", func() string {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).
				SignedString([]byte("other-secret"))
			return tok
		}()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, b := doReq(t, ts, http.MethodGet, "/async/status/3f2f8e1c-0000-4000-8000-000000000000", c.token, nil)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
			we := decodeError(t, b)
			if we.Success || we.Error.Code != "AUTHENTICATION_ERROR" || we.Error.Retryable {
				t.Errorf("body = %s", b)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	ts, _ := newTestServer(t)
	tok := mintToken(t, "u1", "u1@example.com")

	resp, b := doReq(t, ts, http.MethodPost, "/async/generate", tok, map[string]any{
		"type":   "SUBGOAL_GENERATION",
		"params": map[string]any{"goalId": "g1"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", resp.StatusCode, b)
	}
	var out generateResponse
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ProcessID == "" || out.Status != model.StatusPending || out.Type != model.GenerationTypeSubGoal {
		t.Errorf("body = %s", b)
	}
	if !out.EstimatedCompletionTime.Equal(out.CreatedAt.Add(60 * time.Second)) {
		t.Errorf("estimate = %v for createdAt %v", out.EstimatedCompletionTime, out.CreatedAt)
	}

	// poll immediately after
	resp, b = doReq(t, ts, http.MethodGet, "/async/status/"+out.ProcessID, tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, b)
	}
	var st statusResponse
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != model.StatusPending && st.Status != model.StatusProcessing {
		t.Errorf("fresh job status = %s", st.Status)
	}
	if st.Result != nil || st.Error != nil {
		t.Errorf("fresh job must not carry result or error: %s", b)
	}
}

func TestGenerateValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	tok := mintToken(t, "u1", "")

	resp, b := doReq(t, ts, http.MethodPost, "/async/generate", tok, map[string]any{
		"type":   "SUBGOAL_GENERATION",
		"params": map[string]any{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	we := decodeError(t, b)
	if we.Error.Code != "VALIDATION_ERROR" || we.Error.Retryable {
		t.Errorf("body = %s", b)
	}
}

func TestStatusNotFoundIndistinguishable(t *testing.T) {
	ts, repo := newTestServer(t)

	st, _ := model.NewProcessingState("owner", model.GenerationTypeSubGoal, "g1", json.RawMessage(`{"goalId":"g1"}`))
	repo.put(st)

	tok := mintToken(t, "intruder", "")
	_, bodyForeign := doReq(t, ts, http.MethodGet, "/async/status/"+st.ID, tok, nil)
	respMissing, bodyMissing := doReq(t, ts, http.MethodGet, "/async/status/3f2f8e1c-0000-4000-8000-000000000000", tok, nil)

	if respMissing.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", respMissing.StatusCode)
	}
	if !bytes.Equal(bodyForeign, bodyMissing) {
		t.Errorf("foreign and missing bodies must be byte-identical:\n%s\n%s", bodyForeign, bodyMissing)
	}
}

func TestStatusMalformedID(t *testing.T) {
	ts, _ := newTestServer(t)
	tok := mintToken(t, "u1", "")
	resp, b := doReq(t, ts, http.MethodGet, "/async/status/not-a-uuid", tok, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", resp.StatusCode, b)
	}
	if we := decodeError(t, b); we.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("body = %s", b)
	}
}

func TestStatusCompletedIncludesResult(t *testing.T) {
	ts, repo := newTestServer(t)
	st, _ := model.NewProcessingState("u1", model.GenerationTypeAction, "sg1", nil)
	st.Status = model.StatusCompleted
	st.Progress = 100
	st.Result = json.RawMessage(`{"actions":["draft timeline"]}`)
	now := time.Now().UTC()
	st.CompletedAt = &now
	repo.put(st)

	tok := mintToken(t, "u1", "")
	resp, b := doReq(t, ts, http.MethodGet, "/async/status/"+st.ID, tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out statusResponse
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result == nil || out.Error != nil {
		t.Errorf("completed body = %s", b)
	}
}

func TestStatusFailedIncludesError(t *testing.T) {
	ts, repo := newTestServer(t)
	st, _ := model.NewProcessingState("u1", model.GenerationTypeTask, "a1", nil)
	st.Status = model.StatusFailed
	st.Error = &model.ProcessingError{Code: "WORKFLOW_ERROR", Message: "generation pipeline failed", Retryable: true}
	now := time.Now().UTC()
	st.CompletedAt = &now
	repo.put(st)

	tok := mintToken(t, "u1", "")
	_, b := doReq(t, ts, http.MethodGet, "/async/status/"+st.ID, tok, nil)
	var out statusResponse
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != "WORKFLOW_ERROR" || out.Result != nil {
		t.Errorf("failed body = %s", b)
	}
}

func TestCancelFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	tok := mintToken(t, "u1", "")

	_, b := doReq(t, ts, http.MethodPost, "/async/generate", tok, map[string]any{
		"type":   "SUBGOAL_GENERATION",
		"params": map[string]any{"goalId": "g1"},
	})
	var started generateResponse
	if err := json.Unmarshal(b, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, b := doReq(t, ts, http.MethodPost, "/async/cancel/"+started.ProcessID, tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, b)
	}
	var out cancelResponse
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != model.StatusCancelled || out.CancelledAt.IsZero() || out.Message == "" {
		t.Errorf("cancel body = %s", b)
	}

	// a second cancel must be rejected and must name the current status
	resp, b = doReq(t, ts, http.MethodPost, "/async/cancel/"+started.ProcessID, tok, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second cancel status = %d", resp.StatusCode)
	}
	we := decodeError(t, b)
	if we.Error.Code != "CANNOT_CANCEL_ERROR" {
		t.Errorf("second cancel body = %s", b)
	}
}

func TestRetryFlow(t *testing.T) {
	ts, repo := newTestServer(t)
	st, _ := model.NewProcessingState("u1", model.GenerationTypeSubGoal, "g1", json.RawMessage(`{"goalId":"g1"}`))
	st.Status = model.StatusFailed
	repo.put(st)

	tok := mintToken(t, "u1", "")
	resp, b := doReq(t, ts, http.MethodPost, "/async/retry/"+st.ID, tok, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", resp.StatusCode, b)
	}
	var out retryResponse
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ProcessID == st.ID {
		t.Error("retry must return a new process id")
	}
	if out.Status != model.StatusPending || out.RetryCount != 1 {
		t.Errorf("retry body = %s", b)
	}
}

func TestRetryLimitOverWire(t *testing.T) {
	ts, repo := newTestServer(t)
	st, _ := model.NewProcessingState("u1", model.GenerationTypeSubGoal, "g1", json.RawMessage(`{"goalId":"g1"}`))
	st.Status = model.StatusFailed
	st.RetryCount = model.MaxRetryCount
	repo.put(st)

	tok := mintToken(t, "u1", "")
	resp, b := doReq(t, ts, http.MethodPost, "/async/retry/"+st.ID, tok, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	we := decodeError(t, b)
	if we.Error.Code != "RETRY_LIMIT_EXCEEDED_ERROR" {
		t.Errorf("body = %s", b)
	}
	if we.Error.Details["maxRetries"] != float64(model.MaxRetryCount) {
		t.Errorf("details = %v", we.Error.Details)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doReq(t, ts, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
