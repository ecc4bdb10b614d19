package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/middleware"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// ---------------------------------------------------------------------------
// TaskAPI mock
// ---------------------------------------------------------------------------

type mockTaskAPI struct {
	submitErr error
	getErr    error
	task      *models.Task
	submitted []models.TransformSpec
}

func (m *mockTaskAPI) Submit(_ context.Context, ownerID uuid.UUID, filename string, image io.Reader, spec models.TransformSpec) (*models.Task, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, spec)
	return &models.Task{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		InputRef:       "uploads/" + filename,
		Spec:           spec,
		Status:         models.TaskStatusPending,
		CreditsCharged: 1,
	}, nil
}

func (m *mockTaskAPI) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Task, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.task, nil
}

func (m *mockTaskAPI) List(context.Context, uuid.UUID) ([]*models.Task, error) {
	if m.task == nil {
		return nil, nil
	}
	return []*models.Task{m.task}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func multipartBody(t *testing.T, specJSON string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("image", "cat.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("fake image bytes")); err != nil {
		t.Fatal(err)
	}
	if specJSON != "" {
		if err := mw.WriteField("spec", specJSON); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf, mw.FormDataContentType()
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	acc := &models.Account{ID: uuid.New(), Email: "a@example.com"}
	return req.WithContext(middleware.WithAccount(req.Context(), acc))
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateAccepted(t *testing.T) {
	api := &mockTaskAPI{}
	h := &Handler{Svc: api, Logger: testLogger()}

	body, ct := multipartBody(t, `{"resize":{"width":100,"height":50},"grayscale":true}`)
	req := authedRequest(http.MethodPost, "/api/v1/tasks", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202, body %s", rec.Code, rec.Body)
	}
	var resp taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.TaskStatusPending {
		t.Errorf("status: got %q, want pending", resp.Status)
	}
	if len(api.submitted) != 1 || api.submitted[0].Resize == nil || api.submitted[0].Resize.Width != 100 {
		t.Errorf("spec not passed through: %+v", api.submitted)
	}
}

func TestCreateRequiresAuth(t *testing.T) {
	h := &Handler{Svc: &mockTaskAPI{}, Logger: testLogger()}
	body, ct := multipartBody(t, `{"grayscale":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestCreateMissingFile(t *testing.T) {
	h := &Handler{Svc: &mockTaskAPI{}, Logger: testLogger()}
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("spec", `{"grayscale":true}`)
	_ = mw.Close()

	req := authedRequest(http.MethodPost, "/api/v1/tasks", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestCreateErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidTransformSpec, http.StatusBadRequest},
		{ledger.ErrInsufficientFunds, http.StatusPaymentRequired},
		{ErrStorageUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := &Handler{Svc: &mockTaskAPI{submitErr: tc.err}, Logger: testLogger()}
		body, ct := multipartBody(t, `{"grayscale":true}`)
		req := authedRequest(http.MethodPost, "/api/v1/tasks", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		if rec.Code != tc.want {
			t.Errorf("%v: status got %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Get / List
// ---------------------------------------------------------------------------

func TestGetNotFound(t *testing.T) {
	h := &Handler{Svc: &mockTaskAPI{getErr: ErrTaskNotFound}, Logger: testLogger()}
	req := authedRequest(http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestGetInvalidID(t *testing.T) {
	h := &Handler{Svc: &mockTaskAPI{}, Logger: testLogger()}
	req := authedRequest(http.MethodGet, "/api/v1/tasks/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestGetReturnsTask(t *testing.T) {
	out := "processed/out.jpg"
	task := &models.Task{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		InputRef:  "uploads/in.png",
		OutputRef: &out,
		Status:    models.TaskStatusCompleted,
	}
	h := &Handler{Svc: &mockTaskAPI{task: task}, Logger: testLogger()}
	req := authedRequest(http.MethodGet, "/api/v1/tasks/"+task.ID.String(), nil)
	req.SetPathValue("id", task.ID.String())
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var resp taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.TaskStatusCompleted || resp.OutputRef == nil || *resp.OutputRef != out {
		t.Errorf("response: %+v", resp)
	}
}

func TestListEmptyReturnsJSONArray(t *testing.T) {
	h := &Handler{Svc: &mockTaskAPI{}, Logger: testLogger()}
	req := authedRequest(http.MethodGet, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var resp []taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body not a JSON array: %s", rec.Body)
	}
	if len(resp) != 0 {
		t.Errorf("expected empty list, got %v", resp)
	}
}
