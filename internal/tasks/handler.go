package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/middleware"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// maxUploadBytes bounds the multipart upload. Large originals belong in a
// resumable flow, not this endpoint.
const maxUploadBytes = 20 << 20

// TaskAPI is the service surface the handler needs.
type TaskAPI interface {
	Submit(ctx context.Context, ownerID uuid.UUID, filename string, image io.Reader, spec models.TransformSpec) (*models.Task, error)
	Get(ctx context.Context, ownerID, taskID uuid.UUID) (*models.Task, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error)
}

// Handler serves /api/v1/tasks endpoints.
type Handler struct {
	Svc    TaskAPI
	Logger *slog.Logger
}

type taskResponse struct {
	ID             string               `json:"id"`
	Status         string               `json:"status"`
	InputRef       string               `json:"input_ref"`
	OutputRef      *string              `json:"output_ref,omitempty"`
	Spec           models.TransformSpec `json:"spec"`
	Error          *string              `json:"error,omitempty"`
	CreditsCharged int64                `json:"credits_charged"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      string               `json:"updated_at"`
}

// Create handles POST /api/v1/tasks. Multipart form: "image" is the file,
// "spec" is the transform JSON. Responds 202; the work happens async.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, `{"error":"invalid multipart form"}`, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, `{"error":"missing image file"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	var spec models.TransformSpec
	if raw := r.FormValue("spec"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			http.Error(w, `{"error":"invalid spec JSON"}`, http.StatusBadRequest)
			return
		}
	}

	task, err := h.Svc.Submit(r.Context(), acc.ID, header.Filename, file, spec)
	if err != nil {
		h.writeSubmitError(w, acc.ID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(task))
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, accountID uuid.UUID, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidTransformSpec):
		http.Error(w, `{"error":"invalid transform spec"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
	case errors.Is(err, ErrBusy):
		http.Error(w, `{"error":"try again"}`, http.StatusConflict)
	case errors.Is(err, ErrStorageUnavailable):
		h.Logger.Error("upload storage unavailable", "account_id", accountID, "error", err)
		http.Error(w, `{"error":"storage unavailable"}`, http.StatusServiceUnavailable)
	default:
		h.Logger.Error("task submission failed", "account_id", accountID, "error", err)
		http.Error(w, `{"error":"submission failed"}`, http.StatusInternalServerError)
	}
}

// Get handles GET /api/v1/tasks/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	task, err := h.Svc.Get(r.Context(), acc.ID, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get task failed", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(task))
}

// List handles GET /api/v1/tasks.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.Svc.List(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list tasks failed", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
		return
	}
	out := make([]taskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func toResponse(t *models.Task) taskResponse {
	return taskResponse{
		ID:             t.ID.String(),
		Status:         t.Status,
		InputRef:       t.InputRef,
		OutputRef:      t.OutputRef,
		Spec:           t.Spec,
		Error:          t.ErrorReason,
		CreditsCharged: t.CreditsCharged,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
