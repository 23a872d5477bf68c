package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"goalforge-async/internal/domain/model"
	derror "goalforge-async/internal/error"
	"goalforge-async/internal/usecase"
)

type generateRequest struct {
	Type   model.GenerationType `json:"type"`
	Params json.RawMessage      `json:"params"`
}

type generateResponse struct {
	ProcessID               string                 `json:"processId"`
	Status                  model.ProcessingStatus `json:"status"`
	Type                    model.GenerationType   `json:"type"`
	CreatedAt               time.Time              `json:"createdAt"`
	EstimatedCompletionTime time.Time              `json:"estimatedCompletionTime"`
}

type statusResponse struct {
	ProcessID               string                 `json:"processId"`
	Status                  model.ProcessingStatus `json:"status"`
	Type                    model.GenerationType   `json:"type"`
	Progress                int                    `json:"progress"`
	CreatedAt               time.Time              `json:"createdAt"`
	UpdatedAt               time.Time              `json:"updatedAt"`
	EstimatedCompletionTime time.Time              `json:"estimatedCompletionTime"`
	Result                  json.RawMessage        `json:"result,omitempty"`
	Error                   *model.ProcessingError `json:"error,omitempty"`
}

type cancelResponse struct {
	ProcessID   string                 `json:"processId"`
	Status      model.ProcessingStatus `json:"status"`
	Type        model.GenerationType   `json:"type"`
	CreatedAt   time.Time              `json:"createdAt"`
	CancelledAt time.Time              `json:"cancelledAt"`
	Message     string                 `json:"message"`
}

type retryResponse struct {
	ProcessID               string                 `json:"processId"`
	Status                  model.ProcessingStatus `json:"status"`
	Type                    model.GenerationType   `json:"type"`
	CreatedAt               time.Time              `json:"createdAt"`
	EstimatedCompletionTime time.Time              `json:"estimatedCompletionTime"`
	RetryCount              int                    `json:"retryCount"`
}

// generateHandler starts a new generation job and answers 202 immediately;
// clients poll the status endpoint for the outcome.
func generateHandler(genUC usecase.GenerationUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, log, derror.Authentication(""))
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, log, derror.Validation("invalid request body"))
			return
		}

		snap, err := genUC.Start(r.Context(), identity.ID, req.Type, req.Params)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusAccepted, generateResponse{
			ProcessID:               snap.State.ID,
			Status:                  snap.State.Status,
			Type:                    snap.State.Type,
			CreatedAt:               snap.State.CreatedAt,
			EstimatedCompletionTime: snap.EstimatedCompletionTime,
		})
	}
}

func statusHandler(genUC usecase.GenerationUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, log, derror.Authentication(""))
			return
		}

		snap, err := genUC.Status(r.Context(), identity.ID, chi.URLParam(r, "processID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		st := snap.State
		resp := statusResponse{
			ProcessID:               st.ID,
			Status:                  st.Status,
			Type:                    st.Type,
			Progress:                st.Progress,
			CreatedAt:               st.CreatedAt,
			UpdatedAt:               st.UpdatedAt,
			EstimatedCompletionTime: snap.EstimatedCompletionTime,
		}
		// Result only for completed jobs; error only for failed/timed-out ones.
		switch st.Status {
		case model.StatusCompleted:
			resp.Result = st.Result
		case model.StatusFailed, model.StatusTimeout:
			resp.Error = st.Error
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelHandler(genUC usecase.GenerationUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, log, derror.Authentication(""))
			return
		}

		snap, err := genUC.Cancel(r.Context(), identity.ID, chi.URLParam(r, "processID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		st := snap.State
		var cancelledAt time.Time
		if st.CompletedAt != nil {
			cancelledAt = *st.CompletedAt
		}
		writeJSON(w, http.StatusOK, cancelResponse{
			ProcessID:   st.ID,
			Status:      st.Status,
			Type:        st.Type,
			CreatedAt:   st.CreatedAt,
			CancelledAt: cancelledAt,
			Message:     snap.Message,
		})
	}
}

func retryHandler(genUC usecase.GenerationUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, log, derror.Authentication(""))
			return
		}

		snap, err := genUC.Retry(r.Context(), identity.ID, chi.URLParam(r, "processID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		st := snap.State
		writeJSON(w, http.StatusAccepted, retryResponse{
			ProcessID:               st.ID,
			Status:                  st.Status,
			Type:                    st.Type,
			CreatedAt:               st.CreatedAt,
			EstimatedCompletionTime: snap.EstimatedCompletionTime,
			RetryCount:              st.RetryCount,
		})
	}
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}
