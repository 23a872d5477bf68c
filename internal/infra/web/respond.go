package web

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	derror "goalforge-async/internal/error"
	"goalforge-async/internal/infra/logging"
)

type errorBody struct {
	Code      derror.Code    `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError funnels every failure through the taxonomy so the wire contract
// is uniform across operations. Causes go to the log, never to the client.
func writeError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	e := derror.From(err)
	if e.Status >= http.StatusInternalServerError {
		log.Error().Str("code", string(e.Code)).Msg(logging.Sanitize(e.Error()))
	} else {
		log.Debug().Str("code", string(e.Code)).Msg(logging.Sanitize(e.Error()))
	}
	writeJSON(w, e.Status, errorEnvelope{
		Success: false,
		Error: errorBody{
			Code:      e.Code,
			Message:   e.Message,
			Retryable: e.Retryable,
			Details:   e.Details,
		},
	})
}
