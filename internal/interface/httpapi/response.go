package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/idempotency"
	"github.com/jinford/kb-copilot/internal/core/kb"
	"github.com/jinford/kb-copilot/internal/core/routing"
	"github.com/jinford/kb-copilot/internal/core/trace"
)

const conflictMessage = "Idempotency-Key already used for a different request"

type errorBody struct {
	Error string `json:"error"`
}

// FieldError は検証エラーの1項目
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationBody struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details"`
}

type conflictBody struct {
	Error          string `json:"error"`
	IdempotencyKey string `json:"idempotency_key"`
}

type runErrorBody struct {
	RunID       uuid.UUID            `json:"run_id"`
	Error       string               `json:"error"`
	Kind        ask.RunErrorKind     `json:"kind"`
	Diagnostics *routing.Diagnostics `json:"diagnostics,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, details ...FieldError) {
	writeJSON(w, http.StatusBadRequest, validationBody{Error: "validation_error", Details: details})
}

// writeError はドメインのエラーを HTTP 応答に変換する
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *ask.ValidationError
		conflictErr   *idempotency.ConflictError
		runErr        *ask.RunError
	)

	switch {
	case errors.As(err, &validationErr):
		writeValidation(w, FieldError{Field: validationErr.Field, Message: validationErr.Message})
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, conflictBody{Error: conflictMessage, IdempotencyKey: conflictErr.Key})
	case errors.Is(err, idempotency.ErrInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: "idempotency_in_progress"})
	case errors.As(err, &runErr):
		status := http.StatusInternalServerError
		if runErr.Kind == ask.RunErrorUnknownAnswerMode {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, runErrorBody{
			RunID:       runErr.RunID,
			Error:       runErr.Message,
			Kind:        runErr.Kind,
			Diagnostics: runErr.Diagnostics,
		})
	case errors.Is(err, kb.ErrEmptyContent):
		writeValidation(w, FieldError{Field: "content", Message: "content is required"})
	case errors.Is(err, kb.ErrUnsupportedFile):
		writeValidation(w, FieldError{Field: "file", Message: err.Error()})
	case errors.Is(err, kb.ErrDocumentNotFound), errors.Is(err, trace.ErrRunNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	default:
		s.logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// pathID はパスの {id} を UUID として取り出す
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeValidation(w, FieldError{Field: "id", Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit は ?limit= を読み取る。未指定は 0
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 500 {
		writeValidation(w, FieldError{Field: "limit", Message: "must be an integer between 1 and 500"})
		return 0, false
	}
	return n, true
}
