package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-copilot/internal/core/ask"
	"github.com/jinford/kb-copilot/internal/core/kb"
)

// IdempotencyHeader は冪等キーのヘッダー
const IdempotencyHeader = "Idempotency-Key"

type uploadTextRequest struct {
	Title   string  `json:"title"`
	Content *string `json:"content"`
	Text    *string `json:"text"`
}

// body は content を優先し、空なら旧形式の text を使う
func (req uploadTextRequest) body() string {
	if req.Content != nil && strings.TrimSpace(*req.Content) != "" {
		return *req.Content
	}
	if req.Text != nil {
		return *req.Text
	}
	return ""
}

type askRequest struct {
	Question   string  `json:"question"`
	Mode       string  `json:"mode"`
	Retriever  string  `json:"retriever"`
	TopK       int     `json:"top_k"`
	DocumentID *string `json:"document_id"`
	AnswerMode string  `json:"answer_mode"`
}

func uploadStatus(res *kb.UploadResult) int {
	if res.IdempotentReplay {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (s *Server) handleUploadText(w http.ResponseWriter, r *http.Request) {
	var req uploadTextRequest
	if !decodeValidated(w, r, uploadTextValidator, &req) {
		return
	}
	content := req.body()
	if strings.TrimSpace(content) == "" {
		writeValidation(w, FieldError{Field: "content", Message: "content is required"})
		return
	}

	res, err := s.documents.UploadText(r.Context(), kb.UploadParams{
		WorkspaceID:    s.workspace(r),
		ActorID:        actorFromContext(r.Context()),
		Title:          req.Title,
		Content:        content,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, uploadStatus(res), res)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeValidation(w, FieldError{Field: "file", Message: "multipart form with a file is required"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, FieldError{Field: "file", Message: "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeValidation(w, FieldError{Field: "file", Message: "failed to read file"})
		return
	}

	res, err := s.documents.UploadFile(r.Context(), kb.UploadFileParams{
		WorkspaceID:    s.workspace(r),
		ActorID:        actorFromContext(r.Context()),
		Title:          r.FormValue("title"),
		Filename:       header.Filename,
		Data:           data,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, uploadStatus(res), res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	docs, err := s.documents.ListDocuments(r.Context(), s.workspace(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.documents.GetDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if doc.WorkspaceID != s.workspace(r) {
		s.writeError(w, r, kb.ErrDocumentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeValidated(w, r, askValidator, &req) {
		return
	}

	documentID := mo.None[uuid.UUID]()
	if req.DocumentID != nil {
		id, err := uuid.Parse(*req.DocumentID)
		if err != nil {
			writeValidation(w, FieldError{Field: "document_id", Message: "must be a UUID"})
			return
		}
		documentID = mo.Some(id)
	}

	res, err := s.asker.Ask(r.Context(), ask.AskParams{
		WorkspaceID:    s.workspace(r),
		ActorID:        actorFromContext(r.Context()),
		Question:       req.Question,
		Mode:           req.Mode,
		Retriever:      req.Retriever,
		TopK:           req.TopK,
		DocumentID:     documentID,
		AnswerMode:     req.AnswerMode,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	runs, err := s.traces.ListRuns(r.Context(), s.workspace(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	run, err := s.traces.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	steps, err := s.traces.ListSteps(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}
