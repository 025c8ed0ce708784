package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"
)

const uploadTextSchema = `{
  "type": "object",
  "properties": {
    "title":   {"type": "string", "maxLength": 255},
    "content": {"type": "string"},
    "text":    {"type": "string"}
  }
}`

const askSchema = `{
  "type": "object",
  "required": ["question"],
  "properties": {
    "question":    {"type": "string", "minLength": 1},
    "mode":        {"type": "string", "enum": ["answer", "document", "automation"]},
    "retriever":   {"type": "string", "enum": ["auto", "vector", "keyword", "hybrid"]},
    "top_k":       {"type": "integer", "minimum": 1, "maximum": 50},
    "document_id": {"type": ["string", "null"], "format": "uuid"},
    "answer_mode": {"type": "string"}
  }
}`

var (
	uploadTextValidator = mustSchema(uploadTextSchema)
	askValidator        = mustSchema(askSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid json schema: %v", err))
	}
	return schema
}

// decodeValidated はボディを読み、スキーマで検証してから v にデコードする
// 検証に失敗した場合は 400 を書き込み false を返す
func decodeValidated(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeValidation(w, FieldError{Field: "body", Message: "request body is too large or unreadable"})
		return false
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeValidation(w, FieldError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return false
	}
	if !result.Valid() {
		details := make([]FieldError, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, FieldError{Field: desc.Field(), Message: desc.Description()})
		}
		writeValidation(w, details...)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		writeValidation(w, FieldError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}
