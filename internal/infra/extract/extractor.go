package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"

	"github.com/jinford/kb-copilot/internal/core/kb"
)

const (
	MimeMarkdown = "text/markdown"
	MimePlain    = "text/plain"
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DefaultMaxFileSize はアップロードを受け付ける最大サイズ
const DefaultMaxFileSize = 10 << 20

// Option は Extractor のオプション
type Option func(*Extractor)

// WithMaxFileSize は受け付ける最大サイズを設定する
func WithMaxFileSize(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

// Extractor はアップロードされたファイルからプレーンテキストを取り出す
// 拡張子で形式を決め、未知の拡張子はバイナリでなければテキストとして扱う
type Extractor struct {
	maxFileSize int
}

// NewExtractor は新しい Extractor を作成する
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ kb.Extractor = (*Extractor)(nil)

// Extract はテキストと MIME タイプを返す
func (e *Extractor) Extract(filename string, data []byte) (string, string, error) {
	if len(data) > e.maxFileSize {
		return "", "", fmt.Errorf("%w: %s exceeds %d bytes", kb.ErrUnsupportedFile, filename, e.maxFileSize)
	}

	var (
		text string
		mime string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		text, err = PDFText(data)
		mime = MimePDF
	case ".docx":
		text, err = DOCXText(data)
		mime = MimeDOCX
	case ".md", ".markdown":
		text, err = MarkdownText(data)
		mime = MimeMarkdown
	default:
		if enry.IsBinary(data) || !utf8.Valid(data) {
			return "", "", fmt.Errorf("%w: %s", kb.ErrUnsupportedFile, filename)
		}
		text = string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
		mime = MimePlain
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", kb.ErrUnsupportedFile, filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("%w: %s", kb.ErrEmptyContent, filename)
	}
	return text, mime, nil
}
