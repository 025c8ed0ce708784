package kb

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize はチャンクの最大文字数
	DefaultChunkSize = 3500
	// DefaultChunkOverlap は隣接チャンクの重なり文字数
	DefaultChunkOverlap = 300
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Piece は分割されたチャンク本文とオフセット
type Piece struct {
	Index int
	Text  string
	Meta  ChunkMeta
}

// Chunker は段落・行・文・単語の順に区切りを試す再帰的な文字分割を行う
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker は新しい Chunker を作成する
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
	}
}

// Normalize は改行コードを LF に揃え、3行以上の空行を2行に畳む
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(content, "\n\n"))
}

// Split は本文を分割する。オフセットは正規化後の本文に対する文字位置
func (c *Chunker) Split(content string) ([]Piece, error) {
	text := Normalize(content)
	if text == "" {
		return nil, ErrEmptyContent
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	pieces := make([]Piece, 0, len(parts))
	cursor := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start := cursor
		if idx := strings.Index(text[cursor:], part); idx >= 0 {
			start = cursor + idx
		}
		end := start + len(part)
		if end > len(text) {
			end = len(text)
		}
		pieces = append(pieces, Piece{
			Index: len(pieces),
			Text:  part,
			Meta: ChunkMeta{
				Start: utf8.RuneCountInString(text[:start]),
				End:   utf8.RuneCountInString(text[:end]),
			},
		})
		// 次のチャンクは重なり部分から始まるので、開始位置の直後から探す
		cursor = start + 1
		for cursor < len(text) && !utf8.RuneStart(text[cursor]) {
			cursor++
		}
	}
	return pieces, nil
}
