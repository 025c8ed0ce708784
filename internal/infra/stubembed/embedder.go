// Package stubembed は外部APIを使わない決定的な埋め込みを提供する
// 単語ごとの SHA-256 から次元と符号を決める特徴ハッシュなので、語を共有するテキスト同士が近くなる
package stubembed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension は既定の次元数
const DefaultDimension = 256

// Embedder は決定的な埋め込み生成器
type Embedder struct {
	dimension int
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return "stub-sha256"
}

// Embed は単一テキストをベクトル化する
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

// BatchEmbed は複数テキストをベクトル化する
func (e *Embedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	v := make([]float64, e.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if len(words) == 0 {
		words = []string{text}
	}
	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		idx := binary.BigEndian.Uint32(sum[:4]) % uint32(e.dimension)
		if sum[4]&1 == 0 {
			v[idx]++
		} else {
			v[idx]--
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimension)
	for i, x := range v {
		if norm > 0 {
			out[i] = float32(x / norm)
		}
	}
	if norm == 0 {
		out[0] = 1
	}
	return out
}
