package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ServiceName はすべてのログに付与するサービス名
const ServiceName = "kb-copilot"

// 出力形式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config はロガーの設定
type Config struct {
	Level  slog.Level
	Format string
	// 未指定なら標準エラー出力（CLI の標準出力を汚さない）
	Output io.Writer
}

// New はロガーを作成し、slog のデフォルトにも設定する
// Debug レベルでは呼び出し元のファイルと行を出力する
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.Level <= slog.LevelDebug,
		ReplaceAttr: shortenSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With("service", ServiceName)
	slog.SetDefault(logger)
	return logger
}

// ValidFormat は出力形式が既知かどうかを返す
func ValidFormat(format string) bool {
	return format == FormatJSON || format == FormatText
}

func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	if src, ok := a.Value.Any().(*slog.Source); ok {
		src.File = filepath.Join(filepath.Base(filepath.Dir(src.File)), filepath.Base(src.File))
	}
	return a
}
