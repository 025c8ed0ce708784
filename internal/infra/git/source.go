package git

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"github.com/jinford/kb-copilot/internal/core/kb"
)

// MaxFileSize は取り込むファイルの最大バイト数
const MaxFileSize = 1 << 20

// textExtensions は文書として取り込む拡張子
var textExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".txt":      {},
	".rst":      {},
	".adoc":     {},
}

// Source は Git リポジトリを文書の取得元とする kb.SourceFetcher 実装
type Source struct {
	client        *Client
	mirrorDir     string
	defaultBranch string
	logger        *slog.Logger
}

// NewSource は新しい Source を作成する。ミラーは mirrorDir/<host>/<path> に置く
func NewSource(client *Client, mirrorDir, defaultBranch string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client:        client,
		mirrorDir:     mirrorDir,
		defaultBranch: defaultBranch,
		logger:        logger,
	}
}

// Fetch はミラーを最新化し、ref 時点の文書ファイルを返す
func (s *Source) Fetch(ctx context.Context, url, ref string) (*kb.FetchedSource, error) {
	if ref == "" {
		ref = s.defaultBranch
	}

	name, err := SourceName(url)
	if err != nil {
		return nil, err
	}

	repo, err := s.client.Sync(ctx, url, filepath.Join(s.mirrorDir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to sync repository: %w", err)
	}
	snap, err := OpenSnapshot(repo, ref)
	if err != nil {
		return nil, err
	}

	fetched, err := s.collect(ctx, snap)
	if err != nil {
		return nil, err
	}
	fetched.Name = name

	s.logger.Info("git source fetched",
		"source", fetched.Name,
		"ref", ref,
		"revision", fetched.Revision,
		"files", len(fetched.Files),
		"skipped", fetched.Skipped,
	)
	return fetched, nil
}

// collect はスナップショットの除外設定に従って文書ファイルを集める
func (s *Source) collect(ctx context.Context, snap *Snapshot) (*kb.FetchedSource, error) {
	var ignoreFiles [][]byte
	for _, name := range []string{".gitignore", IgnoreFileName} {
		data, ok, err := snap.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if ok {
			ignoreFiles = append(ignoreFiles, data)
		}
	}
	ignore := NewIgnoreFilter(ignoreFiles...)

	fetched := &kb.FetchedSource{Revision: snap.Revision, Files: []kb.SourceFile{}}
	err := snap.Walk(ctx, func(p string, size int64, read func() ([]byte, error)) error {
		if ignore.ShouldIgnore(p) || !IsDocumentFile(p) || size > MaxFileSize {
			fetched.Skipped++
			return nil
		}

		content, err := read()
		if err != nil {
			s.logger.Warn("failed to read file, skipping", "path", p, "error", err)
			fetched.Skipped++
			return nil
		}
		if enry.IsBinary(content) || strings.TrimSpace(string(content)) == "" {
			fetched.Skipped++
			return nil
		}

		fetched.Files = append(fetched.Files, kb.SourceFile{Path: p, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return fetched, nil
}

// IsDocumentFile はパスが取り込み対象の文書かを判定する
// ベンダー配下と設定ファイルは除外し、文書用の拡張子か go-enry が文書と判定したものを対象とする
func IsDocumentFile(p string) bool {
	if enry.IsVendor(p) || enry.IsDotFile(p) || enry.IsConfiguration(p) {
		return false
	}
	if _, ok := textExtensions[strings.ToLower(path.Ext(p))]; ok {
		return true
	}
	return enry.IsDocumentation(p) && path.Ext(p) == ""
}

// インターフェース実装の確認
var _ kb.SourceFetcher = (*Source)(nil)
