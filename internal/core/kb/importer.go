package kb

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
)

// SourceFile は外部ソースから取り出したテキストファイル
type SourceFile struct {
	Path    string
	Content string
}

// FetchedSource は外部ソースの取得結果
type FetchedSource struct {
	Name     string // 例: github.com/user/repo
	Revision string // 例: コミットハッシュ
	Files    []SourceFile
	Skipped  int
}

// SourceFetcher は Git などの外部ソースからテキストファイルを取得する
type SourceFetcher interface {
	Fetch(ctx context.Context, url, ref string) (*FetchedSource, error)
}

// ImportParams は取り込みのパラメータ
type ImportParams struct {
	WorkspaceID uuid.UUID
	ActorID     string
	URL         string
	Ref         string
}

// ImportResult は取り込みの結果
type ImportResult struct {
	SourceName  string      `json:"source_name"`
	Revision    string      `json:"revision"`
	Imported    int         `json:"imported"`
	Unchanged   int         `json:"unchanged"`
	Skipped     int         `json:"skipped"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

// Importer は外部ソースのファイルを文書として登録する
type Importer struct {
	fetcher   SourceFetcher
	documents *DocumentService
	logger    *slog.Logger
}

// NewImporter は新しい Importer を作成する
func NewImporter(fetcher SourceFetcher, documents *DocumentService, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{fetcher: fetcher, documents: documents, logger: logger}
}

// Import はソースを取得し、ファイルごとに文書を登録する
// 冪等キーにファイルの内容ハッシュを含めるため、変更のないファイルは再登録されない
func (i *Importer) Import(ctx context.Context, params ImportParams) (*ImportResult, error) {
	src, err := i.fetcher.Fetch(ctx, params.URL, params.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}

	result := &ImportResult{
		SourceName:  src.Name,
		Revision:    src.Revision,
		Skipped:     src.Skipped,
		DocumentIDs: []uuid.UUID{},
	}

	for _, f := range src.Files {
		res, err := i.documents.UploadText(ctx, UploadParams{
			WorkspaceID:    params.WorkspaceID,
			ActorID:        params.ActorID,
			Title:          path.Join(path.Base(src.Name), f.Path),
			Content:        f.Content,
			Filename:       f.Path,
			MimeType:       "text/plain",
			Source:         "git:" + src.Name,
			IdempotencyKey: importKey(src.Name, f),
		})
		if err != nil {
			i.logger.Warn("skipping file", "source", src.Name, "path", f.Path, "error", err)
			result.Skipped++
			continue
		}
		if res.IdempotentReplay {
			result.Unchanged++
			continue
		}
		result.Imported++
		result.DocumentIDs = append(result.DocumentIDs, res.DocumentID)
	}

	i.logger.Info("source imported",
		"source", src.Name,
		"revision", src.Revision,
		"imported", result.Imported,
		"unchanged", result.Unchanged,
		"skipped", result.Skipped,
	)
	return result, nil
}

func importKey(sourceName string, f SourceFile) string {
	return "git-" + ContentHash(sourceName+"\x00"+f.Path+"\x00"+f.Content)
}
