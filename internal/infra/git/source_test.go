package git

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func commitFile(t *testing.T, dir, name, content string) {
	t.Helper()
	repo, err := gogit.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("update "+name, &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestIsDocumentFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"README.md", true},
		{"docs/guide.rst", true},
		{"notes/todo.txt", true},
		{"manual.adoc", true},
		{"main.go", false},
		{"vendor/lib/README.md", false},
		{"node_modules/pkg/README.md", false},
		{"image.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDocumentFile(tt.path))
		})
	}
}

func TestIgnoreFilter(t *testing.T) {
	f := NewIgnoreFilter([]byte("# comment\nsecret/\n"), []byte("drafts/*.md\r\n"))

	assert.True(t, f.ShouldIgnore("secret/plan.md"))
	assert.True(t, f.ShouldIgnore("drafts/wip.md"))
	assert.True(t, f.ShouldIgnore("node_modules/x/README.md"))
	assert.True(t, f.ShouldIgnore(".env"))
	assert.False(t, f.ShouldIgnore("docs/guide.md"))

	var nilFilter *IgnoreFilter
	assert.False(t, nilFilter.ShouldIgnore("anything"))
}

func TestSource_CollectsDocumentFiles(t *testing.T) {
	dir := initRepo(t, map[string]string{
		"README.md":        "# Project\n\nThe unique token is UNICORN_42.",
		"docs/setup.txt":   "Install the tool.",
		"docs/empty.md":    "   \n",
		"drafts/wip.md":    "not ready",
		"main.go":          "package main",
		".kbignore":        "drafts/\n",
		"assets/data.txt":  "\x00\x01\x02binary",
		"vendor/x/NOTE.md": "vendored",
	})
	repo, err := gogit.PlainOpen(dir)
	require.NoError(t, err)
	snap, err := OpenSnapshot(repo, "HEAD")
	require.NoError(t, err)

	src := NewSource(NewClient("", ""), t.TempDir(), "main", slog.New(slog.NewTextHandler(io.Discard, nil)))
	fetched, err := src.collect(context.Background(), snap)
	require.NoError(t, err)

	paths := make(map[string]string)
	for _, f := range fetched.Files {
		paths[f.Path] = f.Content
	}
	assert.Len(t, paths, 2)
	assert.Contains(t, paths["README.md"], "UNICORN_42")
	assert.Equal(t, "Install the tool.", paths["docs/setup.txt"])
	assert.Equal(t, 6, fetched.Skipped)
	assert.Len(t, fetched.Revision, 40)
}

func TestOpenSnapshot_UnknownRef(t *testing.T) {
	dir := initRepo(t, map[string]string{"README.md": "hello"})
	repo, err := gogit.PlainOpen(dir)
	require.NoError(t, err)

	_, err = OpenSnapshot(repo, "no-such-branch")
	assert.Error(t, err)
}

func TestClient_SyncMirrorsRepository(t *testing.T) {
	upstream := initRepo(t, map[string]string{"README.md": "first"})
	mirror := filepath.Join(t.TempDir(), "mirror")
	client := NewClient("", "")
	ctx := context.Background()

	repo, err := client.Sync(ctx, upstream, mirror)
	require.NoError(t, err)
	first, err := OpenSnapshot(repo, "HEAD")
	require.NoError(t, err)
	data, ok, err := first.ReadFile("README.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(data))

	_, ok, err = first.ReadFile("missing.md")
	require.NoError(t, err)
	assert.False(t, ok)

	// 上流の更新は2回目の Sync で取り込まれる
	commitFile(t, upstream, "README.md", "second")
	repo, err = client.Sync(ctx, upstream, mirror)
	require.NoError(t, err)
	second, err := OpenSnapshot(repo, "master")
	require.NoError(t, err)
	assert.NotEqual(t, first.Revision, second.Revision)
	data, _, err = second.ReadFile("README.md")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSourceName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"git@github.com:user/repo.git", "github.com/user/repo"},
		{"https://github.com/user/repo.git", "github.com/user/repo"},
		{"ssh://git@gitlab.example.com/team/docs", "gitlab.example.com/team/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := SourceName(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
