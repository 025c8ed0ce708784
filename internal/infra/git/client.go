package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	giturls "github.com/whilp/git-urls"
)

// ミラーに取り込む参照。ブランチとタグをそのままの名前で保持する
var mirrorRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
}

// Client は知識ソースとなるリポジトリのベアミラーを管理する
type Client struct {
	sshKeyPath  string
	sshPassword string
}

// NewClient は新しい Client を作成する
func NewClient(sshKeyPath, sshPassword string) *Client {
	return &Client{
		sshKeyPath:  sshKeyPath,
		sshPassword: sshPassword,
	}
}

// SourceName は Git URL をホスト名付きのソース名に変換する
// 例: git@github.com:user/repo.git -> github.com/user/repo
func SourceName(gitURL string) (string, error) {
	u, err := giturls.Parse(gitURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse git URL: %w", err)
	}

	host := u.Hostname()
	if host == "" {
		host = u.Host
	}
	p := strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	if host == "" {
		return p, nil
	}
	return host + "/" + p, nil
}

// Sync は dir のミラーを最新化する。ミラーがなければベアリポジトリとしてクローンする
func (c *Client) Sync(ctx context.Context, url, dir string) (*git.Repository, error) {
	auth, err := c.auth()
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create mirror directory: %w", err)
		}
		repo, err = git.PlainCloneContext(ctx, dir, true, &git.CloneOptions{
			URL:  url,
			Auth: auth,
			Tags: git.AllTags,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clone repository: %w", err)
		}
		return repo, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   mirrorRefSpecs,
		Auth:       auth,
		Tags:       git.AllTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	return repo, nil
}

// auth は SSH 鍵が設定されていれば認証情報を返す
func (c *Client) auth() (transport.AuthMethod, error) {
	if c.sshKeyPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(c.sshKeyPath); os.IsNotExist(err) {
		return nil, nil
	}

	keys, err := ssh.NewPublicKeysFromFile("git", c.sshKeyPath, c.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return keys, nil
}

// Snapshot はあるコミット時点のツリー
type Snapshot struct {
	Revision string
	tree     *object.Tree
}

// OpenSnapshot は ref（ブランチ、タグ、コミットハッシュ、HEAD）をコミットに解決してツリーを開く
func OpenSnapshot(repo *git.Repository, ref string) (*Snapshot, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ref %q: %w", ref, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	return &Snapshot{Revision: hash.String(), tree: tree}, nil
}

// ReadFile はツリー上のファイルを読む。存在しなければ ok=false
func (s *Snapshot) ReadFile(path string) (data []byte, ok bool, err error) {
	f, err := s.tree.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	data, err = readBlob(f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Walk はツリー上の全ファイルについて fn を呼ぶ。read を呼んだときだけ内容を読み出す
func (s *Snapshot) Walk(ctx context.Context, fn func(path string, size int64, read func() ([]byte, error)) error) error {
	err := s.tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(f.Name, f.Size, func() ([]byte, error) { return readBlob(f) })
	})
	if err != nil {
		return fmt.Errorf("failed to walk tree: %w", err)
	}
	return nil
}

func readBlob(f *object.File) ([]byte, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", f.Name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
