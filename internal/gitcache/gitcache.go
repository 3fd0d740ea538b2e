// Package gitcache keeps shallow checkouts of upstream repositories under the
// user cache directory
package gitcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/qobs-build/icupack/internal/msg"
)

// Repo is a cached checkout
type Repo struct {
	URL    string
	Branch string
	// on windows: %LocalAppData%/icupack/git/<hash>
	// on linux: ~/.cache/icupack/git/<hash>
	basePath string
}

// DefaultBase returns the directory holding every cached checkout
func DefaultBase() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "icupack", "git"), nil
}

// New returns the cache entry of url under base. An empty branch uses the
// remote's default branch.
func New(base, url, branch string) *Repo {
	sum := sha256.Sum256([]byte(url + "@" + branch))
	return &Repo{
		URL:      url,
		Branch:   branch,
		basePath: filepath.Join(base, hex.EncodeToString(sum[:8])),
	}
}

// ParseURL splits url@branch
func ParseURL(raw string) (url, branch string) {
	// scp-like urls (git@host:repo) carry an @ before the host
	if i := strings.LastIndex(raw, "@"); i > strings.LastIndex(raw, "/") {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

func (r *Repo) Path() string { return r.basePath }

// Sync clones the repository on first use and pulls it afterwards
func (r *Repo) Sync() error {
	if err := os.MkdirAll(r.basePath, 0755); err != nil {
		return err
	}

	var ref plumbing.ReferenceName
	if r.Branch != "" {
		ref = plumbing.NewBranchReferenceName(r.Branch)
	}
	progress := &msg.IndentWriter{Indent: "    ", W: msg.Output()}

	if _, err := os.Stat(filepath.Join(r.basePath, ".git")); os.IsNotExist(err) {
		msg.Step("Fetching", "%s", r.URL)
		_, err := git.PlainClone(r.basePath, &git.CloneOptions{
			URL:           r.URL,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         1,
			Progress:      progress,
		})
		if err != nil {
			// leave no half-written checkout behind, the next run would try to pull it
			os.RemoveAll(r.basePath)
			return fmt.Errorf("clone %s: %w", r.URL, err)
		}
		return nil
	}

	repo, err := git.PlainOpen(r.basePath)
	if err != nil {
		return err
	}
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	msg.Step("Updating", "%s", r.URL)
	err = w.Pull(&git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: ref,
		SingleBranch:  true,
		Depth:         1,
		Progress:      progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", r.URL, err)
	}
	return nil
}

// CopyFile copies name from the checkout to dst, replacing dst
func (r *Repo) CopyFile(name, dst string) error {
	src, err := os.Open(filepath.Join(r.basePath, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm()|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
