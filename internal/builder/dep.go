package builder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/qobs-build/icupack/internal/gitcache"
	"github.com/qobs-build/icupack/internal/msg"
)

var depShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
	"sv:": "https://git.savannah.gnu.org/git/",
}

const (
	gitPrefix = "git:"
	// filePlaceholder is replaced by the script name in http sources
	filePlaceholder = "{file}"
)

// GitSource resolves a git:<url> source or a shortcut like sv:config.git to
// the repository url
func GitSource(src string) (string, bool) {
	// check for `git:` prefix, e.g. git:https://git.savannah.gnu.org/git/config.git
	if strings.HasPrefix(src, gitPrefix) {
		return src[len(gitPrefix):], true
	}
	// check for shortcut prefix, e.g. sv:config.git
	for shortcut, base := range depShortcuts {
		if strings.HasPrefix(src, shortcut) {
			return base + src[len(shortcut):], true
		}
	}
	return "", false
}

func isURL(maybeURL string) bool {
	u, err := url.Parse(maybeURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Source downloads and extracts the source and data archives into the work
// folder, swaps in the full data directory and refreshes the autoconf
// helper scripts
func (b *Builder) Source(ctx context.Context) error {
	work := b.folders.Work
	dataDir := filepath.Join(work, "data")
	for _, stale := range []string{b.rootDir(), dataDir} {
		if err := os.RemoveAll(stale); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(work, 0755); err != nil {
		return err
	}

	if err := b.downloadAndExtractArchive(ctx, b.cfg.Source.URL, work); err != nil {
		return fmt.Errorf("source archive: %w", err)
	}
	if !isDir(b.sourceDir()) {
		return fmt.Errorf("source archive has no %s/source directory", b.cfg.Package.Name)
	}

	if b.cfg.Source.DataURL != "" {
		if err := b.downloadAndExtractArchive(ctx, b.cfg.Source.DataURL, work); err != nil {
			return fmt.Errorf("data archive: %w", err)
		}
		target := filepath.Join(b.sourceDir(), "data")
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(dataDir, target); err != nil {
			return fmt.Errorf("data archive: %w", err)
		}
	}

	if b.cfg.Source.ConfigScripts == "" {
		return nil
	}
	return b.fetchConfigScripts(ctx, b.cfg.Source.ConfigScripts, b.cfg.Source.ConfigFiles, b.sourceDir())
}

// fetchConfigScripts replaces files in dst with the versions from src, which
// is a git repository (git:<url> or a shortcut like sv:config.git), an http
// url template containing {file}, or a local directory
func (b *Builder) fetchConfigScripts(ctx context.Context, src string, files []string, dst string) error {
	if src == "" {
		return errIllegalSource
	}

	if repo, ok := GitSource(src); ok {
		return b.copyFromGit(repo, files, dst)
	}

	if isURL(src) {
		for _, name := range files {
			u := strings.ReplaceAll(src, filePlaceholder, url.QueryEscape(name))
			if err := b.downloadFile(ctx, u, filepath.Join(dst, name), 0755); err != nil {
				return err
			}
		}
		return nil
	}

	// otherwise it's a path
	for _, name := range files {
		if err := copyFile(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) copyFromGit(raw string, files []string, dst string) error {
	base := b.GitBase
	if base == "" {
		var err error
		if base, err = gitcache.DefaultBase(); err != nil {
			return err
		}
	}
	repoURL, branch := gitcache.ParseURL(raw)
	repo := gitcache.New(base, repoURL, branch)
	if err := repo.Sync(); err != nil {
		return err
	}
	for _, name := range files {
		if err := repo.CopyFile(name, filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

// download writes the body of url to w, drawing a progress bar
func (b *Builder) download(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	msg.Step("Fetching", "%s", rawURL)
	bar := msg.NewDownloadBar(resp.ContentLength)
	if _, err := io.Copy(w, io.TeeReader(resp.Body, bar)); err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	bar.Finish()
	return nil
}

// downloadFile downloads url to dst. dst is only replaced once the whole
// body has arrived.
func (b *Builder) downloadFile(ctx context.Context, rawURL, dst string, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := b.download(ctx, rawURL, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// archiveName returns the file name of the archive behind rawURL
func archiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

func (b *Builder) downloadAndExtractArchive(ctx context.Context, rawURL, toWhere string) error {
	if !isURL(rawURL) {
		return fmt.Errorf("%w: %q", errIllegalSource, rawURL)
	}
	name := archiveName(rawURL)
	if err := checkArchiveName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(toWhere, ".archive-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = b.download(ctx, rawURL, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	msg.Step("Extracting", "%s", name)
	return extractArchive(name, tmp.Name(), toWhere)
}
