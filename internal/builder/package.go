package builder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/icupack/internal/msg"
)

// Package copies the install tree into the package folder. Every layout
// directory is recreated, so running it twice gives the same result.
func (b *Builder) Package() error {
	out := b.outputDir()
	if !isDir(out) {
		return fmt.Errorf("nothing installed in %s, run the build stages first", out)
	}

	binDir, libDir := b.params.BinDir(), b.params.LibDir()
	layout := map[string]string{
		"bin":     binDir,
		"include": "include",
		"lib":     libDir,
		"share":   "share",
	}
	for _, dir := range []string{"bin", "bin64", "include", "lib", "lib64", "share"} {
		if err := os.RemoveAll(filepath.Join(b.folders.Package, dir)); err != nil {
			return err
		}
	}

	for _, src := range []string{"bin", "include", "lib", "share"} {
		if !isDir(filepath.Join(out, src)) {
			continue
		}
		dst := filepath.Join(b.folders.Package, layout[src])
		n, err := copyTree(filepath.Join(out, src), dst, "**")
		if err != nil {
			return err
		}
		msg.Step("Packaged", "%d files into %s", n, layout[src])
	}

	if b.params.IsWindows() {
		return moveDLLs(filepath.Join(out, "lib"), filepath.Join(b.folders.Package, binDir), filepath.Join(b.folders.Package, libDir))
	}
	return nil
}

// moveDLLs puts every dll found under srcLib directly into binDir and
// removes the top-level ones from libDir
func moveDLLs(srcLib, binDir, libDir string) error {
	if !isDir(srcLib) {
		return nil
	}
	var dlls []string
	err := doublestar.GlobWalk(os.DirFS(srcLib), "**/*.dll", func(p string, d fs.DirEntry) error {
		dlls = append(dlls, p)
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil {
		return err
	}
	for _, dll := range dlls {
		if err := copyFile(filepath.Join(srcLib, filepath.FromSlash(dll)), filepath.Join(binDir, path.Base(dll))); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(libDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".dll") {
			if err := os.Remove(filepath.Join(libDir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyTree copies the files of src matching pattern into dst, keeping the
// directory structure and symlinks. Existing files are overwritten.
func copyTree(src, dst, pattern string) (int, error) {
	n := 0
	err := doublestar.GlobWalk(os.DirFS(src), pattern, func(p string, d fs.DirEntry) error {
		from := filepath.Join(src, filepath.FromSlash(p))
		to := filepath.Join(dst, filepath.FromSlash(p))
		if d.Type()&fs.ModeSymlink != 0 {
			if err := copySymlink(from, to); err != nil {
				return err
			}
		} else if err := copyFile(from, to); err != nil {
			return err
		}
		n++
		return nil
	}, doublestar.WithFilesOnly(), doublestar.WithNoFollow())
	return n, err
}

func copySymlink(from, to string) error {
	target, err := os.Readlink(from)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Symlink(target, to)
}

// copyFile copies a regular file, replacing dst
func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return err
	}
	return writeFile(to, src, fi.Mode().Perm())
}
