package builder

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var errUnsafePath = errors.New("archive entry escapes the destination")

func checkArchiveName(name string) error {
	for _, ext := range []string{".tgz", ".tar.gz", ".zip"} {
		if strings.HasSuffix(name, ext) {
			return nil
		}
	}
	return fmt.Errorf("unsupported archive %q", name)
}

// extractArchive unpacks the archive at src into dst; name decides the format
func extractArchive(name, src, dst string) error {
	if strings.HasSuffix(name, ".zip") {
		return extractZip(src, dst)
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTarGz(f, dst)
}

// safeJoin joins an archive entry name to dst, refusing names that would land outside it
func safeJoin(dst, name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(name, "./"))
	if rel == "" || rel == "." {
		return dst, nil
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}
	return filepath.Join(dst, rel), nil
}

func extractTarGz(r io.Reader, dst string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// relative links only, resolved from the link's own directory
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(filepath.Join(filepath.Dir(strings.TrimPrefix(hdr.Name, "./")), hdr.Linkname)) {
				return fmt.Errorf("%w: %s -> %s", errUnsafePath, hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := safeJoin(dst, hdr.Linkname)
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return err
			}
		}
	}
}

func extractZip(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		perm := f.Mode().Perm()
		if perm == 0 {
			perm = 0644
		}
		err = writeFile(target, rc, perm)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// writeFile replaces target with the contents of r
func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
