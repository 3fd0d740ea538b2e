package builder

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ArchiveFilename is the default name of the package tarball
const ArchiveFilename = "conan_package.tgz"

// Archive writes the package folder as a gzipped tarball to dst. Entry
// names are relative to the package folder and use forward slashes.
func (b *Builder) Archive(dst string) error {
	return writeTarGz(b.folders.Package, dst)
}

func writeTarGz(root, dst string) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	absDst, _ := filepath.Abs(dst)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return err
		}
		if abs, _ := filepath.Abs(p); abs == absDst {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
