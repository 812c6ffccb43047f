// Package tar bundles directory trees into gzip-compressed tarballs.
package tar

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
)

// Archive writes a gzip-compressed tar of the directory tree rooted at src
// to dst. Entry names are relative to src, so the archive unpacks without a
// wrapping directory. File modes and modification times are preserved via
// the tar headers.
func Archive(src, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	w := tar.NewWriter(gz)

	walker := func(file string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if file == src {
			return nil
		}

		header, err := tar.FileInfoHeader(fileInfo, file)
		if err != nil {
			return err
		}

		relFilePath, err := filepath.Rel(src, file)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relFilePath)

		if err := w.WriteHeader(header); err != nil {
			return err
		}

		if fileInfo.Mode().IsDir() {
			return nil
		}

		srcFile, err := os.Open(file)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		if _, err := io.Copy(w, srcFile); err != nil {
			return err
		}

		return nil
	}

	if err := filepath.Walk(src, walker); err != nil {
		return err
	}

	if err := w.Close(); err != nil {
		return err
	}
	return gz.Close()
}
