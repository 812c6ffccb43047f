package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/relpack/relpack/internal/hashio"
)

// Cache is a directory of blobs keyed by blobstore id. The final and dev
// tiers of an artifact each own a separate Cache, colocated with their
// version index.
type Cache struct {
	Dir string
}

// DigestError reports a blob whose content does not match the checksum it
// was requested under.
type DigestError struct {
	ID   string
	Want string
	Got  string
}

func (e *DigestError) Error() string {
	return fmt.Sprintf("blob %s: checksum mismatch: want %s, got %s", e.ID, e.Want, e.Got)
}

// Lookup returns the path of the cached blob for id, if present.
func (c Cache) Lookup(id string) (string, bool) {
	path := filepath.Join(c.Dir, id)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Store streams r into the cache under id. When wantSHA1 is non-empty the
// content is verified before the blob becomes visible; a blob failing
// verification is discarded and a DigestError returned. Concurrent stores
// of the same id are last-writer-wins, which is safe since content per id
// is immutable.
func (c Cache) Store(id string, r io.Reader, wantSHA1 string) (string, error) {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(c.Dir, id+".download-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	if wantSHA1 != "" {
		sum, err := hashio.SHA1(tmp.Name())
		if err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
		if sum != wantSHA1 {
			os.Remove(tmp.Name())
			return "", &DigestError{ID: id, Want: wantSHA1, Got: sum}
		}
	}

	path := filepath.Join(c.Dir, id)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}
