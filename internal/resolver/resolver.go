// Package resolver locates a concrete local file for a manifest artifact.
// Resolution is by content checksum, not by declared version, so a
// renumbered build with identical content is still found.
package resolver

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/relpack/relpack/internal/blobstore"
	"github.com/relpack/relpack/internal/index"
	"github.com/relpack/relpack/internal/progress"
)

// Artifact kinds understood by the resolver.
const (
	KindPackage = "package"
	KindJob     = "job"
)

// Tier directories inside the release source root. Final is searched
// first: a released build is never shadowed by a development build with
// identical content.
const (
	finalBuilds = ".final_builds"
	devBuilds   = ".dev_builds"
)

// NotFoundError means no index record on any tier matches the requested
// checksum. This is fatal for the whole build; there is nothing to retry.
type NotFoundError struct {
	Kind string
	Name string
	SHA1 string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: no build with checksum %s in final or dev index", e.Kind, e.Name, e.SHA1)
}

// ChecksumError means the fetched blob does not match the checksum it was
// requested under.
type ChecksumError struct {
	Kind string
	Name string
	SHA1 string
	Err  error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *ChecksumError) Unwrap() error { return e.Err }

// StoreError wraps a blobstore failure with the artifact being resolved.
type StoreError struct {
	Kind string
	Name string
	ID   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: fetching blob %s: %v", e.Kind, e.Name, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Resolver resolves artifact descriptors against a release source tree and
// a remote blobstore.
type Resolver struct {
	ReleaseDir string
	Store      blobstore.Client
}

// Resolve returns a local file whose content matches sha1sum for the named
// artifact. The final tier's index is scanned before the dev tier's; on a
// match, the winning tier's local cache is consulted before falling back to
// a remote fetch. Fetched content is verified and cached before the path is
// returned.
func (r Resolver) Resolve(kind, name, version, sha1sum string) (string, error) {
	for _, tier := range []string{finalBuilds, devBuilds} {
		dir := filepath.Join(r.ReleaseDir, tier, kind+"s", name)
		idx, err := index.Load(dir)
		if err != nil {
			return "", err
		}
		rec, ok := idx.FindBySHA1(sha1sum)
		if !ok {
			continue
		}
		log.Debug().Msgf("Resolved %s %s (%s) to %s build %s", kind, name, version, tier, rec.Version)
		return r.materialize(kind, name, dir, rec)
	}
	return "", &NotFoundError{Kind: kind, Name: name, SHA1: sha1sum}
}

func (r Resolver) materialize(kind, name, dir string, rec index.Record) (string, error) {
	cache := blobstore.Cache{Dir: dir}
	if path, ok := cache.Lookup(rec.BlobstoreID); ok {
		log.Debug().Msgf("Using cached blob %s for %s %s", rec.BlobstoreID, kind, name)
		return path, nil
	}

	defer progress.Stop()
	progress.Show("Fetching %s %s (blob %s)", kind, name, rec.BlobstoreID)

	body, _, err := r.Store.Fetch(rec.BlobstoreID)
	if err != nil {
		return "", &StoreError{Kind: kind, Name: name, ID: rec.BlobstoreID, Err: err}
	}
	defer body.Close()

	path, err := cache.Store(rec.BlobstoreID, body, rec.SHA1)
	var digestErr *blobstore.DigestError
	if errors.As(err, &digestErr) {
		return "", &ChecksumError{Kind: kind, Name: name, SHA1: rec.SHA1, Err: err}
	}
	if err != nil {
		return "", &StoreError{Kind: kind, Name: name, ID: rec.BlobstoreID, Err: err}
	}
	return path, nil
}
