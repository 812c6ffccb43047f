package release

import (
	archTar "archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotest.tools/v3/fs"
)

// fakeLocator serves artifact files from memory and records resolutions.
type fakeLocator struct {
	dir      string
	contents map[string]string // "<kind>/<name>" -> file content
	resolved []string
	err      error
}

func (f *fakeLocator) Resolve(kind, name, version, sha1 string) (string, error) {
	f.resolved = append(f.resolved, kind+"/"+name)
	if f.err != nil {
		return "", f.err
	}
	content, ok := f.contents[kind+"/"+name]
	if !ok {
		return "", fmt.Errorf("unexpected resolve of %s %s", kind, name)
	}
	path := filepath.Join(f.dir, kind+"-"+name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

const demoManifest = `---
name: demo
version: "1"
packages:
- name: p1
  version: "1"
  sha1: abc
jobs:
- name: j1
  version: "1"
  sha1: def
`

func newFakeLocator(t *testing.T) *fakeLocator {
	t.Helper()
	return &fakeLocator{
		dir: t.TempDir(),
		contents: map[string]string{
			"package/p1": "p1-bytes",
			"job/j1":     "j1-bytes",
		},
	}
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	entries := map[string]string{}
	tr := archTar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if header.FileInfo().IsDir() {
			continue
		}
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[header.Name] = string(b)
	}
	return entries
}

func TestCompile(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	loc := newFakeLocator(t)
	c, err := NewCompiler(Config{ManifestPath: dir.Join("demo.yml")}, loc)
	require.NoError(t, err)

	path, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t, dir.Join("demo-1.tgz"), path)

	entries := readArchive(t, path)
	assert.Equal(t, map[string]string{
		"release.MF":      demoManifest,
		"packages/p1.tgz": "p1-bytes",
		"jobs/j1.tgz":     "j1-bytes",
	}, entries)

	// staging dir is gone once the archive is written
	_, statErr := os.Stat(c.stagingDir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCompileIsIdempotent(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	first, err := NewCompiler(Config{ManifestPath: dir.Join("demo.yml")}, newFakeLocator(t))
	require.NoError(t, err)
	path, err := first.Compile()
	require.NoError(t, err)

	loc := newFakeLocator(t)
	second, err := NewCompiler(Config{ManifestPath: dir.Join("demo.yml")}, loc)
	require.NoError(t, err)

	again, err := second.Compile()
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Empty(t, loc.resolved, "no artifact may be resolved when the archive already exists")
}

func TestCompileSkipsRemotelyKnownPackages(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	loc := newFakeLocator(t)
	c, err := NewCompiler(Config{
		ManifestPath: dir.Join("demo.yml"),
		RemoteHas:    []string{"abc"},
	}, loc)
	require.NoError(t, err)

	path, err := c.Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"job/j1"}, loc.resolved)

	entries := readArchive(t, path)
	_, staged := entries["packages/p1.tgz"]
	assert.False(t, staged, "skipped package must not be staged")
	assert.Contains(t, entries, "jobs/j1.tgz")
}

func TestCompileSkipsByFingerprint(t *testing.T) {
	manifestText := `---
name: demo
version: "2"
packages:
- name: p1
  version: "1"
  sha1: abc
  fingerprint: fp1
jobs: []
`
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", manifestText, fs.WithMode(0644)))
	defer dir.Remove()

	loc := newFakeLocator(t)
	c, err := NewCompiler(Config{
		ManifestPath: dir.Join("demo.yml"),
		RemoteHas:    []string{"fp1"},
	}, loc)
	require.NoError(t, err)

	_, err = c.Compile()
	require.NoError(t, err)
	assert.Empty(t, loc.resolved)
}

// Jobs are copied even when the destination reports their checksum. The
// skip logic applies to packages only.
func TestCompileJobsIgnoreRemoteSet(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	loc := newFakeLocator(t)
	c, err := NewCompiler(Config{
		ManifestPath: dir.Join("demo.yml"),
		RemoteHas:    []string{"def"},
	}, loc)
	require.NoError(t, err)

	path, err := c.Compile()
	require.NoError(t, err)

	assert.Contains(t, loc.resolved, "job/j1")
	entries := readArchive(t, path)
	assert.Contains(t, entries, "jobs/j1.tgz")
}

func TestCompileFailsOnUnresolvableArtifact(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	cause := errors.New("no build with checksum abc in final or dev index")
	loc := &fakeLocator{dir: t.TempDir(), err: cause}
	c, err := NewCompiler(Config{ManifestPath: dir.Join("demo.yml")}, loc)
	require.NoError(t, err)

	_, err = c.Compile()
	assert.ErrorIs(t, err, cause)

	// no archive is produced on failure
	_, statErr := os.Stat(dir.Join("demo-1.tgz"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	// the partially populated staging dir is abandoned, not cleaned up
	_, statErr = os.Stat(c.stagingDir)
	assert.NoError(t, statErr)
}

func TestCompileCustomOutputPath(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	out := filepath.Join(t.TempDir(), "custom.tgz")
	c, err := NewCompiler(Config{ManifestPath: dir.Join("demo.yml"), OutputPath: out}, newFakeLocator(t))
	require.NoError(t, err)

	path, err := c.Compile()
	require.NoError(t, err)
	assert.Equal(t, out, path)
}

func TestNewCompilerCreatesStagingEagerly(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("demo.yml", demoManifest, fs.WithMode(0644)))
	defer dir.Remove()

	c, err := NewCompiler(Config{ManifestPath: dir.Join("demo.yml")}, newFakeLocator(t))
	require.NoError(t, err)
	defer c.Close()

	for _, sub := range []string{"packages", "jobs"} {
		info, err := os.Stat(filepath.Join(c.stagingDir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewCompilerRejectsInvalidManifest(t *testing.T) {
	dir := fs.NewDir(t, "release", fs.WithFile("bad.yml", "name: demo\n", fs.WithMode(0644)))
	defer dir.Remove()

	_, err := NewCompiler(Config{ManifestPath: dir.Join("bad.yml")}, newFakeLocator(t))
	assert.Error(t, err)
}
