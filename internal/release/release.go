// Package release assembles a release manifest and its resolved artifacts
// into a single distributable archive.
package release

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"

	"github.com/relpack/relpack/internal/archive/tar"
	"github.com/relpack/relpack/internal/manifest"
	"github.com/relpack/relpack/internal/msg"
)

const (
	kindPackage = "package"
	kindJob     = "job"

	manifestFileName = "release.MF"
	archiveExt       = ".tgz"
)

const (
	statusCopied  = "copied"
	statusSkipped = "skipped"
)

// Locator resolves one manifest artifact to a local file.
type Locator interface {
	Resolve(kind, name, version, sha1 string) (string, error)
}

// Config carries the inputs of one release build.
type Config struct {
	// ManifestPath points at the release manifest. The default archive
	// location is derived from its directory.
	ManifestPath string

	// OutputPath overrides the target archive path when non-empty.
	OutputPath string

	// RemoteHas lists checksums (sha1 or fingerprint) of artifacts the
	// destination already possesses. Packages matching any of them are
	// skipped instead of resolved.
	RemoteHas []string
}

// ArchiveError reports a failed archiving step together with the underlying
// diagnostic.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("creating release archive: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

type result struct {
	kind    string
	name    string
	version string
	status  string
}

// Compiler builds the release archive. The staging directory is created
// eagerly by NewCompiler; Compile removes it once the archive is written,
// and abandons it when a build fails partway. Callers that never reach
// Compile should call Close.
type Compiler struct {
	manifest     manifest.Manifest
	manifestPath string
	outputPath   string
	stagingDir   string
	locator      Locator
	remoteHas    map[string]struct{}
	results      []result
}

// NewCompiler loads and validates the manifest and prepares the staging
// directory with its packages/ and jobs/ subdirectories.
func NewCompiler(cfg Config, locator Locator) (*Compiler, error) {
	m, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	stagingDir, err := os.MkdirTemp("", "relpack-staging-")
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{"packages", "jobs"} {
		if err := os.Mkdir(filepath.Join(stagingDir, sub), 0755); err != nil {
			os.RemoveAll(stagingDir)
			return nil, err
		}
	}

	remoteHas := make(map[string]struct{}, len(cfg.RemoteHas))
	for _, sum := range cfg.RemoteHas {
		remoteHas[sum] = struct{}{}
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(
			filepath.Dir(cfg.ManifestPath),
			fmt.Sprintf("%s-%s%s", m.Name, m.Version, archiveExt),
		)
	}

	return &Compiler{
		manifest:     m,
		manifestPath: cfg.ManifestPath,
		outputPath:   outputPath,
		stagingDir:   stagingDir,
		locator:      locator,
		remoteHas:    remoteHas,
	}, nil
}

// Exists reports whether the target archive is already present. The check
// is re-evaluated on every call.
func (c *Compiler) Exists() bool {
	_, err := os.Stat(c.outputPath)
	return err == nil
}

// Close removes the staging directory.
func (c *Compiler) Close() error {
	return os.RemoveAll(c.stagingDir)
}

// Compile builds the release archive and returns its path. When the archive
// already exists the build is a no-op success reporting the existing path.
// Any other outcome than a fully written archive is an error; a partially
// populated staging directory is left behind in that case.
func (c *Compiler) Compile() (string, error) {
	if c.Exists() {
		color.HiYellow(msg.ArchiveExists, c.outputPath)
		c.Close()
		return c.outputPath, nil
	}

	if err := copyFile(c.manifestPath, filepath.Join(c.stagingDir, manifestFileName)); err != nil {
		return "", err
	}

	for _, pkg := range c.manifest.Packages {
		if c.remotePackageExists(pkg) {
			log.Info().Msgf("Package %s (%s): SKIP, destination already has it", pkg.Name, pkg.Version)
			c.track(kindPackage, pkg, statusSkipped)
			continue
		}
		if err := c.stage(kindPackage, pkg, "packages"); err != nil {
			return "", err
		}
	}

	for _, job := range c.manifest.Jobs {
		if c.remoteJobExists(job) {
			log.Info().Msgf("Job %s (%s): SKIP, destination already has it", job.Name, job.Version)
			c.track(kindJob, job, statusSkipped)
			continue
		}
		if err := c.stage(kindJob, job, "jobs"); err != nil {
			return "", err
		}
	}

	if err := tar.Archive(c.stagingDir, c.outputPath); err != nil {
		return "", &ArchiveError{Err: err}
	}

	info, err := os.Stat(c.outputPath)
	if err != nil {
		return "", err
	}

	c.Close()
	c.renderSummary(os.Stdout)
	color.HiGreen(msg.ReleaseBuilt, c.outputPath, info.Size())
	return c.outputPath, nil
}

func (c *Compiler) stage(kind string, a manifest.Artifact, subDir string) error {
	log.Info().Msgf("%s %s (%s): copying", titleKind(kind), a.Name, a.Version)

	src, err := c.locator.Resolve(kind, a.Name, a.Version, a.SHA1)
	if err != nil {
		return err
	}
	if err := copyFile(src, filepath.Join(c.stagingDir, subDir, a.Name+archiveExt)); err != nil {
		return err
	}
	c.track(kind, a, statusCopied)
	return nil
}

// remotePackageExists reports whether the destination already has the
// package: by sha1 first, then by fingerprint when one is declared.
func (c *Compiler) remotePackageExists(a manifest.Artifact) bool {
	if _, ok := c.remoteHas[a.SHA1]; ok {
		return true
	}
	if a.Fingerprint == "" {
		return false
	}
	_, ok := c.remoteHas[a.Fingerprint]
	return ok
}

// remoteJobExists is the job-side counterpart of remotePackageExists. Jobs
// are currently never skipped, regardless of what the destination reports.
func (c *Compiler) remoteJobExists(manifest.Artifact) bool {
	return false
}

func (c *Compiler) track(kind string, a manifest.Artifact, status string) {
	c.results = append(c.results, result{kind: kind, name: a.Name, version: a.Version, status: status})
}

func (c *Compiler) renderSummary(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Name", "Version", "Status"})
	for _, r := range c.results {
		t.AppendRow(table.Row{r.kind, r.name, r.version, r.status})
	}
	t.Render()
}

func titleKind(kind string) string {
	if kind == kindJob {
		return "Job"
	}
	return "Package"
}

// copyFile copies src to dst, carrying over the file mode and modification
// time of the source.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
