package build

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/relpack/relpack/internal/blobstore"
	"github.com/relpack/relpack/internal/msg"
	"github.com/relpack/relpack/internal/release"
	"github.com/relpack/relpack/internal/resolver"
)

var (
	buildUse   = "build"
	buildShort = "Build a release archive from a manifest"
	buildLong  = `Resolves every package and job named by the release manifest against the
release source tree (and the blobstore, for builds not cached locally) and
bundles them into a single .tgz archive. Packages whose checksum the
destination already holds are skipped.`

	// blobstore request timeout
	blobstoreTimeout = 300 * time.Second
)

// gFlags contains all flags that are set when 'build' is invoked.
var gFlags = buildFlags{}

type buildFlags struct {
	manifestPath  string
	releaseDir    string
	outputPath    string
	remotes       []string
	remotesFile   string
	blobstoreURL  string
	blobstoreUser string
	blobstoreKey  string
}

// Command creates the `build` command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:          buildUse,
		Short:        buildShort,
		Long:         buildLong,
		SilenceUsage: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if gFlags.manifestPath == "" {
				return errors.New(msg.MissingManifest)
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return Run()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&gFlags.manifestPath, "manifest", "m", "", "path to the release manifest")
	f.StringVarP(&gFlags.releaseDir, "release-dir", "d", ".", "release source root containing .final_builds and .dev_builds")
	f.StringVarP(&gFlags.outputPath, "output", "o", "", "target archive path (default <manifest dir>/<name>-<version>.tgz)")
	f.StringSliceVar(&gFlags.remotes, "remote", nil, "checksum of an artifact the destination already has (repeatable)")
	f.StringVar(&gFlags.remotesFile, "remotes-file", "", "file listing destination-held checksums, one per line")
	f.StringVar(&gFlags.blobstoreURL, "blobstore-url", "", "base URL of the blobstore")
	f.StringVar(&gFlags.blobstoreUser, "blobstore-user", "", "blobstore username")
	f.StringVar(&gFlags.blobstoreKey, "blobstore-key", "", "blobstore access key (default $RELPACK_BLOBSTORE_KEY)")
	f.DurationVar(&blobstoreTimeout, "timeout", blobstoreTimeout, "blobstore request timeout")

	return cmd
}

// Run assembles the compiler from the flag set and builds the archive.
func Run() error {
	if gFlags.blobstoreKey == "" {
		gFlags.blobstoreKey = os.Getenv("RELPACK_BLOBSTORE_KEY")
	}

	remoteHas, err := collectRemotes(gFlags.remotes, gFlags.remotesFile)
	if err != nil {
		return err
	}

	loc := resolver.Resolver{
		ReleaseDir: gFlags.releaseDir,
		Store:      blobstore.New(gFlags.blobstoreURL, gFlags.blobstoreUser, gFlags.blobstoreKey, blobstoreTimeout),
	}

	compiler, err := release.NewCompiler(release.Config{
		ManifestPath: gFlags.manifestPath,
		OutputPath:   gFlags.outputPath,
		RemoteHas:    remoteHas,
	}, loc)
	if err != nil {
		return err
	}

	if _, err := compiler.Compile(); err != nil {
		log.Error().Err(err).Msg("release build failed")
		return err
	}
	return nil
}

// collectRemotes merges the --remote flags with the contents of the
// --remotes-file. Blank lines and #-comments in the file are ignored.
func collectRemotes(remotes []string, file string) ([]string, error) {
	if file == "" {
		return remotes, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all := append([]string{}, remotes...)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		all = append(all, line)
	}
	return all, scanner.Err()
}
