package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/relpack/relpack/internal/cmd/build"
	"github.com/relpack/relpack/internal/version"
)

var (
	cmdUse   = "relpack [OPTIONS] COMMAND [ARG...]"
	cmdShort = "relpack"
	cmdLong  = `relpack packages a release - a named, versioned bundle of jobs and
packages - into a single distributable archive, reusing locally cached
artifacts and skipping those the destination already has.`
)

func main() {
	cmd := &cobra.Command{
		Use:              cmdUse,
		Short:            cmdShort,
		Long:             cmdLong,
		SilenceUsage:     true,
		TraverseChildren: true,
		Version:          fmt.Sprintf("%s\n(build %s)", version.Version, version.GitCommit),
	}

	cmd.SetVersionTemplate("relpack version {{.Version}}\n")
	cmd.Flags().BoolP("version", "v", false, "print version")

	verbosity := cmd.PersistentFlags().Bool("verbose", false, "turn on verbose logging")
	noColor := cmd.PersistentFlags().Bool("no-color", false, "disable colorized output")

	cmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		setupLogging(*verbosity, *noColor)
	}

	cmd.AddCommand(
		build.Command(),
	)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool, noColor bool) {
	color.NoColor = noColor
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.DurationFieldInteger = true
	timeFormat := "15:04:05"
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		zerolog.TimeFieldFormat = time.RFC3339Nano
		timeFormat = "15:04:05.000"
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().In(time.Local)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat, NoColor: noColor})
}
