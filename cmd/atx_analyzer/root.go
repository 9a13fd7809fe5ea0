package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

func newRootCmd(fs afero.Fs) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "atx_analyzer",
		Short: "ATX power supply rail voltage analyzer",
		Long: `Analyze captured ATX power supply rail voltages: peaks and edges per rail,
per-stage statistics between power sequencing markers, ON regulation, T2 ramp-up
curve fits and the PG_OK delay.

Examples:
  atx_analyzer analyze capture.csv results/unit17.xml --markers markers.bin
  atx_analyzer analyze capture.csv unit17.xml --format full --tar-dir raw/
  atx_analyzer convert datastream.bin`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output, echoes the analysis log")

	newApp := func(cmd *cobra.Command) *App {
		return NewApp(fs, cmd.OutOrStdout(), cmd.ErrOrStderr(), verbose)
	}
	rootCmd.AddCommand(newAnalyzeCmd(fs, newApp), newConvertCmd(newApp))
	return rootCmd
}
