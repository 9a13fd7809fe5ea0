package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/atx_analyzer_go/internal/parser"
)

func newConvertCmd(newApp func(*cobra.Command) *App) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <raw.bin>...",
		Short: "Convert capture board data streams to CSV",
		Long: `Convert raw capture board streams (frames of four big-endian uint16 millivolt
samples) into rail CSV files with columns ` + strings.Join(parser.DefaultHeaders[1:], ",") + `.
Each <name>.bin is written to <name>.csv.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := newApp(cmd).RunConvert(args)
			return err
		},
	}
}

func defaultColumns() string {
	return strings.Join(parser.DefaultHeaders, ",")
}
