package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/archdoc/internal/jsonutil"
	"github.com/ashita-ai/archdoc/internal/normalize"
)

func newNormalizeCmd() *cobra.Command {
	var showProbe bool
	cmd := &cobra.Command{
		Use:   "normalize [response-file]",
		Short: "Turn a saved agent response into the canonical design",
		Long: `Normalize a raw design agent response the way the server does and print
the canonical design as JSON. Reads stdin when no file is given.

Probes, in precedence order: ` + fmt.Sprint(normalize.ProbeNames()),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			res, err := normalize.Normalize(data)
			if err != nil {
				return err
			}
			if showProbe {
				fmt.Fprintf(cmd.ErrOrStderr(), "probe: %s\n", res.Probe)
			}
			out, err := jsonutil.MarshalNoEscape(res.Design, "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&showProbe, "probe", false, "report the probe that located the design on stderr")
	return cmd
}
