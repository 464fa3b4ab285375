package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devflow/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the external CLIs used by operations are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			missing := 0
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg.Network)) {
				kind := statusOK
				message := fmt.Sprintf("%s (%s)", status.Detail, status.Description)
				if !status.Available {
					kind = statusError
					if status.Optional {
						kind = statusWarn
					} else {
						missing++
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}
			if missing > 0 {
				return fmt.Errorf("%d required command(s) missing", missing)
			}
			return nil
		},
	}
}
