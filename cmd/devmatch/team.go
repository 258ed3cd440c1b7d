package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/devmatch-mcp/internal/engine"
)

var (
	teamSize    int
	teamExclude []string
)

var teamCmd = &cobra.Command{
	Use:   "team <skill> [skill...]",
	Short: "Assemble a team of stored developers covering the given skills",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		eng, err := openEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		composition, err := eng.FindOptimalTeam(ctx, args, teamSize, teamExclude)
		if err != nil {
			return err
		}
		return printJSON(composition)
	},
}

func init() {
	teamCmd.Flags().IntVarP(&teamSize, "size", "s", engine.DefaultTeamSize, "maximum team size")
	teamCmd.Flags().StringSliceVar(&teamExclude, "exclude", nil, "developer ids that must not be selected")
}
