package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/devmatch-mcp/internal/engine"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

var (
	matchLimit    int
	matchAnalysis bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank stored developers or projects",
}

var matchDevelopersCmd = &cobra.Command{
	Use:   "developers <project.json>",
	Short: "Rank stored developers for the project in the given file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var project types.Project
		if err := readJSONFile(args[0], &project); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		eng, err := openEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		resp, err := eng.FindMatchingDevelopers(ctx, &project, matchLimit, matchAnalysis)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var matchProjectsCmd = &cobra.Command{
	Use:   "projects <developer.json>",
	Short: "Rank stored projects for the developer in the given file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var dev types.Developer
		if err := readJSONFile(args[0], &dev); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		eng, err := openEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		resp, err := eng.FindMatchingProjects(ctx, &dev, matchLimit, matchAnalysis)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	for _, c := range []*cobra.Command{matchDevelopersCmd, matchProjectsCmd} {
		c.Flags().IntVarP(&matchLimit, "limit", "n", engine.DefaultMatchLimit, "maximum number of results (1-100)")
		c.Flags().BoolVar(&matchAnalysis, "analysis", true, "attach missing skills, learning time and confidence")
	}
	matchCmd.AddCommand(matchDevelopersCmd, matchProjectsCmd)
}

func readJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
