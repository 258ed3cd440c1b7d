package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/devmatch-mcp/internal/indexer"
)

var ingestWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest <dataset.json>",
	Short: "Load skills, skill edges, developers, projects and collaborations from a JSON dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		eng, err := openEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		stats, err := indexer.New(eng, zlog).IngestFile(ctx, args[0], &indexer.Config{Workers: ingestWorkers})
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "concurrent profile writers (default: number of CPUs)")
}
