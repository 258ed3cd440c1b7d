package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

var (
	embedAspect  string
	embedNoCache bool
)

var embedCmd = &cobra.Command{
	Use:   "embed <text>",
	Short: "Embed text for one aspect and print the vector",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		eng, err := openEngine(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		emb, err := eng.GenerateEmbedding(ctx, strings.Join(args, " "), types.Aspect(embedAspect), !embedNoCache)
		if err != nil {
			return err
		}
		fmt.Printf("provider=%s model=%s dimension=%d\n", emb.Provider, emb.Model, emb.Dimension)
		return printJSON(emb.Vector)
	},
}

func init() {
	embedCmd.Flags().StringVarP(&embedAspect, "aspect", "a", string(types.AspectSkills), "aspect the text describes")
	embedCmd.Flags().BoolVar(&embedNoCache, "no-cache", false, "bypass the embedding cache")
}
