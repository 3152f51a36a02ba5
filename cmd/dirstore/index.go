package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain attribute indexes",
	}
	cmd.AddCommand(newIndexRebuildCmd(g))
	return cmd
}

func newIndexRebuildCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <attribute>",
		Short: "Recompute a configured index from the stored entries",
		Long: `Recompute a configured attribute index from the master table.

Run it after adding an index to the configuration so that entries stored
before the index existed are indexed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()

			res, err := s.RebuildIndex(args[0])
			if err != nil {
				s.Close()
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rebuilt index %s\n", res.Index)
			fmt.Fprintf(out, "  Entries: %d\n", res.Entries)
			fmt.Fprintf(out, "  Added:   %d\n", res.Added)
			fmt.Fprintf(out, "  Dropped: %d\n", res.Dropped)
			return nil
		},
	}
}
