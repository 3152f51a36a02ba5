package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// errViolations is returned by verify when index tables disagree.
var errViolations = errors.New("index verification failed")

func newRecoverCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Replay the transaction log and take a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			s, cfg, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()

			stats := s.ReplayStats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recovery completed\n")
			fmt.Fprintf(out, "  Data Dir:       %s\n", cfg.Storage.DataDir)
			fmt.Fprintf(out, "  Log:            %s\n", cfg.Storage.LogPath())
			fmt.Fprintf(out, "  Checkpoint LSN: %d\n", stats.CheckpointLSN)
			fmt.Fprintf(out, "  Records:        %d\n", stats.Records)
			fmt.Fprintf(out, "  Committed:      %d\n", stats.Committed)
			fmt.Fprintf(out, "  Aborted:        %d\n", stats.Aborted)
			fmt.Fprintf(out, "  Incomplete:     %d\n", stats.Incomplete)
			fmt.Fprintf(out, "  Index edits:    %d\n", stats.IndexEdits)
			fmt.Fprintf(out, "  Entry edits:    %d\n", stats.EntryEdits)

			if _, err := s.Checkpoint(); err != nil {
				s.Close()
				return fmt.Errorf("checkpoint: %w", err)
			}
			if err := s.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "  Duration:       %v\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the forward and reverse tables of every index agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer s.Close()

			violations, err := s.Verify(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range violations {
				fmt.Fprintln(out, v)
			}
			if len(violations) > 0 {
				return fmt.Errorf("%w: %d violations", errViolations, len(violations))
			}
			fmt.Fprintf(out, "%d indexes verified, no violations\n", len(s.Indexes()))
			return nil
		},
	}
}

func newCheckpointCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Make applied edits durable and truncate the transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()

			before := s.Log().Size()
			lsn, err := s.Checkpoint()
			if err != nil {
				s.Close()
				return err
			}
			after := s.Log().Size()
			if err := s.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint at LSN %d, log %d -> %d bytes\n", lsn, before, after)
			return nil
		},
	}
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry, index and log sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer s.Close()

			st, err := s.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries:     %d\n", st.Entries)
			fmt.Fprintf(out, "Log records: %d\n", st.LogRecords)
			fmt.Fprintf(out, "Log size:    %d\n", st.LogSize)
			fmt.Fprintf(out, "Next LSN:    %d\n", st.NextLSN)
			fmt.Fprintln(out, "Index pairs:")

			names := make([]string, 0, len(st.IndexPairs))
			for name := range st.IndexPairs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %-16s %d\n", name, st.IndexPairs[name])
			}
			return nil
		},
	}
}
