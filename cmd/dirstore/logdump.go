package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

func newLogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the transaction log",
	}
	cmd.AddCommand(newLogDumpCmd(g))
	return cmd
}

func newLogDumpCmd(g *globalFlags) *cobra.Command {
	var (
		from  uint64
		edits bool
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the records of the transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			defer logger.Sync()

			log, err := txlog.OpenLogReadOnly(cfg.Storage.LogPath(), logger.Named("txlog"))
			if err != nil {
				return err
			}
			defer log.Close()

			n, err := dumpLog(cmd.OutOrStdout(), log, from, edits)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d bytes\n", n, log.Size())
			return nil
		},
	}

	cmd.Flags().Uint64Var(&from, "from", 0, "First LSN to print")
	cmd.Flags().BoolVar(&edits, "edits", true, "Decode index and entry edits")
	return cmd
}

// dumpLog writes one line per record starting at from.
func dumpLog(w io.Writer, log *txlog.Log, from uint64, decode bool) (int, error) {
	it := log.Iterator(from)

	n := 0
	for it.Next() {
		record := it.Record()
		n++

		detail := fmt.Sprintf("%d bytes", len(record.Data))
		switch {
		case record.Type == txlog.RecordCheckpoint:
			cp, err := txlog.ParseCheckpointRecord(record)
			if err != nil {
				detail = err.Error()
			} else {
				detail = fmt.Sprintf("last_lsn=%d time=%s", cp.LastLSN, cp.Timestamp.UTC().Format(time.RFC3339))
			}
		case decode && record.IsEdit():
			edit, err := txlog.DecodeEdit(record)
			if err != nil {
				detail = err.Error()
			} else {
				detail = fmt.Sprint(edit)
			}
		}

		fmt.Fprintf(w, "%8d  tx=%-6d %-12s %s\n", record.LSN, record.TxID, record.Type, detail)
	}
	return n, it.Error()
}
