package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/dirstore/internal/backup"
)

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		output string
		baseDN string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a subtree as LDIF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer s.Close()

			if baseDN == "" {
				baseDN = cfg.Storage.Suffix
			}
			if baseDN == "" {
				return fmt.Errorf("--base-dn is required when no suffix is configured")
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := backup.NewExporter(s).Export(w, baseDN)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&baseDN, "base-dn", "", "Base DN to export (default the suffix)")
	return cmd
}

func newImportCmd(g *globalFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Add the entries of an LDIF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			s, _, logger, err := g.openStore()
			if err != nil {
				return err
			}
			defer logger.Sync()

			n, err := backup.NewImporter(s).Import(r)
			closeErr := s.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries\n", n)
			if err != nil {
				return err
			}
			return closeErr
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input file (default stdin)")
	return cmd
}
