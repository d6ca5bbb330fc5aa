package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/communitysite/internal/backup"
)

func newBackupCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore all site content",
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup of every content table",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(verbose)
			if err != nil {
				return err
			}
			defer e.close()

			doc, err := e.backups.Export(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				if out == "." {
					out = backup.FileName(time.Now())
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			if err := backup.Encode(w, doc); err != nil {
				return err
			}
			if out != "" {
				for name, n := range doc.Rows() {
					fmt.Fprintf(cmd.ErrOrStderr(), "%-12s %d rows\n", name, n)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Backup written to %s\n", out)
			}
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&out, "output", "o", "", `output file ("." for a timestamped name, default stdout)`)

	var dryRun bool
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Restore a backup, overwriting rows with the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			doc, err := backup.Decode(f)
			if err != nil {
				return err
			}

			e, err := openEnv(verbose)
			if err != nil {
				return err
			}
			defer e.close()

			if dryRun {
				if err := e.backups.Check(doc); err != nil {
					return err
				}
				for name, n := range doc.Rows() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d rows (not written)\n", name, n)
				}
				return nil
			}
			written, err := e.backups.Import(cmd.Context(), doc)
			for name, n := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d rows\n", name, n)
			}
			return err
		},
	}
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log store calls")
	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}
