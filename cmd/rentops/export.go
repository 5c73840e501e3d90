package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the board and open leads as an XLSX workbook",
	Long:  "Writes the kanban board and every open lead to an XLSX workbook without running the server. Use --out - to write to stdout.",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "rentops-board.xlsx", "Output file path, or - for stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if exportOut == "-" {
		return a.reports.Write(ctx, cmd.OutOrStdout())
	}

	if err := writeFileAtomic(exportOut, func(w io.Writer) error {
		return a.reports.Write(ctx, w)
	}); err != nil {
		return fmt.Errorf("export board: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Board exported to %s\n", exportOut)
	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place, so a failed export never leaves a partial file.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rentops-export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}
