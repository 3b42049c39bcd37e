package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Download the inspection report (xlsx)",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringP("output", "o", "", "output file (default QC_<workspace>_<form>_<type>.xlsx)")
}

func runReport(cmd *cobra.Command, args []string) error {
	scope, err := scopeFromFlags()
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = fmt.Sprintf("QC_%s_%s_%s.xlsx", scope.WorkspaceID, scope.FormID, scope.InspectionType)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	n, err := newClient().DownloadReport(GetContext(), scope, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return fmt.Errorf("failed to download report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, n)
	return nil
}
