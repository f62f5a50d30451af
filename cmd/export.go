package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a day's attendance report as xlsx",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("tenant", "", "Tenant (school) identifier (required)")
	exportCmd.Flags().String("date", "", "Report date as YYYY-MM-DD (defaults to today)")
	exportCmd.Flags().String("out", "", "Output file (defaults to attendance-<tenant>-<date>.xlsx)")

	exportCmd.MarkFlagRequired("tenant")
}

func runExport(cmd *cobra.Command, args []string) error {
	tenant := mustGetString(cmd, "tenant")

	date := time.Now()
	if dateFlag := mustGetString(cmd, "date"); dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", dateFlag)
		if err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		date = parsed
	}

	p, err := buildPipeline(zap.NewNop())
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.repo.Daily(context.Background(), tenant, date)
	if err != nil {
		return fmt.Errorf("building day report: %w", err)
	}

	out := mustGetString(cmd, "out")
	if out == "" {
		out = fmt.Sprintf("attendance-%s-%s.xlsx", tenant, date.Format("2006-01-02"))
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer f.Close()

	if err := report.WriteDailyXLSX(result, f); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	fmt.Printf("Wrote %d records to %s\n", len(result.Rows), out)
	return nil
}
