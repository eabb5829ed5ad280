package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/export"
	"github.com/scriptify-labs/worker-cli/internal/model"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's result as a spreadsheet or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := loadResult(ctx, st, run.ID)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = run.ID + "." + exportFormat
		}

		switch run.JobType {
		case "marketplace_scrape":
			var result model.ScrapeResult
			if err := json.Unmarshal(data, &result); err != nil {
				return eris.Wrap(err, "parse scrape result")
			}
			switch exportFormat {
			case "xlsx":
				err = export.ScrapeXLSX(&result, out)
			case "csv":
				err = export.ScrapeCSV(&result, out)
			default:
				return eris.Errorf("unsupported format %q", exportFormat)
			}
		case "product_analyze":
			var result model.AnalyzeResult
			if err := json.Unmarshal(data, &result); err != nil {
				return eris.Wrap(err, "parse analysis result")
			}
			if exportFormat != "xlsx" {
				return eris.Errorf("analysis results only export as xlsx, not %q", exportFormat)
			}
			err = export.AnalysisXLSX(&result, out)
		default:
			return eris.Errorf("job type %q has no export", run.JobType)
		}
		if err != nil {
			return err
		}

		zap.L().Info("result exported",
			zap.String("run_id", run.ID),
			zap.String("path", out))
		fmt.Fprintln(os.Stdout, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "output format (xlsx, csv)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <run-id>.<format>)")
	rootCmd.AddCommand(exportCmd)
}
