package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetectCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "detect PATH|URL...",
		Short: "Classify files by extension",
		Long: `Report the format category of each path or URL and whether a reader
handles it. Files are not opened.`,
		Example: `  tableio detect sales.csv report.xlsx
  tableio detect --output json https://example.com/data.parquet`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			svc, err := serviceFrom(cmd)
			if err != nil {
				return err
			}

			detections := svc.Detect(args...)
			if output == outputJSON {
				return printJSON(cmd.OutOrStdout(), detections)
			}

			tw := newTable(cmd.OutOrStdout(), "SOURCE", "EXTENSION", "CATEGORY", "SUPPORTED")
			for _, d := range detections {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.Source, d.Extension, d.Category, d.Supported)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}
