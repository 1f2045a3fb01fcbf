package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/plan"
)

type convertOutput struct {
	Read    []string `json:"read"`
	Write   string   `json:"write"`
	Path    string   `json:"path,omitempty"`
	Bytes   int64    `json:"bytes"`
	Entries []string `json:"entries,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

func newConvertCommand() *cobra.Command {
	var (
		rf       readFlags
		wf       writeFlags
		separate bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "convert PATH|URL...",
		Short: "Read sources and write them in another format",
		Long: `Read one or more sources with a read node and write the result with a
write node.

By default the sources are combined into one table using --combine.
With --separate every source becomes its own table, named after its file,
so several tables land in one workbook or one zip archive.`,
		Example: `  tableio convert --to parquet sales.csv
  tableio convert --to xlsx --separate --name quarterly q1.csv q2.csv q3.csv
  tableio convert --combine rbind --to csv --out merged jan.xlsx feb.xlsx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			svc, err := serviceFrom(cmd)
			if err != nil {
				return err
			}
			target, err := wf.target()
			if err != nil {
				return err
			}

			var (
				tables plan.TableSet
				out    convertOutput
			)
			groups := [][]string{args}
			if separate {
				groups = make([][]string, len(args))
				for i, a := range args {
					groups[i] = []string{a}
				}
			}

			used := make(map[string]bool, len(groups))
			for _, g := range groups {
				state, err := rf.state(g)
				if err != nil {
					return err
				}
				res, err := svc.ReadNode(cmd.Context(), state)
				if err != nil {
					return err
				}
				out.Read = append(out.Read, res.Plan.String())
				if res.Warning != "" {
					out.Warning = res.Warning
				}
				if res.Table == nil {
					continue
				}
				name := strconv.Itoa(len(tables) + 1)
				if separate {
					name = uniqueName(tableName(g[0]), used)
				}
				tables = append(tables, plan.NamedTable{Name: name, Table: res.Table})
			}

			res, err := svc.WriteNode(cmd.Context(), core.WriteState{Target: target}, tables)
			if err != nil {
				return err
			}
			out.Write = res.Plan.String()
			out.Path, out.Bytes, out.Entries = res.Path, res.Bytes, res.Entries

			if output == outputJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			return printConvert(cmd, out)
		},
	}
	rf.register(cmd)
	wf.register(cmd)
	cmd.Flags().BoolVar(&separate, "separate", false, "write each source as its own table")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}

func printConvert(cmd *cobra.Command, out convertOutput) error {
	w := cmd.OutOrStdout()
	if out.Warning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", out.Warning)
	}
	if out.Path == "" {
		_, err := fmt.Fprintln(w, "nothing to write")
		return err
	}
	fmt.Fprintf(w, "wrote %s (%d bytes)\n", out.Path, out.Bytes)
	for _, e := range out.Entries {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}

// tableName derives a table name from a path or URL: the base name without
// its extension.
func tableName(location string) string {
	base := location
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(base) == "" {
		return "table"
	}
	return base
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = name + "_" + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}
