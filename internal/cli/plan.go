package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the call a node would evaluate",
		Long: `Build read and write plans without evaluating them. Remote sources
are downloaded so that their local paths appear in the plan.`,
	}
	cmd.AddCommand(newPlanReadCommand())
	cmd.AddCommand(newPlanWriteCommand())
	return cmd
}

type planOutput struct {
	Plan any    `json:"plan"`
	Call string `json:"call"`
}

func printPlan(cmd *cobra.Command, output string, p fmt.Stringer) error {
	if output == outputJSON {
		return printJSON(cmd.OutOrStdout(), planOutput{Plan: p, Call: p.String()})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), p.String())
	return err
}

func newPlanReadCommand() *cobra.Command {
	var (
		rf     readFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "read PATH|URL...",
		Short: "Show the read plan for one or more sources",
		Example: `  tableio plan read data.csv
  tableio plan read --delim tab --skip 2 a.txt b.txt --combine rbind`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			svc, err := serviceFrom(cmd)
			if err != nil {
				return err
			}
			state, err := rf.state(args)
			if err != nil {
				return err
			}
			p, err := svc.PlanRead(cmd.Context(), state)
			if err != nil {
				return err
			}
			return printPlan(cmd, output, p)
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}

func newPlanWriteCommand() *cobra.Command {
	var (
		wf     writeFlags
		tables []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Show the write plan for a set of named tables",
		Long: `Show the write plan for the tables named by --table. Each --table adds
one input table; with none the plan is empty.`,
		Example: `  tableio plan write --to xlsx --name report --table sales --table returns
  tableio plan write --to csv --out exports --table orders`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			set := make(plan.TableSet, len(tables))
			for i, name := range tables {
				set[i] = plan.NamedTable{Name: name, Table: table.MustNew()}
			}
			p, err := svc.PlanWrite(core.WriteState{Target: target}, set)
			if err != nil {
				return err
			}
			return printPlan(cmd, output, p)
		},
	}
	wf.register(cmd)
	cmd.Flags().StringArrayVar(&tables, "table", nil, "name of an input table (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}
