package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/qualify-cli/internal/workflow"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List available workflows and their stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := workflow.LoadRegistry(cfg.Workflows.Path)
		if err != nil {
			return err
		}
		return printWorkflows(cmd, reg)
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}

func printWorkflows(cmd *cobra.Command, reg *workflow.Registry) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTAGES\tDESCRIPTION")
	for _, def := range reg.List() {
		names := make([]string, 0, len(def.Stages))
		for _, s := range def.Stages {
			n := s.Name
			if !s.Required {
				n += "?"
			}
			names = append(names, n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Name, strings.Join(names, " > "), def.Description)
	}
	return tw.Flush()
}
