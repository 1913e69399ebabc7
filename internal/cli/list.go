package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cdabench/internal/catalog"
	"github.com/ppiankov/cdabench/internal/scenario"
	"github.com/ppiankov/cdabench/internal/target"
)

var (
	listTargets   []string
	listScenarios []string
	listFormat    string
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringSliceVarP(&listTargets, "target", "t", nil, "Only list the named target, repeatable")
	listCmd.Flags().StringSliceVarP(&listScenarios, "scenario", "s", nil, "Scenario ID glob, repeatable")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "text", "Output format (text|json)")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the scenarios each target would run",
	Long:  "Resolves every configured target's capability class and lists the\ncompatible scenarios in execution order. Nothing is contacted.",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := selectTargets(cfg, listTargets); err != nil {
		return err
	}
	targets, err := target.ResolveAll(cmdContext(cmd), nil, cfg.Targets)
	if err != nil {
		return err
	}

	patterns := cfg.Scenarios
	if len(listScenarios) > 0 {
		patterns = listScenarios
	}
	reg, err := catalog.Default().Filter(patterns...)
	if err != nil {
		return err
	}

	plan := scenario.Plan(reg, targets)
	out := cmd.OutOrStdout()
	switch listFormat {
	case "json":
		s, err := scenario.FormatJSON(plan)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, scenario.FormatText(plan))
	}
	return nil
}
