package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cdabench/internal/config"
	"github.com/ppiankov/cdabench/internal/history"
)

var (
	historyLimit  int
	historyFormat string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.PersistentFlags().StringVarP(&historyFormat, "format", "f", "text", "Output format (text|json)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of recent runs to list (0 for all)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded benchmark runs",
	Long:  "Reads the run history database named by history_db in the config.",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run with its per-suite rollup",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.HistoryDB == "" {
		return nil, fmt.Errorf("%s sets no history_db", configPath)
	}
	return history.Open(cmdContext(cmd), config.ExpandPath(cfg.HistoryDB))
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmdContext(cmd), historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		s, err := history.FormatJSON(runs)
		if err != nil {
			return err
		}
		fmt.Fprint(out, s)
		return nil
	}
	fmt.Fprint(out, history.FormatList(runs))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(cmdContext(cmd), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		s, err := history.FormatJSON(run)
		if err != nil {
			return err
		}
		fmt.Fprint(out, s)
		return nil
	}
	fmt.Fprint(out, history.FormatRun(run))
	return nil
}
