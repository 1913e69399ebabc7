package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cdabench/internal/audit"
	"github.com/ppiankov/cdabench/internal/config"
)

var (
	auditRun    string
	auditTarget string
	auditFrom   string
	auditTo     string
	auditFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditShowCmd.Flags().StringVar(&auditRun, "run", "", "Only entries of this run ID")
	auditShowCmd.Flags().StringVar(&auditTarget, "target", "", "Only entries of this target")
	auditShowCmd.Flags().StringVar(&auditFrom, "from", "", "Start time filter (RFC3339)")
	auditShowCmd.Flags().StringVar(&auditTo, "to", "", "End time filter (RFC3339)")
	auditShowCmd.Flags().StringVarP(&auditFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Commands for verifying and inspecting the hash-chained case audit trail.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit trail",
	Long: "Walks the JSONL audit trail and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry. Defaults to the config's\n" +
		"audit_log. Exits 0 if valid, 1 if tampered.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show recorded case outcomes as a timeline",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditShow,
}

// auditPath is the positional path or the configured audit_log.
func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.AuditLog == "" {
		return "", fmt.Errorf("no audit log given and %s sets no audit_log", configPath)
	}
	return config.ExpandPath(cfg.AuditLog), nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries from %d runs verified\n", result.Lines, result.Runs)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return exitError{code: 1}
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	filter := audit.ReplayFilter{RunID: auditRun, Target: auditTarget}
	if auditFrom != "" {
		from, err := time.Parse(time.RFC3339, auditFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", auditFrom, err)
		}
		filter.From = from
	}
	if auditTo != "" {
		to, err := time.Parse(time.RFC3339, auditTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", auditTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch auditFormat {
	case "json":
		s, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, audit.FormatTimeline(result))
	}
	return nil
}
