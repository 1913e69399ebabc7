package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cdabench/internal/config"
	"github.com/ppiankov/cdabench/internal/systemd"
)

var (
	initForce    bool
	initSystemd  string
	initSchedule string
	initUser     string
)

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().StringVar(&initSystemd, "systemd", "", "Also write cdabench.service and cdabench.timer into this directory")
	initCmd.Flags().StringVar(&initSchedule, "schedule", "hourly", "systemd OnCalendar expression for the timer")
	initCmd.Flags().StringVar(&initUser, "user", "", "User the service runs as")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an annotated sample configuration",
	Long: `Writes a commented cdabench.yaml (or the --config path) listing every
option with its default. Edit the targets section, then run:
  cdabench list
  cdabench run

With --systemd DIR a oneshot service and a timer running the benchmark on
--schedule are written too, e.g. into /etc/systemd/system.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	wrote, err := writeIfMissing(configPath, config.Sample())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintf(out, "Created %s\n", configPath)
	} else {
		fmt.Fprintf(out, "%s already exists (use --force to overwrite).\n", configPath)
	}

	if initSystemd != "" {
		if err := writeUnits(out); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next:")
	fmt.Fprintln(out, "  cdabench list    # show the scenarios each target will run")
	fmt.Fprintln(out, "  cdabench run     # run the benchmark")
	if initSystemd != "" {
		fmt.Fprintln(out, "  sudo systemctl daemon-reload && sudo systemctl enable --now cdabench.timer")
	}
	return nil
}

func writeUnits(out io.Writer) error {
	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate cdabench binary: %w", err)
	}
	cfgAbs, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", configPath, err)
	}
	units, err := systemd.Units(systemd.Options{
		Binary:   bin,
		Config:   cfgAbs,
		Schedule: initSchedule,
		User:     initUser,
	})
	if err != nil {
		return err
	}
	for _, name := range []string{systemd.Name + ".service", systemd.Name + ".timer"} {
		path := filepath.Join(initSystemd, name)
		wrote, err := writeIfMissing(path, []byte(units[name]))
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(out, "Created %s\n", path)
		} else {
			fmt.Fprintf(out, "%s already exists (use --force to overwrite).\n", path)
		}
	}
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path string, content []byte) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
