// Package cmd is corral's command-line interface: a spf13/cobra +
// spf13/pflag tree grounded directly on the teacher's own
// cmd.SetupCommands/proctor.cmd.SetupCLI pattern (package-level
// `var xCmd = &cobra.Command{...}` values, one setup function wiring
// them together and called once from main).
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arctir/corral/config"
	"github.com/arctir/corral/controlapi"
	"github.com/arctir/corral/supervisor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	configFlag      = "config"
	portFlag        = "port"
	apiToolNameFlag = "api-tool-name"
	linesFlag       = "lines"
)

var corralCmd = &cobra.Command{
	Use:   "corral",
	Short: "Runs and inspects a group of related local development processes.",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Loads a project file and supervises every declared tool until interrupted.",
	Run:   runRun,
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "Lists every tool known to a running corral instance.",
	Run:   runPs,
}

var logsCmd = &cobra.Command{
	Use:   "logs [tool]",
	Short: "Prints a tool's captured log lines.",
	Run:   runLogs,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reloads a running corral instance's configuration.",
	Run:   runReload,
}

func init() {
	runCmd.Flags().String(configFlag, "corral.toml", "Path to the project file to supervise.")
	runCmd.Flags().Int(portFlag, 0, "Override the project file's configured HTTP control API port.")
	runCmd.Flags().String(apiToolNameFlag, "", "Override the project file's API virtual tool name.")

	psCmd.Flags().String(configFlag, "corral.toml", "Path to the project file describing the running instance.")

	logsCmd.Flags().String(configFlag, "corral.toml", "Path to the project file describing the running instance.")
	logsCmd.Flags().IntP(linesFlag, "n", 0, "Limit output to the last N lines.")

	reloadCmd.Flags().String(configFlag, "corral.toml", "Path to the project file describing the running instance.")
}

// SetupCommands wires every subcommand onto the root corral command and
// returns it, ready for Execute. Mirrors the teacher's SetupCommands.
func SetupCommands() *cobra.Command {
	corralCmd.AddCommand(runCmd)
	corralCmd.AddCommand(psCmd)
	corralCmd.AddCommand(logsCmd)
	corralCmd.AddCommand(reloadCmd)
	return corralCmd
}

func configPathFlag(fs *pflag.FlagSet) string {
	p, _ := fs.GetString(configFlag)
	return p
}

func outputErrorAndFail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// runRun implements `corral run`: loads the project file, boots the
// ProcessManager and Control API, starts every declared tool honoring
// dependencies, then blocks until an interrupt/terminate signal arrives
// (spec.md §4.10, §6 "Signals").
func runRun(cmd *cobra.Command, args []string) {
	fs := cmd.Flags()
	configPath := configPathFlag(fs)

	cfg, err := config.Load(configPath)
	if err != nil {
		outputErrorAndFail(fmt.Sprintf("failed loading config: %s", err))
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if portOverride, _ := fs.GetInt(portFlag); portOverride > 0 {
		cfg.Port = portOverride
	}
	if nameOverride, _ := fs.GetString(apiToolNameFlag); nameOverride != "" {
		cfg.APIToolName = nameOverride
	}

	log, _ := zap.NewProduction()
	if log == nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	manager := supervisor.New(configPath, 0, log)
	manager.Initialize(cfg.Tools)

	server := controlapi.New(manager, log, configPath, cfg.APIToolName, nil)

	go func() {
		addr := fmt.Sprintf("%s:%d", controlapi.DefaultBindAddr, cfg.Port)
		if err := server.ListenAndServe(addr); err != nil {
			log.Warn("control API stopped", zap.Error(err))
		}
	}()

	isReady := func(name string) bool {
		_, snap, ok := manager.GetToolByName(name)
		return ok && snap.Status == supervisor.StatusRunning
	}
	manager.StartAllToolsWithDependencies(isReady, supervisor.DefaultDependencyTimeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	crashCh := make(chan os.Signal, 1)
	signal.Notify(crashCh, syscall.SIGQUIT)
	go func() {
		<-crashCh
		manager.KillAllSync()
	}()

	<-sigCh
	log.Info("shutting down")
	manager.Cleanup()
}

// runPs implements `corral ps`: attaches read-only to a running
// instance's PID file and renders a table (spec.md §4.10), grounded on
// the teacher's own tablewriter usage for `process ls -o table`.
func runPs(cmd *cobra.Command, args []string) {
	configPath := configPathFlag(cmd.Flags())
	printProcessTable(configPath)
}

// runLogs implements `corral logs`: calls the running instance's
// Control API over loopback HTTP and prints the resulting lines.
func runLogs(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		cmd.Help()
		os.Exit(0)
	}
	configPath := configPathFlag(cmd.Flags())
	n, _ := cmd.Flags().GetInt(linesFlag)

	lines, err := fetchLogs(configPath, args[0], n)
	if err != nil {
		outputErrorAndFail(fmt.Sprintf("failed fetching logs: %s", err))
	}
	for _, l := range lines {
		fmt.Println(l)
	}
}

// runReload implements `corral reload`: calls /api/reload on the
// running instance.
func runReload(cmd *cobra.Command, args []string) {
	configPath := configPathFlag(cmd.Flags())
	report, err := callReload(configPath)
	if err != nil {
		outputErrorAndFail(fmt.Sprintf("failed reloading: %s", err))
	}
	fmt.Printf("reloaded: %v\n", report)
}

// portFromConfig resolves the port a running instance is presumed to be
// listening on, for ps/logs/reload, which have no other way to learn it
// besides re-reading the same project file the running instance started
// from.
func portFromConfig(configPath string) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, err
	}
	return cfg.Port, nil
}

var httpTimeout = 5 * time.Second
