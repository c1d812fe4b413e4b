// toolcheck validates MCP tool servers against declared behavioral
// contracts: it launches the server in a sandbox, runs each contract's
// tests, observes runtime behavior, and reports structured diagnostics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"toolcheck/internal/config"
	"toolcheck/internal/contract"
	"toolcheck/internal/diagnostics"
	"toolcheck/internal/history"
	"toolcheck/internal/logging"
	"toolcheck/internal/mcp"
	"toolcheck/internal/orchestrator"
	"toolcheck/internal/report"
	"toolcheck/internal/sandbox"
	"toolcheck/internal/watch"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration
	strict    bool

	// validate flags
	serverCommand string
	serverURL     string
	jsonOutput    bool
	watchMode     bool
	determinism   bool

	// history flags
	historyLimit int

	// Logger
	logger *zap.Logger
)

// errValidationFailed distinguishes a failing verdict (exit 1) from a
// configuration problem (exit 2).
var errValidationFailed = errors.New("validation failed")

var rootCmd = &cobra.Command{
	Use:   "toolcheck",
	Short: "Contract validation for MCP tool servers",
	Long: `toolcheck runs MCP tool servers against declared behavioral contracts.

Contracts are YAML documents (*.contract.yaml) that declare per-tool
guarantees (side effects, output size, execution time, determinism)
and test cases with expected outcomes. toolcheck launches the server
in a sandbox, exercises every declared test, observes behavior, and
reports structured diagnostics with a pass/fail verdict.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			workspace = wd
		}

		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("Debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [tool-or-path]",
	Short: "Run contract validation against the configured server",
	Long: `Discovers contract files under the tools directory, launches the MCP
server, runs every declared test, and reports diagnostics.

The optional argument narrows the run to one tool name or one
sub-directory of the tools directory.

Exit codes: 0 verdict pass, 1 verdict fail, 2 configuration error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the server's tools and their contract coverage",
	RunE:  runList,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived validation runs",
	RunE:  runHistory,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default toolcheck.yaml to the workspace",
	RunE:  runInit,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-call timeout override (default: contract or config)")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	validateCmd.Flags().StringVar(&serverCommand, "server", "", "Launch command for a stdio server (overrides config)")
	validateCmd.Flags().StringVar(&serverURL, "url", "", "Base URL of an HTTP server (overrides config)")
	validateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the full result as JSON")
	validateCmd.Flags().BoolVar(&watchMode, "watch", false, "Revalidate when contract files change")
	validateCmd.Flags().BoolVar(&determinism, "check-determinism", false, "Probe deterministic: true guarantees with repeated executions")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errValidationFailed) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// loadConfig reads toolcheck.yaml and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}

	if serverCommand != "" {
		cfg.Server.Protocol = mcp.ProtocolStdio
		cfg.Server.Command = serverCommand
	}
	if serverURL != "" {
		cfg.Server.Protocol = mcp.ProtocolHTTP
		cfg.Server.BaseURL = serverURL
	}
	if strict {
		cfg.Validation.Strict = true
	}
	if determinism {
		cfg.Validation.CheckDeterminism = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildOrchestrator assembles a run from the effective configuration.
func buildOrchestrator(cfg *config.Config, filter string) *orchestrator.Orchestrator {
	exec := sandbox.NewExecutor(cfg.Server, cfg.GetCallTimeout())
	opts := orchestrator.Options{
		ToolsDir:         cfg.ResolveToolsDir(workspace),
		Filter:           filter,
		Timeout:          timeout,
		Strict:           cfg.Validation.Strict,
		CheckDeterminism: cfg.Validation.CheckDeterminism,
		DeterminismRuns:  cfg.Validation.DeterminismRuns,
	}
	return orchestrator.New(opts, exec)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = validateOnce(ctx, cfg, filter)
	if !watchMode {
		return err
	}
	if err != nil && !errors.Is(err, errValidationFailed) {
		return err
	}

	return watchLoop(ctx, cfg, filter)
}

// validateOnce runs one full validation and renders the result.
func validateOnce(ctx context.Context, cfg *config.Config, filter string) error {
	o := buildOrchestrator(cfg, filter)
	result, err := o.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		archiveRun(cfg, result)
	}

	if jsonOutput {
		if err := report.RenderJSON(os.Stdout, result); err != nil {
			return err
		}
	} else {
		if err := report.Render(os.Stdout, result, report.Options{Verbose: verbose}); err != nil {
			return err
		}
	}

	if result.Verdict == diagnostics.VerdictFail {
		return errValidationFailed
	}
	return nil
}

// archiveRun stores the result; archive failures are reported but
// never affect the verdict.
func archiveRun(cfg *config.Config, result *orchestrator.Result) {
	store, err := history.NewStore(cfg.ResolveHistoryPath(workspace))
	if err != nil {
		logger.Warn("Run archive unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.SaveRun(result); err != nil {
		logger.Warn("Failed to archive run", zap.Error(err))
	}
}

// watchLoop revalidates on contract changes until interrupted.
func watchLoop(ctx context.Context, cfg *config.Config, filter string) error {
	watcher, err := watch.NewContractWatcher(cfg.ResolveToolsDir(workspace), func(ctx context.Context, changed []string) {
		fmt.Printf("\n--- %d contract change(s), revalidating ---\n", len(changed))
		if err := validateOnce(ctx, cfg, filter); err != nil && !errors.Is(err, errValidationFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Println("\nWatching for contract changes (ctrl-c to stop)...")
	<-ctx.Done()
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	exec := sandbox.NewExecutor(cfg.Server, cfg.GetCallTimeout())
	if err := exec.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer exec.Cleanup()

	client := exec.Client()
	info := client.ServerInfo()
	if info != nil {
		fmt.Printf("Server: %s %s\n\n", info.Name, info.Version)
	}

	toolsDir := cfg.ResolveToolsDir(workspace)
	contracts, err := contract.LoadAllContracts(toolsDir)
	if err != nil && !errors.Is(err, contract.ErrNoContracts) && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	covered := make(map[string]string, len(contracts))
	for _, pc := range contracts {
		covered[pc.ToolName] = pc.FilePath
	}

	for _, tool := range client.Tools() {
		marker := "no contract"
		if path, ok := covered[tool.Name]; ok {
			marker = path
		}
		fmt.Printf("  %-30s %s\n", tool.Name, marker)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}

	store, err := history.NewStore(cfg.ResolveHistoryPath(workspace))
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %-19s  %-4s  %d/%d tools  %d diagnostic(s)  %.1fs\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Verdict,
			r.ToolsPassed, r.ToolsTested, r.Diagnostics, float64(r.DurationMs)/1000)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(workspace, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := config.DefaultConfig().Save(workspace); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
