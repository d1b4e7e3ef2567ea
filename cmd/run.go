package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kubecheck/internal/executor"
	"kubecheck/internal/kube"
	"kubecheck/internal/runner"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
	"kubecheck/pkg/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	runTimeout    time.Duration
	runVerbose    bool
	runDebug      bool
	runKubectl    string
	runReportPath string
	runExportVars string
	runSetVars    []string
	runWatch      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Execute test definitions from a YAML file or directory",
	Long: `The run command loads test definitions from a YAML file, or from every
*.yaml/*.yml file in a directory, and executes them in order.

Execution is fail-fast: the first failing test stops the batch and the
remaining tests are reported as skipped. Individual tests may declare a
retry budget, which applies to everything except configuration errors.

Values extracted by one test (setVars / capture) are visible to every
later test through $NAME interpolation.

Example usage:
  kubecheck run checks.yaml                        # Run a single file
  kubecheck run checks/                            # Run a directory
  kubecheck run checks.yaml --verbose              # Detailed output
  kubecheck run checks.yaml --set HOST=10.0.0.1    # Seed a variable
  kubecheck run checks.yaml --report report.json   # Save a JSON report
  kubecheck run checks.yaml --export-vars out.yaml # Export final variables
  kubecheck run checks.yaml --watch                # Rerun on file change`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "Overall execution timeout per batch")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Enable verbose output")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
	runCmd.Flags().StringVar(&runKubectl, "kubectl", kube.DefaultBinary, "Path to the kubectl binary")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "Path to save a JSON report of the run")
	runCmd.Flags().StringVar(&runExportVars, "export-vars", "", "Path to save the final variable store as YAML")
	runCmd.Flags().StringArrayVar(&runSetVars, "set", nil, "Seed a variable before the run (NAME=value, repeatable)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Watch the path and rerun on changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]

	level := logging.LevelWarn
	if runVerbose {
		level = logging.LevelInfo
	}
	if runDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runWatch {
		return watchAndRun(ctx, path)
	}

	result, err := runBatch(ctx, path)
	if err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("%d test(s) failed", result.Failed)
	}
	return nil
}

// runBatch loads and executes the tests at path once.
func runBatch(ctx context.Context, path string) (*runner.RunResult, error) {
	tests, err := spec.Load(path)
	if err != nil {
		return nil, err
	}

	store := vars.NewStore()
	if err := seedStore(store, runSetVars); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	exec := executor.New(kube.NewClient(runKubectl))
	reporter := runner.NewConsoleReporter(runVerbose, runReportPath)
	result := runner.New(exec, reporter).Run(ctx, tests, store)

	if runExportVars != "" {
		if err := exportVars(store, runExportVars); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// seedStore applies the repeatable --set NAME=value flags.
func seedStore(store *vars.Store, pairs []string) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --set value %q, expected NAME=value", pair)
		}
		store.Set(name, value)
	}
	return nil
}

// exportVars writes the final variable snapshot as YAML.
func exportVars(store *vars.Store, path string) error {
	data, err := yaml.Marshal(store.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write variables file: %w", err)
	}
	fmt.Printf("📄 Variables saved to: %s\n", path)
	return nil
}

// watchAndRun reruns the batch whenever the watched path changes. It only
// returns when the context is cancelled or the watcher fails.
func watchAndRun(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	run := func() {
		if _, err := runBatch(ctx, path); err != nil {
			fmt.Printf("⚠️  %v\n", err)
		}
	}
	run()

	// Editors often produce bursts of events for one save.
	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	fmt.Printf("\n👀 Watching %s for changes...\n", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			run()
			fmt.Printf("\n👀 Watching %s for changes...\n", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watch", err, "watcher error")
		}
	}
}
