// Package logging provides a structured logging system for kubecheck built
// on Go's standard slog package.
//
// All log entries carry a subsystem identifier so output from the different
// execution layers (Loader, HTTP, Command, Wait, Kube, Runner) can be told
// apart and filtered. The level is configured once at startup from the CLI
// flags: --debug maps to LevelDebug, --verbose to LevelInfo, and the default
// is LevelWarn so that warnings (unresolved variable references, ambiguous
// label selectors) always reach the user without drowning the test report.
//
// Usage:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Debug("HTTP", "request to %s", url)
//	logging.Warn("Vars", "unresolved variable reference $%s", name)
//	logging.Error("Kube", err, "kubectl get failed")
//
// The logging system is fully thread-safe and filters disabled levels before
// formatting, so filtered-out messages cost no allocations.
package logging
