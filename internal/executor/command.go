package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"kubecheck/internal/kube"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
	"kubecheck/pkg/logging"
)

// executeCommand runs a shell command locally or inside a pod and
// captures stdout, stderr and the exit code.
func (e *Executor) executeCommand(ctx context.Context, t *spec.CommandTest, src *spec.Source, store *vars.Store) (*Result, error) {
	var res *Result
	var err error
	if src != nil && src.Type == spec.SourcePod {
		res, err = e.runPodCommand(ctx, t, src, store)
	} else {
		res, err = runLocalCommand(ctx, t, store)
	}
	if err != nil {
		return nil, err
	}

	res.Kind = spec.KindCommand
	if t.ParseJSON {
		trimmed := strings.TrimSpace(res.Stdout)
		var parsed interface{}
		if jsonErr := json.Unmarshal([]byte(trimmed), &parsed); jsonErr != nil {
			// Recorded, not raised, so expectations can assert on it.
			res.JSONParseError = jsonErr.Error()
		} else {
			res.JSON = parsed
		}
	}
	return res, nil
}

// runLocalCommand spawns a shell with the command string. The environment
// is the process environment extended with the store snapshot and the
// command's own env block; exports made inside the shell do not persist
// beyond it.
func runLocalCommand(ctx context.Context, t *spec.CommandTest, store *vars.Store) (*Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", t.Command)
	cmd.Env = store.Environ()
	for _, k := range sortedKeys(t.Env) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, t.Env[k]))
	}
	if t.WorkDir != "" {
		cmd.Dir = t.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Command", "running locally: %s", t.Command)
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to spawn command: %w", err)
		}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// runPodCommand executes the command through pod exec. The remote shell
// combines stderr into stdout; non-zero exits are carried in the result,
// reconstructed by the exec layer.
func (e *Executor) runPodCommand(ctx context.Context, t *spec.CommandTest, src *spec.Source, store *vars.Store) (*Result, error) {
	pod, err := e.kube.ResolvePodName(ctx, src.Selector)
	if err != nil {
		return nil, err
	}

	script := podCommandScript(t, store)
	logging.Debug("Command", "running on pod %s: %s", pod, script)

	execRes, err := e.kube.Exec(ctx, kube.ExecOptions{
		Namespace: src.Metadata.Namespace,
		Pod:       pod,
		Container: src.Container,
		Context:   src.Context,
		Command:   []string{"sh", "-c", script},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Stdout:   execRes.Stdout,
		Stderr:   execRes.Stderr,
		ExitCode: execRes.ExitCode,
	}, nil
}

// podCommandScript builds the remote shell script: an optional cd, the
// environment exports as single-quoted assignments, then the command
// itself with stderr folded into stdout. Values are escaped with the
// POSIX single-quote escape idiom.
func podCommandScript(t *spec.CommandTest, store *vars.Store) string {
	var parts []string
	if t.WorkDir != "" {
		parts = append(parts, "cd "+shellQuote(t.WorkDir))
	}

	env := store.Snapshot()
	for k, v := range t.Env {
		env[k] = v
	}
	for _, k := range sortedKeys(env) {
		parts = append(parts, fmt.Sprintf("export %s=%s", k, shellQuote(env[k])))
	}

	parts = append(parts, t.Command)
	return strings.Join(parts, " && ") + " 2>&1"
}

// sortedKeys returns the map keys in deterministic order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
