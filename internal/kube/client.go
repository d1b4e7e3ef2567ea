package kube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"kubecheck/internal/spec"
	"kubecheck/pkg/logging"
)

// DefaultBinary is the control-plane client invoked when no override is
// configured.
const DefaultBinary = "kubectl"

// Client shells out to a kubectl-compatible binary.
type Client struct {
	binary string
}

// NewClient creates a client around the given binary; an empty binary
// selects kubectl from PATH.
func NewClient(binary string) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{binary: binary}
}

// run executes the binary and captures stdout, stderr and the exit code.
// A non-zero exit is reported through the exit code, not the error; the
// error is reserved for spawn failures.
func (c *Client) run(ctx context.Context, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Kube", "running %s %s", c.binary, strings.Join(args, " "))

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// selectorArgs renders the namespace and context flags of a selector.
func selectorArgs(sel spec.Selector) []string {
	var args []string
	if sel.Metadata.Namespace != "" {
		args = append(args, "-n", sel.Metadata.Namespace)
	}
	if sel.Context != "" {
		args = append(args, "--context", sel.Context)
	}
	return args
}

// labelSelector renders a label map as a deterministic k=v,... string.
func labelSelector(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return strings.Join(parts, ",")
}

// Get fetches the resource the selector names. Lookups by labels resolve
// to the first matching resource; a warning is logged when the match set
// is larger, since the tie-break is undocumented.
func (c *Client) Get(ctx context.Context, sel spec.Selector) (*unstructured.Unstructured, error) {
	kind := sel.Kind
	if kind == "" {
		kind = "Pod"
	}

	if sel.Metadata.Name != "" {
		args := append([]string{"get", strings.ToLower(kind), sel.Metadata.Name, "-o", "json"}, selectorArgs(sel)...)
		stdout, stderr, code, err := c.run(ctx, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to run %s: %w", c.binary, err)
		}
		if code != 0 {
			return nil, fmt.Errorf("failed to get %s/%s: %s", kind, sel.Metadata.Name, strings.TrimSpace(stderr))
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(stdout), &obj); err != nil {
			return nil, fmt.Errorf("failed to parse %s output for %s/%s: %w", c.binary, kind, sel.Metadata.Name, err)
		}
		return &unstructured.Unstructured{Object: obj}, nil
	}

	args := append([]string{"get", strings.ToLower(kind), "-l", labelSelector(sel.Metadata.Labels), "-o", "json"}, selectorArgs(sel)...)
	stdout, stderr, code, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", c.binary, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("failed to list %s by labels: %s", kind, strings.TrimSpace(stderr))
	}

	var list struct {
		Items []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		return nil, fmt.Errorf("failed to parse %s list output: %w", c.binary, err)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("no %s matches label selector %s", kind, labelSelector(sel.Metadata.Labels))
	}
	if len(list.Items) > 1 {
		logging.Warn("Kube", "label selector %s matches %d %s resources, using the first",
			labelSelector(sel.Metadata.Labels), len(list.Items), kind)
	}
	return &unstructured.Unstructured{Object: list.Items[0]}, nil
}

// ResolvePodName resolves the selector to a concrete pod name: a named
// Pod directly, anything else through a pod label lookup. The first match
// wins; no match is a transient condition the caller may retry.
func (c *Client) ResolvePodName(ctx context.Context, sel spec.Selector) (string, error) {
	if sel.Metadata.Name != "" {
		if sel.Kind == "" || strings.EqualFold(sel.Kind, "Pod") {
			return sel.Metadata.Name, nil
		}
		return "", fmt.Errorf("cannot resolve a pod from %s/%s: use metadata.labels for pod-level access", sel.Kind, sel.Metadata.Name)
	}

	podSel := sel
	podSel.Kind = "Pod"
	obj, err := c.Get(ctx, podSel)
	if err != nil {
		return "", err
	}
	name := obj.GetName()
	if name == "" {
		return "", fmt.Errorf("pod matched by labels has no name")
	}
	return name, nil
}

// ForwardTarget renders the selector as a port-forward target: a bare pod
// name becomes pod/<name>, non-pod resources become <kind>/<name>, and
// label selectors resolve to a pod first.
func (c *Client) ForwardTarget(ctx context.Context, sel spec.Selector) (string, error) {
	if sel.Metadata.Name != "" {
		kind := sel.Kind
		if kind == "" {
			kind = "Pod"
		}
		return fmt.Sprintf("%s/%s", strings.ToLower(kind), sel.Metadata.Name), nil
	}
	pod, err := c.ResolvePodName(ctx, sel)
	if err != nil {
		return "", err
	}
	return "pod/" + pod, nil
}

// Exec runs a command inside a pod. The remote exit code is carried in
// the result so callers can validate failing commands.
func (c *Client) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	args := []string{"exec", opts.Pod}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	if opts.Container != "" {
		args = append(args, "-c", opts.Container)
	}
	if opts.Context != "" {
		args = append(args, "--context", opts.Context)
	}
	args = append(args, "--")
	args = append(args, opts.Command...)

	stdout, stderr, code, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s exec: %w", c.binary, err)
	}
	return &ExecResult{Stdout: stdout, Stderr: stderr, ExitCode: code}, nil
}

// Debug launches an ephemeral debug container attached to the pod and
// returns its combined output once it exits.
func (c *Client) Debug(ctx context.Context, opts DebugOptions) (string, error) {
	args := []string{"debug", opts.Pod, "--image", opts.Image, "--attach", "--quiet"}
	if opts.Container != "" {
		args = append(args, "--container", opts.Container)
	}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	if opts.Context != "" {
		args = append(args, "--context", opts.Context)
	}
	args = append(args, "--")
	args = append(args, opts.Command...)

	stdout, stderr, code, err := c.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to run %s debug: %w", c.binary, err)
	}
	combined := stdout + stderr
	if code != 0 {
		return combined, fmt.Errorf("debug container exited with code %d: %s", code, strings.TrimSpace(stderr))
	}
	return combined, nil
}
