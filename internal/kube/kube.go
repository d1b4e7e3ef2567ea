// Package kube reaches the Kubernetes control plane exclusively through
// an external kubectl-compatible binary invoked as a subprocess. The
// binary's JSON output is the only contract; no in-cluster client library
// is linked.
package kube

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"kubecheck/internal/spec"
)

// Interface is the cluster access capability consumed by the execution
// strategies. A fake implementation backs the wait-poller and transport
// tests.
type Interface interface {
	// Get fetches the resource the selector names as structured data.
	// Label selectors resolve to the first matching resource.
	Get(ctx context.Context, sel spec.Selector) (*unstructured.Unstructured, error)
	// ResolvePodName resolves the selector to a concrete pod name.
	ResolvePodName(ctx context.Context, sel spec.Selector) (string, error)
	// ForwardTarget renders the selector as a port-forward target
	// (pod/<name> or <kind>/<name>).
	ForwardTarget(ctx context.Context, sel spec.Selector) (string, error)
	// Exec runs a command inside a pod. Non-zero remote exits are
	// reconstructed into the result, not returned as errors.
	Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error)
	// Debug launches an ephemeral debug container attached to a pod and
	// returns its combined output.
	Debug(ctx context.Context, opts DebugOptions) (string, error)
	// PortForward starts a background forwarding tunnel and waits for it
	// to become ready.
	PortForward(ctx context.Context, opts ForwardOptions) (*Forward, error)
}

// ExecOptions parameterizes a pod exec invocation.
type ExecOptions struct {
	// Namespace of the target pod
	Namespace string
	// Pod is the concrete pod name
	Pod string
	// Container selects the container; empty uses the pod default
	Container string
	// Context is the kubeconfig context
	Context string
	// Command is the argv executed inside the container
	Command []string
}

// ExecResult is the captured outcome of a pod exec invocation.
type ExecResult struct {
	// Stdout captured from the remote process
	Stdout string
	// Stderr captured from the remote process
	Stderr string
	// ExitCode of the remote process
	ExitCode int
}

// DebugOptions parameterizes an ephemeral debug container launch.
type DebugOptions struct {
	// Namespace of the target pod
	Namespace string
	// Pod is the concrete pod name the container attaches to
	Pod string
	// Context is the kubeconfig context
	Context string
	// Image is the debug container image
	Image string
	// Container is the generated name of the debug container
	Container string
	// Command is the argv executed in the debug container
	Command []string
}

// ForwardOptions parameterizes a port-forward tunnel.
type ForwardOptions struct {
	// Target is the forward target, e.g. "pod/web-0" or "service/api"
	Target string
	// Namespace of the target
	Namespace string
	// Context is the kubeconfig context
	Context string
	// LocalPort is the local end of the tunnel
	LocalPort int
	// RemotePort is the cluster-side port
	RemotePort int
}
