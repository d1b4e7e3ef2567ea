package kube

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kubecheck/pkg/logging"
)

// readyTimeout bounds how long a tunnel may take to report readiness.
const readyTimeout = 30 * time.Second

// stopGracePeriod is how long Stop waits for a graceful exit before
// escalating to a kill.
const stopGracePeriod = 5 * time.Second

// Forward is a running port-forward tunnel owned by a single test step.
// Stop must run on every exit path of the owning strategy.
type Forward struct {
	// LocalPort is the local end of the tunnel
	LocalPort int

	id       string
	cmd      *exec.Cmd
	stopOnce sync.Once
}

// FreePort asks the kernel for an unused local TCP port.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate local port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

// PortForward spawns a background forwarding process and waits for the
// "Forwarding from" ready signal on its stdout or stderr.
func (c *Client) PortForward(ctx context.Context, opts ForwardOptions) (*Forward, error) {
	args := []string{"port-forward", opts.Target, fmt.Sprintf("%d:%d", opts.LocalPort, opts.RemotePort)}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	if opts.Context != "" {
		args = append(args, "--context", opts.Context)
	}

	// Deliberately not CommandContext: the tunnel must outlive the ready
	// wait and is terminated explicitly by Stop.
	cmd := exec.Command(c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open port-forward stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open port-forward stderr: %w", err)
	}

	fw := &Forward{
		LocalPort: opts.LocalPort,
		id:        uuid.NewString()[:8],
		cmd:       cmd,
	}

	logging.Debug("Kube", "[forward %s] starting %s %s", fw.id, c.binary, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start port-forward: %w", err)
	}

	ready := make(chan struct{}, 2)
	var g errgroup.Group
	for _, stream := range []io.Reader{stdout, stderr} {
		g.Go(func() error {
			scanner := bufio.NewScanner(stream)
			for scanner.Scan() {
				line := scanner.Text()
				logging.Debug("Kube", "[forward %s] %s", fw.id, line)
				if strings.Contains(line, "Forwarding from") {
					select {
					case ready <- struct{}{}:
					default:
					}
				}
			}
			return nil
		})
	}
	go func() {
		// Drain the pipes for the lifetime of the tunnel.
		_ = g.Wait()
	}()

	select {
	case <-ready:
		logging.Debug("Kube", "[forward %s] ready on local port %d", fw.id, fw.LocalPort)
		return fw, nil
	case <-time.After(readyTimeout):
		fw.Stop()
		return nil, fmt.Errorf("port-forward to %s did not become ready within %s", opts.Target, readyTimeout)
	case <-ctx.Done():
		fw.Stop()
		return nil, fmt.Errorf("port-forward to %s canceled: %w", opts.Target, ctx.Err())
	}
}

// Stop terminates the forwarding process, escalating from SIGTERM to a
// kill when the graceful shutdown does not complete promptly. Failures
// are logged, not returned, to avoid masking the owning test's result.
func (f *Forward) Stop() {
	f.stopOnce.Do(func() {
		if f.cmd == nil || f.cmd.Process == nil {
			return
		}
		if err := f.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logging.Debug("Kube", "[forward %s] SIGTERM failed: %v", f.id, err)
		}

		done := make(chan struct{})
		go func() {
			_, _ = f.cmd.Process.Wait()
			close(done)
		}()

		select {
		case <-done:
			logging.Debug("Kube", "[forward %s] terminated", f.id)
		case <-time.After(stopGracePeriod):
			if err := f.cmd.Process.Kill(); err != nil {
				logging.Warn("Kube", "[forward %s] failed to kill forwarding process: %v", f.id, err)
			} else {
				logging.Debug("Kube", "[forward %s] killed after grace period", f.id)
			}
		}
	})
}
