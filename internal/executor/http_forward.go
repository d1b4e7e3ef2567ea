package executor

import (
	"context"
	"fmt"
	"net/url"

	"kubecheck/internal/kube"
	"kubecheck/pkg/logging"
)

// forwardTransport tunnels the request through a local port-forward and
// performs the call with the local transport. Selected by the
// usePortForward transport hint.
type forwardTransport struct {
	kube kube.Interface
}

func (t *forwardTransport) do(ctx context.Context, req *httpRequest) (*Result, error) {
	target, err := t.kube.ForwardTarget(ctx, req.source.Selector)
	if err != nil {
		return nil, err
	}

	localPort, err := kube.FreePort()
	if err != nil {
		return nil, err
	}

	fw, err := t.kube.PortForward(ctx, kube.ForwardOptions{
		Target:     target,
		Namespace:  req.source.Metadata.Namespace,
		Context:    req.source.Context,
		LocalPort:  localPort,
		RemotePort: req.remotePort(),
	})
	if err != nil {
		return nil, err
	}
	// The tunnel is owned by this one step and must not outlive it,
	// whatever the exit path.
	defer fw.Stop()

	rewritten, err := rewriteToLocal(req, fw.LocalPort)
	if err != nil {
		return nil, err
	}
	logging.Debug("HTTP", "forwarding %s via localhost:%d", target, fw.LocalPort)

	local := *req
	local.url = rewritten
	return (&localTransport{kube: t.kube}).do(ctx, &local)
}

// rewriteToLocal points the request at the local end of the tunnel,
// preserving scheme, path and query.
func rewriteToLocal(req *httpRequest, localPort int) (string, error) {
	if req.url == "" {
		scheme := "http"
		if req.remotePort() == 443 {
			scheme = "https"
		}
		return fmt.Sprintf("%s://localhost:%d%s", scheme, localPort, req.path), nil
	}
	u, err := url.Parse(req.url)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", req.url, err)
	}
	u.Host = fmt.Sprintf("localhost:%d", localPort)
	return u.String(), nil
}
