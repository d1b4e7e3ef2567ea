package executor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"kubecheck/internal/kube"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
	"kubecheck/pkg/logging"
)

// httpTransport is the capability interface behind which the four HTTP
// execution strategies hide. Every strategy returns the same Result
// shape; past this boundary the choice is invisible.
type httpTransport interface {
	do(ctx context.Context, req *httpRequest) (*Result, error)
}

// httpRequest is the preprocessed request handed to a transport:
// variables are already interpolated and defaults applied.
type httpRequest struct {
	method       string
	url          string
	path         string
	port         int
	portName     string
	portIndex    *int
	headers      map[string]string
	body         string
	skipTLS      bool
	maxRedirects int
	clientCert   string
	clientKey    string
	caCert       string
	source       *spec.Source
}

// executeHTTP preprocesses the request, selects a transport by the
// decision table and performs the call.
func (e *Executor) executeHTTP(ctx context.Context, t *spec.HTTPTest, src *spec.Source, store *vars.Store) (*Result, error) {
	req := buildRequest(t, src, store)

	transport := e.transportFor(src)
	res, err := transport.do(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Kind = spec.KindHTTP
	return res, nil
}

// transportFor is the strategy decision table: local sources call
// directly; pod sources select exec+curl, port-forward, or the default
// ephemeral debug container.
func (e *Executor) transportFor(src *spec.Source) httpTransport {
	if src == nil || src.Type == spec.SourceLocal {
		return &localTransport{kube: e.kube}
	}
	switch {
	case src.UsePodExec:
		return &execTransport{kube: e.kube}
	case src.UsePortForward:
		return &forwardTransport{kube: e.kube}
	default:
		return &debugTransport{kube: e.kube}
	}
}

// buildRequest interpolates variable references in the URL and header
// values and applies the method and path defaults.
func buildRequest(t *spec.HTTPTest, src *spec.Source, store *vars.Store) *httpRequest {
	method := t.Method
	if method == "" {
		method = "GET"
	}
	path := t.Path
	if path == "" {
		path = "/"
	}
	return &httpRequest{
		method:       method,
		url:          store.Interpolate(t.URL),
		path:         path,
		port:         t.Port,
		portName:     t.PortName,
		portIndex:    t.PortIndex,
		headers:      store.InterpolateMap(t.Headers),
		body:         t.Body,
		skipTLS:      t.SkipSSLVerification,
		maxRedirects: t.MaxRedirects,
		clientCert:   t.ClientCert,
		clientKey:    t.ClientKey,
		caCert:       t.CACert,
		source:       src,
	}
}

// podURL composes the URL a pod-internal strategy targets: the explicit
// URL when present, otherwise localhost plus the configured port.
func (r *httpRequest) podURL() string {
	if r.url != "" {
		return r.url
	}
	port := r.port
	if port == 0 {
		port = 80
	}
	scheme := "http"
	if port == 443 {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d%s", scheme, port, r.path)
}

// remotePort resolves the cluster-side port for a port-forward: the
// explicit port, the URL's port, or the scheme default.
func (r *httpRequest) remotePort() int {
	if r.port != 0 {
		return r.port
	}
	if r.url != "" {
		if u, err := url.Parse(r.url); err == nil {
			if p := u.Port(); p != "" {
				if n, err := strconv.Atoi(p); err == nil {
					return n
				}
			}
			if u.Scheme == "https" {
				return 443
			}
		}
	}
	return 80
}

// discoverServiceURL resolves a load-balancer address for a local Service
// source: the first ingress entry of the load-balancer status plus a
// service port resolved by number, name, index, or the first port.
func discoverServiceURL(ctx context.Context, k kube.Interface, req *httpRequest) (string, error) {
	obj, err := k.Get(ctx, req.source.Selector)
	if err != nil {
		return "", err
	}

	var svc corev1.Service
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &svc); err != nil {
		return "", fmt.Errorf("failed to decode service: %w", err)
	}

	if len(svc.Status.LoadBalancer.Ingress) == 0 {
		return "", fmt.Errorf("service %s has no load-balancer ingress", svc.Name)
	}
	ingress := svc.Status.LoadBalancer.Ingress[0]
	host := ingress.IP
	if host == "" {
		host = ingress.Hostname
	}
	if host == "" {
		return "", fmt.Errorf("service %s load-balancer ingress has neither ip nor hostname", svc.Name)
	}

	port, err := resolveServicePort(&svc, req)
	if err != nil {
		return "", err
	}

	scheme := "http"
	if port == 443 {
		scheme = "https"
	}
	composed := fmt.Sprintf("%s://%s:%d%s", scheme, host, port, req.path)
	logging.Debug("HTTP", "discovered service URL %s", composed)
	return composed, nil
}

// resolveServicePort picks the service port by explicit number, by name,
// by index, or the first port when nothing is specified.
func resolveServicePort(svc *corev1.Service, req *httpRequest) (int, error) {
	ports := svc.Spec.Ports
	if len(ports) == 0 {
		return 0, fmt.Errorf("service %s exposes no ports", svc.Name)
	}

	switch {
	case req.port != 0:
		for _, p := range ports {
			if int(p.Port) == req.port {
				return req.port, nil
			}
		}
		return 0, fmt.Errorf("service %s has no port %d", svc.Name, req.port)
	case req.portName != "":
		for _, p := range ports {
			if p.Name == req.portName {
				return int(p.Port), nil
			}
		}
		return 0, fmt.Errorf("service %s has no port named %q", svc.Name, req.portName)
	case req.portIndex != nil:
		if *req.portIndex < 0 || *req.portIndex >= len(ports) {
			return 0, fmt.Errorf("service %s has no port index %d", svc.Name, *req.portIndex)
		}
		return int(ports[*req.portIndex].Port), nil
	}
	return int(ports[0].Port), nil
}
