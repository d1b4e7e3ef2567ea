package executor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"kubecheck/internal/kube"
	"kubecheck/pkg/logging"
)

// curlExitMarker is the sentinel footer delimiting the curl response from
// its exit status in the exec output stream.
const curlExitMarker = "KUBECHECK_CURL_EXIT:"

// execTransport shells a curl invocation through pod exec. Selected by
// the usePodExec transport hint.
type execTransport struct {
	kube kube.Interface
}

func (t *execTransport) do(ctx context.Context, req *httpRequest) (*Result, error) {
	pod, err := t.kube.ResolvePodName(ctx, req.source.Selector)
	if err != nil {
		return nil, err
	}

	script := curlScript(req)
	logging.Debug("HTTP", "exec curl on pod %s: %s", pod, script)

	execRes, err := t.kube.Exec(ctx, kube.ExecOptions{
		Namespace: req.source.Metadata.Namespace,
		Pod:       pod,
		Container: req.source.Container,
		Context:   req.source.Context,
		Command:   []string{"sh", "-c", script},
	})
	if err != nil {
		return nil, err
	}

	responseText := execRes.Stdout
	if idx := strings.Index(responseText, curlExitMarker); idx >= 0 {
		responseText = responseText[:idx]
	}

	res, parseErr := parseCurlResponse(responseText)
	if parseErr != nil {
		// Best-effort reconstruction from partial output so validation
		// can still run against an error response.
		logging.Debug("HTTP", "curl response reconstruction from partial output: %v", parseErr)
		res = &Result{
			Headers: http.Header{},
			Body:    strings.TrimSpace(execRes.Stdout + execRes.Stderr),
		}
		res.parseBody()
	}
	return res, nil
}

// curlScript renders the curl invocation. Header values, the body and the
// URL are embedded single-quoted with the POSIX single-quote escape idiom so arbitrary
// content cannot break out of the shell word.
func curlScript(req *httpRequest) string {
	parts := []string{"curl", "-s", "-S", "-i", "-X", req.method}

	names := make([]string, 0, len(req.headers))
	for name := range req.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, "-H", shellQuote(fmt.Sprintf("%s: %s", name, req.headers[name])))
	}
	if req.body != "" {
		parts = append(parts, "--data", shellQuote(req.body))
	}
	if req.skipTLS {
		parts = append(parts, "-k")
	}
	if req.maxRedirects > 0 {
		parts = append(parts, "-L", "--max-redirs", strconv.Itoa(req.maxRedirects))
	}
	parts = append(parts, shellQuote(req.podURL()))

	return strings.Join(parts, " ") + fmt.Sprintf("; printf '\\n%s%%s\\n' \"$?\"", curlExitMarker)
}

// shellQuote wraps a string in single quotes, escaping embedded single
// quotes with the POSIX single-quote escape idiom.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parseCurlResponse parses `curl -i` output: one or more header blocks
// (interim responses and redirect hops) followed by the body. The last
// header block wins.
func parseCurlResponse(text string) (*Result, error) {
	text = strings.TrimLeft(text, "\r\n")
	if !strings.HasPrefix(text, "HTTP/") {
		return nil, fmt.Errorf("no status line in curl output")
	}

	var statusCode int
	headers := http.Header{}
	body := text

	for strings.HasPrefix(body, "HTTP/") {
		headerEnd, sepLen := blankLineIndex(body)
		headerBlock := body
		if headerEnd >= 0 {
			headerBlock = body[:headerEnd]
			body = body[headerEnd+sepLen:]
		} else {
			body = ""
		}

		headers = http.Header{}
		lines := strings.Split(strings.ReplaceAll(headerBlock, "\r\n", "\n"), "\n")
		statusFields := strings.Fields(lines[0])
		if len(statusFields) < 2 {
			return nil, fmt.Errorf("malformed status line %q", lines[0])
		}
		code, err := strconv.Atoi(statusFields[1])
		if err != nil {
			return nil, fmt.Errorf("malformed status code in %q", lines[0])
		}
		statusCode = code

		for _, line := range lines[1:] {
			if name, value, ok := strings.Cut(line, ":"); ok {
				headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}
		}
	}

	res := &Result{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       strings.TrimRight(body, "\r\n"),
	}
	res.parseBody()
	return res, nil
}

// blankLineIndex finds the first blank line separating a header block
// from what follows, returning its index and separator length.
func blankLineIndex(s string) (int, int) {
	crlf := strings.Index(s, "\r\n\r\n")
	lf := strings.Index(s, "\n\n")
	switch {
	case crlf >= 0 && (lf < 0 || crlf <= lf):
		return crlf, 4
	case lf >= 0:
		return lf, 2
	}
	return -1, 0
}
