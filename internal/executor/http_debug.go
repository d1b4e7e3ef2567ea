package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"kubecheck/internal/kube"
	"kubecheck/pkg/logging"
)

// Sentinels delimiting the JSON response object in the debug container's
// output stream.
const (
	responseStartMarker = "HTTP_RESPONSE_START"
	responseEndMarker   = "HTTP_RESPONSE_END"
)

// defaultDebugImage is the runtime the generated request program runs in.
const defaultDebugImage = "node:20-alpine"

// debugTransport performs the request from an ephemeral debug container
// attached to the target pod. This is the default pod strategy when
// neither transport hint is set.
type debugTransport struct {
	kube kube.Interface
}

func (t *debugTransport) do(ctx context.Context, req *httpRequest) (*Result, error) {
	pod, err := t.kube.ResolvePodName(ctx, req.source.Selector)
	if err != nil {
		return nil, err
	}

	image := req.source.DebugImage
	if image == "" {
		image = defaultDebugImage
	}
	container := "kubecheck-" + uuid.NewString()[:8]

	script, err := requestScript(req)
	if err != nil {
		return nil, err
	}

	logging.Debug("HTTP", "launching debug container %s (%s) on pod %s", container, image, pod)
	output, err := t.kube.Debug(ctx, kube.DebugOptions{
		Namespace: req.source.Metadata.Namespace,
		Pod:       pod,
		Context:   req.source.Context,
		Image:     image,
		Container: container,
		Command:   []string{"node", "-e", script},
	})
	if err != nil && !strings.Contains(output, responseStartMarker) {
		return nil, fmt.Errorf("debug container request failed: %w", err)
	}

	return parseSentinelResponse(output)
}

// requestScript generates the minimal HTTP-request program executed in
// the debug container. It prints a JSON response object between the
// sentinel markers; all request parameters are embedded JSON-encoded so
// no escaping can leak into the program text.
func requestScript(req *httpRequest) (string, error) {
	params := map[string]interface{}{
		"method":  req.method,
		"url":     req.podURL(),
		"headers": req.headers,
		"body":    req.body,
		"skipTls": req.skipTLS,
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode request parameters: %w", err)
	}

	var b strings.Builder
	b.WriteString("const p=" + string(encoded) + ";\n")
	b.WriteString("const u=new URL(p.url);\n")
	b.WriteString("const mod=u.protocol==='https:'?require('https'):require('http');\n")
	b.WriteString("const opts={method:p.method,headers:p.headers||{}};\n")
	b.WriteString("if(p.skipTls)opts.rejectUnauthorized=false;\n")
	b.WriteString("const req=mod.request(u,opts,res=>{\n")
	b.WriteString("  const chunks=[];\n")
	b.WriteString("  res.on('data',c=>chunks.push(c));\n")
	b.WriteString("  res.on('end',()=>{\n")
	b.WriteString("    const body=Buffer.concat(chunks).toString('utf8');\n")
	b.WriteString("    console.log('" + responseStartMarker + "');\n")
	b.WriteString("    console.log(JSON.stringify({statusCode:res.statusCode,headers:res.headers,body:body}));\n")
	b.WriteString("    console.log('" + responseEndMarker + "');\n")
	b.WriteString("  });\n")
	b.WriteString("});\n")
	b.WriteString("req.on('error',e=>{console.error('REQUEST_ERROR:'+e.message);process.exit(1);});\n")
	b.WriteString("if(p.body)req.write(p.body);\n")
	b.WriteString("req.end();\n")
	return b.String(), nil
}

// parseSentinelResponse extracts the JSON response object between the
// sentinel markers. A missing or unparsable block is fatal.
func parseSentinelResponse(output string) (*Result, error) {
	start := strings.Index(output, responseStartMarker)
	end := strings.Index(output, responseEndMarker)
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("no response block found in debug container output: %s", truncate(output, 400))
	}
	block := strings.TrimSpace(output[start+len(responseStartMarker) : end])

	var payload struct {
		StatusCode int                    `json:"statusCode"`
		Headers    map[string]interface{} `json:"headers"`
		Body       string                 `json:"body"`
	}
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse response block from debug container: %w", err)
	}

	headers := http.Header{}
	for name, value := range payload.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(name, v)
		case []interface{}:
			for _, item := range v {
				headers.Add(name, fmt.Sprintf("%v", item))
			}
		default:
			headers.Add(name, fmt.Sprintf("%v", v))
		}
	}

	res := &Result{
		StatusCode: payload.StatusCode,
		Headers:    headers,
		Body:       payload.Body,
	}
	res.parseBody()
	return res, nil
}

// truncate shortens long diagnostic output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
