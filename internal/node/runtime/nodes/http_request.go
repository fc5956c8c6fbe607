package nodes

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/pkg/template"
)

const defaultHTTPTimeout = 30 * time.Second

func init() {
	runtime.Register(runtime.Manifest{
		Type:        model.NodeTypeHTTPRequest,
		Name:        "HTTP Request",
		Description: "Calls an HTTP endpoint and exposes status, headers and body",
		Category:    "action",
	}, func(node model.Node, deps runtime.Deps) runtime.Handler {
		client := deps.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		return &httpRequest{node: node, client: client}
	})
}

type httpRequest struct {
	node   model.Node
	client *http.Client
}

// Execute performs the configured request. Variable placeholders are
// substituted into the URL and body before sending. Transport errors and
// non-2xx responses both fail the node.
func (n *httpRequest) Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any) {
	cfg := n.node.Config
	method := strings.ToUpper(model.ConfigString(cfg, "method", http.MethodGet))
	url := model.ConfigString(cfg, "url", "")
	if url == "" {
		return fail("url is required")
	}

	values := ec.VariableValues()
	url = template.Render(url, values)

	var body io.Reader
	if raw := model.ConfigString(cfg, "body", ""); raw != "" {
		body = strings.NewReader(template.Render(raw, values))
	}

	timeout := defaultHTTPTimeout
	if secs := model.ConfigInt(cfg, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return fail("build request: " + err.Error())
	}
	for k, v := range model.ConfigMap(cfg, "headers") {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fail("request failed: " + err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("read response: " + err.Error())
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	output := map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(respBody),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		output["error"] = "unexpected status " + resp.Status
		return model.NodeStatusFailed, output
	}
	return model.NodeStatusSuccess, output
}
