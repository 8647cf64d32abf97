// Package tools provides the built-in leaf tools agents can be given out
// of the box: remote file fetching, JSON fetching and arithmetic.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ensemble-ai/ensemble/pkg/httpclient"
	"github.com/ensemble-ai/ensemble/pkg/security"
	"github.com/ensemble-ai/ensemble/pkg/tool"
)

// Tool names.
const (
	ToolFetchFile = "fetch_file"
	ToolFetchJSON = "fetch_json"
	ToolCalculate = "calculate"
)

// Remote responses are capped so a runaway file cannot blow up the
// conversation context.
const maxFetchBytes = 4 << 20

type fetchFileArgs struct {
	URL         string `json:"url" jsonschema:"required,description=URL to fetch the file from"`
	GrepPattern string `json:"grep_pattern,omitempty" jsonschema:"description=Optional regex; only matching lines are returned"`
	TailLines   int    `json:"tail_lines,omitempty" jsonschema:"description=Return only the last N lines"`
	HeadLines   int    `json:"head_lines,omitempty" jsonschema:"description=Return only the first N lines"`
}

type fetchJSONArgs struct {
	URL string `json:"url" jsonschema:"required,description=URL to fetch JSON from"`
}

// Fetcher builds the remote tools. The security policy gates every URL;
// the HTTP client supplies retries and context-aware backoff.
type Fetcher struct {
	policy *security.Policy
	client *httpclient.Client
}

func NewFetcher(policy *security.Policy, client *httpclient.Client) *Fetcher {
	if client == nil {
		client = httpclient.New()
	}
	return &Fetcher{policy: policy, client: client}
}

// FetchFileTool fetches a remote file with optional line filtering.
// HTTP and network failures come back as result strings so the model can
// recover; blocked URLs are tool errors.
func (f *Fetcher) FetchFileTool() (*tool.Tool, error) {
	return tool.New(ToolFetchFile,
		"Fetch a file from a URL, with optional regex line filter and head/tail truncation.",
		fetchFileArgs{}, f.fetchFile)
}

// FetchJSONTool fetches a URL with an Accept: application/json header and
// pretty-prints the result.
func (f *Fetcher) FetchJSONTool() (*tool.Tool, error) {
	return tool.New(ToolFetchJSON,
		"Fetch JSON from a URL and return it pretty-printed.",
		fetchJSONArgs{}, f.fetchJSON)
}

func (f *Fetcher) fetchFile(ctx context.Context, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	pattern, _ := args["grep_pattern"].(string)
	tail := intArg(args, "tail_lines")
	head := intArg(args, "head_lines")

	body, errText := f.get(ctx, url, "")
	if errText != "" {
		return errText, nil
	}

	lines := strings.Split(body, "\n")

	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Sprintf("Invalid grep pattern: %v", err), nil
		}
		filtered := lines[:0]
		for _, line := range lines {
			if re.MatchString(line) {
				filtered = append(filtered, line)
			}
		}
		lines = filtered
	}

	switch {
	case tail > 0 && tail < len(lines):
		lines = lines[len(lines)-tail:]
	case tail == 0 && head > 0 && head < len(lines):
		lines = lines[:head]
	}

	return strings.Join(lines, "\n"), nil
}

func (f *Fetcher) fetchJSON(ctx context.Context, args map[string]any) (string, error) {
	url, _ := args["url"].(string)

	body, errText := f.get(ctx, url, "application/json")
	if errText != "" {
		return errText, nil
	}

	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Sprintf("Error parsing JSON: %v", err), nil
	}
	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error formatting JSON: %v", err), nil
	}
	return string(pretty), nil
}

// get validates the URL, performs the request and returns the body, or a
// non-empty error string for the model.
func (f *Fetcher) get(ctx context.Context, url, accept string) (body, errText string) {
	if f.policy != nil {
		if err := f.policy.Validate(url); err != nil {
			return "", fmt.Sprintf("URL blocked: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Sprintf("Invalid URL: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Sprintf("Network error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Sprintf("Error: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Sprintf("Error reading response: %v", err)
	}
	return string(data), ""
}

// intArg reads a numeric argument; JSON numbers decode as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
