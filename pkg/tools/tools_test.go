package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/security"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2", "3"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"10 % 3", "1"},
		{"-5 + 3", "-2"},
		{"-(2 + 3)", "-5"},
		{"1 << 4", "16"},
		{"256 >> 2", "64"},
		{"1 + 2 << 1", "6"},
		{"3.5 * 2", "7"},
		{"  7  ", "7"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Evaluate(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, formatNumber(got))
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr string
	}{
		{"1 / 0", "division by zero"},
		{"5 % 0", "division by zero"},
		{"2.5 % 2", "integer operands"},
		{"1.5 << 1", "integer operands"},
		{"1 << 64", "out of range"},
		{"(1 + 2", "closing parenthesis"},
		{"1 +", "unexpected end"},
		{"", "unexpected end"},
		{"2 ** 3", "unexpected"},
		{"abc", "unexpected"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Evaluate(tc.expr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCalculateToolReturnsErrorStrings(t *testing.T) {
	calc, err := CalculateTool()
	require.NoError(t, err)

	out, err := calc.Handler(context.Background(), map[string]any{"expression": "6 * 7"})
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	out, err = calc.Handler(context.Background(), map[string]any{"expression": "1 / 0"})
	require.NoError(t, err)
	assert.Contains(t, out, "Error:")
}

func TestFetchFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			"2024-01-01 INFO starting",
			"2024-01-01 ERROR disk full",
			"2024-01-02 INFO recovered",
			"2024-01-02 ERROR again",
			"2024-01-03 INFO done",
		}
		_, _ = w.Write([]byte(strings.Join(lines, "\n")))
	}))
	defer server.Close()

	f := NewFetcher(nil, nil)
	fetch, err := f.FetchFileTool()
	require.NoError(t, err)

	t.Run("full content", func(t *testing.T) {
		out, err := fetch.Handler(context.Background(), map[string]any{"url": server.URL})
		require.NoError(t, err)
		assert.Contains(t, out, "starting")
		assert.Contains(t, out, "done")
	})

	t.Run("grep filter", func(t *testing.T) {
		out, err := fetch.Handler(context.Background(), map[string]any{
			"url": server.URL, "grep_pattern": "ERROR",
		})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01 ERROR disk full\n2024-01-02 ERROR again", out)
	})

	t.Run("tail wins over head", func(t *testing.T) {
		out, err := fetch.Handler(context.Background(), map[string]any{
			"url": server.URL, "tail_lines": float64(1), "head_lines": float64(2),
		})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-03 INFO done", out)
	})

	t.Run("head only", func(t *testing.T) {
		out, err := fetch.Handler(context.Background(), map[string]any{
			"url": server.URL, "head_lines": float64(1),
		})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01 INFO starting", out)
	})

	t.Run("invalid regex is a result string", func(t *testing.T) {
		out, err := fetch.Handler(context.Background(), map[string]any{
			"url": server.URL, "grep_pattern": "([",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "Invalid grep pattern")
	})
}

func TestFetchFileHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(nil, nil)
	fetch, err := f.FetchFileTool()
	require.NoError(t, err)

	out, err := fetch.Handler(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.Equal(t, "Error: HTTP 404", out)
}

func TestFetchFileBlockedByPolicy(t *testing.T) {
	policy := security.NewPolicy(config.URLSecuritySettings{
		Enabled:      true,
		AllowDomains: []string{"example.com"},
	})

	f := NewFetcher(policy, nil)
	fetch, err := f.FetchFileTool()
	require.NoError(t, err)

	out, err := fetch.Handler(context.Background(), map[string]any{"url": "https://evil.test/secrets"})
	require.NoError(t, err)
	assert.Contains(t, out, "URL blocked")
}

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"b":2,"a":{"nested":true}}`))
	}))
	defer server.Close()

	f := NewFetcher(nil, nil)
	fetch, err := f.FetchJSONTool()
	require.NoError(t, err)

	out, err := fetch.Handler(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.Contains(t, out, "\"nested\": true")
	assert.True(t, strings.Contains(out, "\n"), "output is pretty-printed")
}

func TestFetchJSONInvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	f := NewFetcher(nil, nil)
	fetch, err := f.FetchJSONTool()
	require.NoError(t, err)

	out, err := fetch.Handler(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.Contains(t, out, "Error parsing JSON")
}
