package middleware

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/pkg/knowledge"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

func passthrough() (Next, *llms.Request) {
	captured := &llms.Request{}
	return func(ctx context.Context, req *llms.Request) (*llms.Response, error) {
		*captured = *req
		return &llms.Response{Text: "ok", Message: protocol.CreateAssistantMessage("ok")}, nil
	}, captured
}

func systemText(req *llms.Request) string {
	if req.SystemMessage == nil {
		return ""
	}
	return req.SystemMessage.Text()
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return Func(func(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error) {
			order = append(order, name+" in")
			resp, err := next(ctx, req)
			order = append(order, name+" out")
			return resp, err
		})
	}

	chain := NewChain(tag("first"), tag("second"))
	chain.Append(tag("third"))

	next, _ := passthrough()
	_, err := chain.Then(next)(context.Background(), &llms.Request{})
	require.NoError(t, err)

	// First registered is outermost: enters first, sees the response last.
	assert.Equal(t, []string{
		"first in", "second in", "third in",
		"third out", "second out", "first out",
	}, order)
}

func TestDatetimeContext_AppendsAtEnd(t *testing.T) {
	mw := NewDatetimeContext(DatetimeMinimal)
	system := protocol.CreateSystemMessage("You are a weather specialist.")
	req := &llms.Request{SystemMessage: &system}

	next, captured := passthrough()
	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)

	got := systemText(captured)
	assert.True(t, strings.HasPrefix(got, "You are a weather specialist."))
	assert.Contains(t, got, "## Current DateTime Context")
	assert.True(t, strings.HasSuffix(got, "<!-- datetime:end -->"))
}

func TestDatetimeContext_Idempotent(t *testing.T) {
	mw := NewDatetimeContext(DatetimeMinimal)
	system := protocol.CreateSystemMessage("base prompt")
	req := &llms.Request{SystemMessage: &system}

	next, captured := passthrough()
	for i := 0; i < 3; i++ {
		_, err := mw.WrapModelCall(context.Background(), req, next)
		require.NoError(t, err)
		req.SystemMessage = captured.SystemMessage
	}

	got := systemText(captured)
	assert.Equal(t, 1, strings.Count(got, "<!-- datetime:start -->"))
	assert.Equal(t, 1, strings.Count(got, "<!-- datetime:end -->"))
	assert.Equal(t, 1, strings.Count(got, "base prompt"))
}

func TestDatetimeContext_RefreshAcrossTurns(t *testing.T) {
	current := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	mw := NewDatetimeContext(DatetimeMinimal)
	mw.TTL = time.Millisecond
	mw.Now = func() time.Time { return current }

	system := protocol.CreateSystemMessage("base")
	req := &llms.Request{SystemMessage: &system}
	next, captured := passthrough()

	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)
	first := systemText(captured)

	current = current.Add(5 * time.Second)
	req.SystemMessage = captured.SystemMessage
	_, err = mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)
	second := systemText(captured)

	assert.NotEqual(t, first, second)
	assert.Contains(t, first, "10:00:00")
	assert.Contains(t, second, "10:00:05")
	assert.NotContains(t, second, "10:00:00 UTC")
	assert.Equal(t, 1, strings.Count(second, "<!-- datetime:start -->"))
}

func TestDatetimeContext_CacheWithinTTL(t *testing.T) {
	current := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	mw := NewDatetimeContext(DatetimeMinimal)
	mw.Now = func() time.Time { return current }

	first := mw.block()
	current = current.Add(10 * time.Second)
	second := mw.block()

	// Within the 60s TTL the cached string is reused.
	assert.Equal(t, first, second)
}

func TestDatetimeContext_FullMode(t *testing.T) {
	mw := NewDatetimeContext(DatetimeFull)
	mw.Now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	block := mw.block()
	assert.Contains(t, block, "Yesterday: 2026-08-23")
	assert.Contains(t, block, "Start of week: 2026-08-24")
	assert.Contains(t, block, "Start of month: 2026-08-01")
	assert.Contains(t, block, "Start of last month: 2026-07-01")
	assert.Contains(t, block, "Phrase guide:")
}

func TestDatetimeContext_CustomPhraseGuide(t *testing.T) {
	mw := NewDatetimeContext(DatetimeFull)
	mw.PhraseGuide = "Guia de frases: hoy es la fecha actual"

	block := mw.block()
	assert.Contains(t, block, "Guia de frases")
	assert.NotContains(t, block, "Phrase guide:")
}

func knowledgeFixture(t *testing.T, withDocs bool) *knowledge.Store {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills", "deploy"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "facts"), 0o755))

	if withDocs {
		require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "deploy.md"),
			[]byte("---\nname: deploy\ndescription: how to deploy\n---\nbody\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "deploy", "frontend.md"),
			[]byte("---\nname: deploy-frontend\ndescription: frontend specifics\n---\nbody\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "facts", "regions.md"),
			[]byte("---\nname: regions\ndescription: deployment regions\n---\nbody\n"), 0o644))
	}
	return knowledge.NewStore(root)
}

func TestToolInstructions_NoKnowledgeTools(t *testing.T) {
	store := knowledgeFixture(t, true)

	mw, err := NewToolInstructions(store, []string{"get_weather"})
	require.NoError(t, err)
	assert.Nil(t, mw)
}

func TestToolInstructions_CombinedPrecedence(t *testing.T) {
	store := knowledgeFixture(t, true)

	mw, err := NewToolInstructions(store, []string{"read_skill", "read_fact"})
	require.NoError(t, err)
	require.NotNil(t, mw)

	block := mw.Block()
	assert.Contains(t, block, "## Knowledge System")
	assert.NotContains(t, block, "## Skills\n")
	assert.Contains(t, block, "deploy (deploy.md)")
	assert.Contains(t, block, "regions (regions.md)")
	// Progressive disclosure: subdirectory documents are not advertised.
	assert.NotContains(t, block, "frontend")
}

func TestToolInstructions_SkillsOnly(t *testing.T) {
	store := knowledgeFixture(t, true)

	mw, err := NewToolInstructions(store, []string{"read_skill"})
	require.NoError(t, err)
	require.NotNil(t, mw)

	block := mw.Block()
	assert.Contains(t, block, "## Skills")
	assert.NotContains(t, block, "## Knowledge System")
	assert.NotContains(t, block, "read_fact")
}

func TestToolInstructions_EmptyInventory(t *testing.T) {
	store := knowledgeFixture(t, false)

	mw, err := NewToolInstructions(store, []string{"read_skill", "read_fact"})
	require.NoError(t, err)
	require.NotNil(t, mw)

	assert.Contains(t, mw.Block(), "Skills inventory:\n(none)")
	assert.Contains(t, mw.Block(), "Facts inventory:\n(none)")
}

func TestToolInstructions_PrependsIdempotently(t *testing.T) {
	store := knowledgeFixture(t, true)
	mw, err := NewToolInstructions(store, []string{"read_skill", "read_fact"})
	require.NoError(t, err)

	system := protocol.CreateSystemMessage("agent capabilities")
	req := &llms.Request{SystemMessage: &system}
	next, captured := passthrough()

	for i := 0; i < 2; i++ {
		_, err := mw.WrapModelCall(context.Background(), req, next)
		require.NoError(t, err)
		req.SystemMessage = captured.SystemMessage
	}

	got := systemText(captured)
	assert.Equal(t, 1, strings.Count(got, "## Knowledge System"))
	// Injected at the start, capabilities after.
	assert.True(t, strings.HasPrefix(got, "## Knowledge System"))
	assert.Contains(t, got, "agent capabilities")
}

func longConversation(n int) []protocol.Message {
	messages := make([]protocol.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			messages = append(messages, protocol.CreateUserMessage(strings.Repeat("question ", 50)))
		} else {
			messages = append(messages, protocol.CreateAssistantMessage(strings.Repeat("answer ", 50)))
		}
	}
	return messages
}

func TestSummarization_BelowThresholdNoOp(t *testing.T) {
	summarizer := llms.NewMockProvider(llms.TextStep("a synopsis"))
	mw := NewSummarization(summarizer, 1000000, 2)

	req := &llms.Request{Messages: longConversation(10)}
	next, captured := passthrough()
	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)

	assert.Len(t, captured.Messages, 10)
	assert.Empty(t, summarizer.Requests())
}

func TestSummarization_KeepsLastK(t *testing.T) {
	summarizer := llms.NewMockProvider(llms.TextStep("a synopsis of the prefix"))
	mw := NewSummarization(summarizer, 10, 3)

	req := &llms.Request{Messages: longConversation(10)}
	next, captured := passthrough()
	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 4)
	first := captured.Messages[0]
	assert.Equal(t, protocol.RoleSystem, first.Role)
	assert.True(t, strings.HasPrefix(first.Content, SummaryMarker))
	assert.Contains(t, first.Content, "a synopsis of the prefix")
	// The last K survive verbatim.
	original := longConversation(10)
	assert.Equal(t, original[7:], captured.Messages[1:])
}

func TestSummarization_KeepZero(t *testing.T) {
	summarizer := llms.NewMockProvider(llms.TextStep("everything compressed"))
	mw := NewSummarization(summarizer, 10, 0)

	req := &llms.Request{Messages: longConversation(6)}
	next, captured := passthrough()
	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 1)
	assert.True(t, strings.HasPrefix(captured.Messages[0].Content, SummaryMarker))
}

func TestSummarization_ComposesWithPriorSummary(t *testing.T) {
	summarizer := llms.NewMockProvider(llms.TextStep("second synopsis"))
	mw := NewSummarization(summarizer, 10, 2)

	messages := []protocol.Message{
		protocol.CreateSystemMessage(SummaryMarker + "\nfirst synopsis"),
	}
	messages = append(messages, longConversation(6)...)

	req := &llms.Request{Messages: messages}
	next, captured := passthrough()
	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)

	// The prior summary flowed into the summarizer transcript.
	summarizerReqs := summarizer.Requests()
	require.Len(t, summarizerReqs, 1)
	assert.Contains(t, summarizerReqs[0].Messages[0].Content, "first synopsis")

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, 1, strings.Count(captured.Messages[0].Content, SummaryMarker))
}

func TestSummarization_FailureFallsThrough(t *testing.T) {
	summarizer := llms.NewMockProvider(llms.ScriptStep{Err: &llms.Error{Kind: llms.ErrServer, Message: "boom"}})
	mw := NewSummarization(summarizer, 10, 2)

	req := &llms.Request{Messages: longConversation(8)}
	next, captured := passthrough()
	_, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)

	// Original messages pass through untouched.
	assert.Len(t, captured.Messages, 8)
}

func TestPromptDebug_PassesThrough(t *testing.T) {
	mw := NewPromptDebug(50, true)
	system := protocol.CreateSystemMessage(strings.Repeat("x", 200))
	req := &llms.Request{
		SystemMessage: &system,
		Messages:      []protocol.Message{protocol.CreateUserMessage("hello")},
	}

	next, captured := passthrough()
	resp, err := mw.WrapModelCall(context.Background(), req, next)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, system.Content, systemText(captured))
}

func TestPromptDebug_Truncate(t *testing.T) {
	mw := NewPromptDebug(5, true)
	assert.Equal(t, "abcde... (truncated)", mw.truncate("abcdefgh"))
	assert.Equal(t, "abc", mw.truncate("abc"))

	unlimited := NewPromptDebug(0, true)
	assert.Equal(t, strings.Repeat("y", 100), unlimited.truncate(strings.Repeat("y", 100)))
}

func TestCountTokens_Fallback(t *testing.T) {
	// Unknown model without network still produces an estimate.
	n := CountTokens("totally-unknown-model", strings.Repeat("word ", 100))
	assert.Greater(t, n, 0)
}
