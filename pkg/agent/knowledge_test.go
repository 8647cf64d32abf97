package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/knowledge"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

func writeKnowledgeFixture(t *testing.T) *knowledge.Store {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills", "deploy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "deploy.md"), []byte(`---
name: deploy
description: how to deploy
---
Run the release pipeline, then verify the health endpoint.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "deploy", "frontend.md"), []byte(`---
name: frontend-deploy
description: frontend specifics
---
Build the bundle before releasing.
`), 0o644))

	return knowledge.NewStore(root)
}

// Knowledge pre-injection: the inventory of top-level documents lands in
// the system message before the first LLM call; subdirectory documents
// stay undiscovered until a read follows a reference.
func TestKnowledgeInventoryPreInjection(t *testing.T) {
	store := writeKnowledgeFixture(t)
	tools, err := knowledge.Tools(store)
	require.NoError(t, err)

	mock := llms.NewMockProvider(llms.TextStep("ok"))
	rt := NewRuntime(mock, config.DefaultSettings(), store)

	a := &Agent{Name: "operator", Capabilities: "You operate deployments.", Tools: tools}
	_, err = rt.Execute(context.Background(), a, "how do I deploy?", nil)
	require.NoError(t, err)

	system := mock.Requests()[0].SystemMessage.Text()
	assert.Contains(t, system, "deploy (deploy.md)")
	assert.Contains(t, system, "how to deploy")
	assert.NotContains(t, system, "frontend")
}

func TestKnowledgeProgressiveRead(t *testing.T) {
	store := writeKnowledgeFixture(t)
	tools, err := knowledge.Tools(store)
	require.NoError(t, err)

	mock := llms.NewMockProvider(
		llms.ToolCallStep(protocol.ToolCall{ID: "r1", Name: knowledge.ToolReadSkill,
			Args: map[string]any{"path": "deploy/frontend.md"}}),
		llms.ToolCallStep(protocol.ToolCall{ID: "r2", Name: knowledge.ToolReadSkill,
			Args: map[string]any{"path": "../../etc/passwd"}}),
		llms.TextStep("done"),
	)
	rt := NewRuntime(mock, config.DefaultSettings(), store)

	a := &Agent{Name: "operator", Capabilities: "You operate deployments.", Tools: tools}
	_, err = rt.Execute(context.Background(), a, "read the frontend skill", nil)
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 3)

	second := reqs[1].Messages
	subdirResult := second[len(second)-1]
	assert.Equal(t, protocol.RoleTool, subdirResult.Role)
	assert.Contains(t, subdirResult.Text(), "Build the bundle")

	third := reqs[2].Messages
	traversalResult := third[len(third)-1]
	assert.Contains(t, traversalResult.Text(), "ERROR:")
	assert.Contains(t, traversalResult.Text(), "escapes knowledge root")
}
