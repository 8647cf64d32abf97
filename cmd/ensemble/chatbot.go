package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ensemble-ai/ensemble/pkg/agent"
	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/graph"
	"github.com/ensemble-ai/ensemble/pkg/httpclient"
	"github.com/ensemble-ai/ensemble/pkg/knowledge"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/logger"
	"github.com/ensemble-ai/ensemble/pkg/security"
	"github.com/ensemble-ai/ensemble/pkg/tool"
	"github.com/ensemble-ai/ensemble/pkg/tools"
)

// knowledgeDir is the conventional per-chatbot knowledge root. Present
// skills/ or facts/ subdirectories enable the knowledge tools.
const knowledgeDir = "knowledge"

const assistantCapabilities = `You are a general-purpose research assistant.
You can fetch remote files and JSON APIs, evaluate arithmetic, and consult
the knowledge base when one is available. Use your tools for anything you
cannot answer from the conversation alone.`

// Chatbot bundles the process-wide engine handles one command works with.
type Chatbot struct {
	Executor *graph.Executor
	Registry *agent.Registry

	provider llms.Provider
}

func (b *Chatbot) Close() {
	if err := b.provider.Close(); err != nil {
		logger.GetLogger().Warn("provider close failed", "error", err)
	}
}

// buildChatbot wires the default chatbot: an OpenAI-compatible provider,
// the built-in assistant specialist, and the supervisor/formatter graph.
func buildChatbot(settings *config.Settings) (*Chatbot, error) {
	provider := llms.NewOpenAIProvider(settings.LLMBaseURL, settings.LLMAPIKey, settings.LLMModel)

	store := openKnowledgeStore()
	runtime := agent.NewRuntime(provider, settings, store)

	assistant, err := buildAssistant(settings, store)
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry()
	if err := registry.Register(assistant, false); err != nil {
		return nil, err
	}

	return &Chatbot{
		Executor: graph.NewExecutor(runtime, registry, agent.FormatterPrompt{}),
		Registry: registry,
		provider: provider,
	}, nil
}

// buildAssistant assembles the built-in specialist from the settings:
// remote tools behind the URL security policy, the calculator, and the
// knowledge tools when a knowledge directory is present.
func buildAssistant(settings *config.Settings, store *knowledge.Store) (*agent.Agent, error) {
	policy := security.NewPolicy(settings.URLSecurity)
	fetcher := tools.NewFetcher(policy, httpclient.New())

	fetchFile, err := fetcher.FetchFileTool()
	if err != nil {
		return nil, err
	}
	fetchJSON, err := fetcher.FetchJSONTool()
	if err != nil {
		return nil, err
	}
	calculate, err := tools.CalculateTool()
	if err != nil {
		return nil, err
	}

	agentTools := []*tool.Tool{fetchFile, fetchJSON, calculate}
	if store != nil {
		knowledgeTools, err := knowledge.Tools(store)
		if err != nil {
			return nil, err
		}
		agentTools = append(agentTools, knowledgeTools...)
	}

	a := &agent.Agent{
		Name:         "assistant",
		Capabilities: assistantCapabilities,
		Tools:        agentTools,
	}

	// Per-agent extras override engine defaults, e.g.
	// assistant: {recursion_limit: 100}.
	if extras, ok := settings.ExtrasFor(a.Name); ok {
		if limit, ok := intExtra(extras, "recursion_limit"); ok {
			a.RecursionLimit = limit
		}
	}
	return a, nil
}

// openKnowledgeStore returns a store when the conventional knowledge
// directory exists in the working directory, nil otherwise.
func openKnowledgeStore() *knowledge.Store {
	for _, category := range []knowledge.Category{knowledge.CategorySkills, knowledge.CategoryFacts} {
		if info, err := os.Stat(filepath.Join(knowledgeDir, string(category))); err == nil && info.IsDir() {
			logger.GetLogger().Info("knowledge base enabled", "dir", knowledgeDir)
			return knowledge.NewStore(knowledgeDir)
		}
	}
	return nil
}

func intExtra(extras map[string]any, key string) (int, bool) {
	switch v := extras[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		if v, present := extras[key]; present {
			logger.GetLogger().Warn("ignoring non-integer extra", "key", key, "value", fmt.Sprintf("%v", v))
		}
		return 0, false
	}
}
