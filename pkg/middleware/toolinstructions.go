package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensemble-ai/ensemble/pkg/knowledge"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

const (
	knowledgeSystemHeading = "## Knowledge System"
	skillsHeading          = "## Skills"
	factsHeading           = "## Facts"
)

const skillsInstructions = `You have access to skill documents describing procedures you can follow.
Call read_skill(path) with a path from the skills inventory to retrieve a procedure.
Read a skill before attempting a task it covers.`

const factsInstructions = `You have access to fact documents holding reference data.
Call read_fact(path) with a path from the facts inventory to retrieve reference data.
Prefer reading a fact over guessing domain specifics.`

const knowledgeSystemInstructions = `You have access to a knowledge system with two kinds of documents:
- Skills: procedures to follow. Retrieve with read_skill(path).
- Facts: reference data. Retrieve with read_fact(path).
The inventories below list available documents. Documents may reference
further documents by path; read those with the same tools.`

// ToolInstructions prepends knowledge usage instructions and the document
// inventory to the system message. The inventory is read once at
// construction and cached; startup-phase blocking I/O is fine here.
type ToolInstructions struct {
	block string
}

// NewToolInstructions builds the middleware for an agent whose tool names
// include read_skill and/or read_fact. Returns nil when the agent has no
// knowledge tools; the caller skips the middleware entirely.
func NewToolInstructions(store *knowledge.Store, toolNames []string) (*ToolInstructions, error) {
	hasSkills := false
	hasFacts := false
	for _, name := range toolNames {
		switch name {
		case knowledge.ToolReadSkill:
			hasSkills = true
		case knowledge.ToolReadFact:
			hasFacts = true
		}
	}
	if !hasSkills && !hasFacts {
		return nil, nil
	}

	var sb strings.Builder
	switch {
	case hasSkills && hasFacts:
		// The combined block takes precedence over the per-category ones.
		sb.WriteString(knowledgeSystemHeading + "\n\n")
		sb.WriteString(knowledgeSystemInstructions + "\n")
	case hasSkills:
		sb.WriteString(skillsHeading + "\n\n")
		sb.WriteString(skillsInstructions + "\n")
	default:
		sb.WriteString(factsHeading + "\n\n")
		sb.WriteString(factsInstructions + "\n")
	}

	if hasSkills {
		section, err := inventorySection(store, knowledge.CategorySkills, "Skills inventory")
		if err != nil {
			return nil, err
		}
		sb.WriteString("\n" + section)
	}
	if hasFacts {
		section, err := inventorySection(store, knowledge.CategoryFacts, "Facts inventory")
		if err != nil {
			return nil, err
		}
		sb.WriteString("\n" + section)
	}

	return &ToolInstructions{block: sb.String()}, nil
}

// Block returns the cached instruction and inventory text.
func (m *ToolInstructions) Block() string {
	return m.block
}

func inventorySection(store *knowledge.Store, category knowledge.Category, title string) (string, error) {
	entries, err := store.ListTopLevel(category)
	if err != nil {
		return "", fmt.Errorf("failed to read %s inventory: %w", category, err)
	}

	var sb strings.Builder
	sb.WriteString(title + ":\n")
	if len(entries) == 0 {
		sb.WriteString("(none)\n")
		return sb.String(), nil
	}
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("- %s (%s) — %s\n", entry.Name, entry.RelativePath, entry.Description))
	}
	return sb.String(), nil
}

func (m *ToolInstructions) WrapModelCall(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error) {
	var system string
	if req.SystemMessage != nil {
		system = req.SystemMessage.Text()
	}

	// Idempotent: the block is static per process run.
	if !strings.Contains(system, m.block) {
		if system == "" {
			system = m.block
		} else {
			system = m.block + "\n\n" + system
		}
		msg := protocol.CreateSystemMessage(system)
		req.SystemMessage = &msg
	}

	return next(ctx, req)
}
