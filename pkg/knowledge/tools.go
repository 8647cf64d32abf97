package knowledge

import (
	"context"

	"github.com/ensemble-ai/ensemble/pkg/tool"
)

// Tool names exposed to agents. There is deliberately no list_* tool; the
// inventory is pre-injected into the system prompt instead.
const (
	ToolReadSkill = "read_skill"
	ToolReadFact  = "read_fact"
)

type readArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path relative to the category root such as deploy.md or deploy/frontend.md"`
}

// Tools returns the read_skill and read_fact tools bound to the store.
// Read failures, including path traversal, surface as tool errors the
// model can recover from.
func Tools(store *Store) ([]*tool.Tool, error) {
	readSkill, err := tool.New(ToolReadSkill,
		"Read the full content of a skill document by its path.",
		&readArgs{}, readHandler(store, CategorySkills))
	if err != nil {
		return nil, err
	}

	readFact, err := tool.New(ToolReadFact,
		"Read the full content of a fact document by its path.",
		&readArgs{}, readHandler(store, CategoryFacts))
	if err != nil {
		return nil, err
	}

	return []*tool.Tool{readSkill, readFact}, nil
}

func readHandler(store *Store, category Category) tool.HandlerFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		return store.Read(category, path)
	}
}
