package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/memory"
)

const (
	ManageMemoryToolName = "manage_memory"
	SearchMemoryToolName = "search_memory"

	defaultSearchLimit = 10
)

// MemoryToolOptions configure the memory tools.
type MemoryToolOptions struct {
	// Namespace overrides the run's namespace binding.
	Namespace core.Namespace
}

func memoryNamespace(tc *core.ToolContext, opts MemoryToolOptions) (core.Namespace, error) {
	ns := opts.Namespace
	if len(ns) == 0 {
		ns = tc.Namespace()
	}
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("memory namespace: %w", err)
	}
	return ns, nil
}

type manageMemoryArgs struct {
	Content string `json:"content" description:"The fact to remember"`
}

type searchMemoryArgs struct {
	Query string `json:"query" description:"What to look for"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of results (default 10)"`
}

type memoryHit struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// NewManageMemoryTool returns a tool that appends a fact to the store.
func NewManageMemoryTool(store memory.Store, optFns ...func(o *MemoryToolOptions)) *FunctionTool {
	var opts MemoryToolOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return NewTypedFunctionTool(
		ManageMemoryToolName,
		"Store a durable fact about the user or the conversation (preferences, names, dates, decisions) so it can be recalled in later conversations.",
		func(tc *core.ToolContext, args manageMemoryArgs) (any, error) {
			if strings.TrimSpace(args.Content) == "" {
				return nil, NewToolError(ManageMemoryToolName, "content must not be empty", CodeValidation)
			}
			ns, err := memoryNamespace(tc, opts)
			if err != nil {
				return nil, err
			}
			id, err := store.Write(tc.Context(), ns, args.Content)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("created memory %s", id), nil
		},
	)
}

// NewSearchMemoryTool returns a tool that recalls facts by similarity.
func NewSearchMemoryTool(store memory.Store, optFns ...func(o *MemoryToolOptions)) *FunctionTool {
	var opts MemoryToolOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return NewTypedFunctionTool(
		SearchMemoryToolName,
		"Search previously stored facts about the user or past conversations.",
		func(tc *core.ToolContext, args searchMemoryArgs) (any, error) {
			limit := args.Limit
			if limit <= 0 {
				limit = defaultSearchLimit
			}
			ns, err := memoryNamespace(tc, opts)
			if err != nil {
				return nil, err
			}
			recs, err := store.Search(tc.Context(), ns, args.Query, limit)
			if err != nil {
				return nil, err
			}

			hits := make([]memoryHit, 0, len(recs))
			for _, r := range recs {
				hits = append(hits, memoryHit{ID: r.ID, Content: r.Content, Score: r.Score})
			}
			return hits, nil
		},
	)
}
