package supervisor

import (
	"time"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/memory"
	"github.com/hupe1980/crewmesh/tool"
)

// LocalTools returns the tools the supervisor may call directly in mode.
// remote holds tools discovered from MCP servers.
func LocalTools(mode core.Mode, now func() time.Time, remote []tool.Tool) []tool.Tool {
	switch mode {
	case core.ModeTools:
		return []tool.Tool{tool.NewCurrentTimeTool(now)}
	case core.ModeMCP, core.ModeMemory:
		return append([]tool.Tool(nil), remote...)
	default:
		return nil
	}
}

func memoryTools(store memory.Store) []tool.Tool {
	return []tool.Tool{
		tool.NewManageMemoryTool(store),
		tool.NewSearchMemoryTool(store),
	}
}
