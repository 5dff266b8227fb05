package core

import "fmt"

// Mode selects which capabilities a supervisor run exposes.
type Mode string

const (
	// ModePlain dispatches to agents only.
	ModePlain Mode = "plain"
	// ModeTools adds the local tools (time lookup).
	ModeTools Mode = "tools"
	// ModeMCP adds remotely discovered tools.
	ModeMCP Mode = "mcp"
	// ModeMemory adds remote tools, memory tools and recall.
	ModeMemory Mode = "memory"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePlain, ModeTools, ModeMCP, ModeMemory:
		return m, nil
	case "":
		return ModePlain, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Durability selects the memory backend bound to a run.
type Durability string

const (
	DurabilityVolatile Durability = "volatile"
	DurabilityDurable  Durability = "durable"
)

// ParseDurability validates a durability name.
func ParseDurability(s string) (Durability, error) {
	switch d := Durability(s); d {
	case DurabilityVolatile, DurabilityDurable:
		return d, nil
	case "":
		return DurabilityVolatile, nil
	default:
		return "", fmt.Errorf("unknown memory durability %q", s)
	}
}
