package main

import "github.com/alecthomas/kong"

var version = "dev"

// Globals are shared by every command.
type Globals struct {
	Config     string   `short:"c" type:"path" help:"Config file (yaml, json or toml)" env:"CREWMESH_CONFIG"`
	EnvFile    []string `default:".env" help:"Dotenv files loaded before configuration (repeatable)"`
	Mode       string   `short:"m" help:"Run mode: plain, tools, mcp or memory"`
	Durability string   `short:"d" help:"Memory durability: volatile or durable"`
	Mandatory  bool     `help:"Fail instead of degrading when the memory store is unreachable"`
	LogLevel   string   `help:"Log level: debug, info, warn or error"`
	Agents     bool     `name:"stream-agents" help:"Also stream the text agents write while they work"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Chat      ChatCmd      `cmd:"" default:"1" help:"Interactive chat with the supervisor"`
	Ask       AskCmd       `cmd:"" help:"Ask a single question and print the answer"`
	Tools     ToolsCmd     `cmd:"" help:"List the tools the supervisor can use in the selected mode"`
	Provision ProvisionCmd `cmd:"" help:"Create the durable memory schema"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

// ChatCmd runs the interactive loop.
type ChatCmd struct {
	ShowTools bool `default:"true" negatable:"" help:"Print tool activity records"`
}

// AskCmd answers one question.
type AskCmd struct {
	Question  []string `arg:"" help:"Question to ask"`
	ShowTools bool     `negatable:"" help:"Print tool activity records"`
}

// ToolsCmd lists the supervisor tools.
type ToolsCmd struct{}

// ProvisionCmd provisions the durable store.
type ProvisionCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
