// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/shellstory/internal/prompts"
	"github.com/HendryAvila/shellstory/internal/resources"
	"github.com/HendryAvila/shellstory/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool, prompt and resource
// registered against deps.
func New(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"shellstory",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	// Sampling lets the default generator borrow the client's model.
	s.EnableSampling()

	register(s, deps)
	return s
}

// register adds every component and returns the tool names in
// registration order.
func register(s *server.MCPServer, deps *Deps) []string {
	var names []string

	// --- Tools ---

	writeStories := tools.NewWriteStoriesTool(deps.Pipeline)
	s.AddTool(writeStories.Definition(), writeStories.Handle)
	names = append(names, writeStories.Definition().Name)

	analyzeScope := tools.NewAnalyzeScopeTool(deps.Pipeline)
	s.AddTool(analyzeScope.Definition(), analyzeScope.Handle)
	names = append(names, analyzeScope.Definition().Name)

	listScreens := tools.NewListScreensTool(deps.Workspace, deps.Config.AssociateOptions())
	s.AddTool(listScreens.Definition(), listScreens.Handle)
	names = append(names, listScreens.Definition().Name)

	cacheStatus := tools.NewCacheStatusTool(deps.Cache)
	s.AddTool(cacheStatus.Definition(), cacheStatus.Handle)
	names = append(names, cacheStatus.Definition().Name)

	cacheClear := tools.NewCacheClearTool(deps.Cache)
	s.AddTool(cacheClear.Definition(), cacheClear.Handle)
	names = append(names, cacheClear.Definition().Name)

	// --- Prompts ---

	storiesPrompt := prompts.NewStoriesPrompt()
	s.AddPrompt(storiesPrompt.Definition(), storiesPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(deps.Cache)
	s.AddResource(resourceHandler.CacheStatusResource(), resourceHandler.HandleCacheStatus)

	return names
}

// serverInstructions tells the assistant how to use the server.
func serverInstructions() string {
	return `You have access to shellstory, an MCP server that turns design files into shell stories.

## WORKFLOW

1. list_design_screens: preview the screens of a design file in reading order, with their notes.
2. write_shell_stories: analyze every screen, decide whether scope is clear, and write a
   "Shell Stories" section to the work item.
3. If the run reports needs-clarification, the open questions were posted as a comment on the
   work item. Help the user answer them in a comment, then call write_shell_stories again.
   The scope analysis is regenerated once with the answers.

Use analyze_feature_scope to produce or refresh only the "Scope Analysis" section.

## CACHE

Screen analyses are cached per design file and rebuilt automatically when the design file
changes. design_cache_status shows what is cached; design_cache_clear forces a full re-analysis.

## FAILURES

A run that fails during screen analysis is usually transient (rate limits, timeouts).
Screens analyzed before the failure stay cached, so retrying is cheap.`
}
