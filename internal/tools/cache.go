package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/shellstory/internal/cache"
)

// CacheStatusTool handles the design_cache_status MCP tool.
type CacheStatusTool struct {
	cache *cache.Cache
}

// NewCacheStatusTool creates a CacheStatusTool.
func NewCacheStatusTool(c *cache.Cache) *CacheStatusTool {
	return &CacheStatusTool{cache: c}
}

// Definition returns the MCP tool definition for registration.
func (t *CacheStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("design_cache_status",
		mcp.WithDescription(
			"Show what is cached for a design file: the modification time the cache "+
				"was built for and every stored image, analysis and notes artifact. "+
				"Without file_key, every cached file is listed.",
		),
		withFileKey(false),
	)
}

// Handle processes the design_cache_status tool call.
func (t *CacheStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileKey := strings.TrimSpace(req.GetString(paramFileKey, ""))
	keys := []string{fileKey}
	if fileKey == "" {
		var err error
		if keys, err = t.cache.Keys(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list cache: %v", err)), nil
		}
	}

	statuses := make([]*cache.Status, 0, len(keys))
	for _, k := range keys {
		st, err := t.cache.Status(ctx, k)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read cache for %s: %v", k, err)), nil
		}
		statuses = append(statuses, st)
	}
	return jsonResult(statuses)
}

// CacheClearTool handles the design_cache_clear MCP tool.
type CacheClearTool struct {
	cache *cache.Cache
}

// NewCacheClearTool creates a CacheClearTool.
func NewCacheClearTool(c *cache.Cache) *CacheClearTool {
	return &CacheClearTool{cache: c}
}

// Definition returns the MCP tool definition for registration.
func (t *CacheClearTool) Definition() mcp.Tool {
	return mcp.NewTool("design_cache_clear",
		mcp.WithDescription(
			"Delete every cached artifact for a design file so the next run analyzes "+
				"all screens again. Normally unnecessary: the cache rebuilds itself when "+
				"the design file changes.",
		),
		withFileKey(true),
	)
}

// Handle processes the design_cache_clear tool call.
func (t *CacheClearTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileKey := strings.TrimSpace(req.GetString(paramFileKey, ""))
	if fileKey == "" {
		return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", paramFileKey)), nil
	}
	if err := t.cache.Invalidate(ctx, fileKey); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared cache for %s.", fileKey)), nil
}
