// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (shellstory://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/shellstory/internal/cache"
)

// CacheStatusURI addresses the cache overview.
const CacheStatusURI = "shellstory://cache/status"

// Handler manages resource endpoints.
type Handler struct {
	cache *cache.Cache
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(c *cache.Cache) *Handler {
	return &Handler{cache: c}
}

// CacheStatusResource returns the MCP resource definition for the cache
// overview.
func (h *Handler) CacheStatusResource() mcp.Resource {
	return mcp.NewResource(
		CacheStatusURI,
		"Design Cache Status",
		mcp.WithResourceDescription("Cached design files with their metadata and stored artifacts"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleCacheStatus returns every cache entry as JSON.
func (h *Handler) HandleCacheStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	keys, err := h.cache.Keys(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	entries := make([]*cache.Status, 0, len(keys))
	for _, k := range keys {
		st, err := h.cache.Status(ctx, k)
		if err != nil {
			return errorResource(req.Params.URI, err.Error()), nil
		}
		entries = append(entries, st)
	}

	data, err := json.MarshalIndent(map[string]any{"entries": entries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling cache status: %w", err)
	}
	return jsonResource(req.Params.URI, data), nil
}
