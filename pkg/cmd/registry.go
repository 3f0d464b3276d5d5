package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/planbook/planbook/pkg/registry"
)

// NewRegistry builds the component registry with the built-in agents and
// tools, then layers any plugins found under pluginsPath on top.
func NewRegistry(ctx context.Context, logger *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewDefaultRegistry(logger)

	if pluginsPath == "" {
		return reg
	}

	if _, err := os.Stat(pluginsPath); os.IsNotExist(err) {
		logger.DebugContext(ctx, "Plugins path does not exist, skipping plugin loading", "path", pluginsPath)

		return reg
	}

	agentPlugins, err := reg.LoadAgentPlugins(pluginsPath)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load agent plugins", "path", pluginsPath, "error", err)
	}

	for _, plugin := range agentPlugins {
		reg.RegisterAgent(plugin)
	}

	toolPlugins, err := reg.LoadToolPlugins(pluginsPath)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load tool plugins", "path", pluginsPath, "error", err)
	}

	for _, plugin := range toolPlugins {
		reg.RegisterTool(plugin)
	}

	return reg
}
