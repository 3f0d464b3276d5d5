// Package registry manages the agent and tool factories available to plan runs.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/planbook/planbook/pkg/protocol"
)

type Registry struct {
	logger         *slog.Logger
	agentFactories map[string]protocol.AgentFactory
	toolFactories  map[string]protocol.ToolFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:         log,
		agentFactories: make(map[string]protocol.AgentFactory),
		toolFactories:  make(map[string]protocol.ToolFactory),
	}
}

func (r *Registry) LoadAgentPlugins(pluginsPath string) ([]protocol.AgentFactory, error) {
	return loadPlugin[protocol.AgentFactory](r.logger, pluginsPath, "Agent")
}

func (r *Registry) LoadToolPlugins(pluginsPath string) ([]protocol.ToolFactory, error) {
	return loadPlugin[protocol.ToolFactory](r.logger, pluginsPath, "Tool")
}

func (r *Registry) RegisterAgent(agentFactory protocol.AgentFactory) {
	r.agentFactories[agentFactory.ID()] = agentFactory
}

func (r *Registry) RegisterTool(toolFactory protocol.ToolFactory) {
	r.toolFactories[toolFactory.ID()] = toolFactory
}

func (r *Registry) CreateAgent(agentType string, config map[string]any) (protocol.Agent, error) {
	factory, ok := r.agentFactories[agentType]
	if !ok {
		return nil, fmt.Errorf("agent type '%s' not registered", agentType)
	}

	return factory.Create(config)
}

func (r *Registry) CreateTool(toolID string, config map[string]any) (protocol.Tool, error) {
	factory, ok := r.toolFactories[toolID]
	if !ok {
		return nil, fmt.Errorf("tool ID '%s' not registered", toolID)
	}

	return factory.Create(config)
}

// ToolSchema returns the input schema declared by a registered tool factory.
func (r *Registry) ToolSchema(toolID string) (map[string]any, bool) {
	factory, ok := r.toolFactories[toolID]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// AvailableTools lists the registered tool ids.
func (r *Registry) AvailableTools() []string {
	ids := make([]string, 0, len(r.toolFactories))
	for id := range r.toolFactories {
		ids = append(ids, id)
	}

	return ids
}

// AvailableAgents lists the registered agent ids.
func (r *Registry) AvailableAgents() []string {
	ids := make([]string, 0, len(r.agentFactories))
	for id := range r.agentFactories {
		ids = append(ids, id)
	}

	return ids
}

// HealthCheck reports whether the registry has any components to dispatch.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.agentFactories) == 0 && len(r.toolFactories) == 0 {
		return "no agents or tools registered", false
	}

	return "ok", true
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has wrong type", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
