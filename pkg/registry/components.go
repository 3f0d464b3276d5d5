package registry

import (
	"log/slog"

	"github.com/planbook/planbook/pkg/agents/httpagent"
	filewrite_tool "github.com/planbook/planbook/pkg/tools/filewrite"
	httpreq_tool "github.com/planbook/planbook/pkg/tools/httpreq"
	log_tool "github.com/planbook/planbook/pkg/tools/log"
	transform_tool "github.com/planbook/planbook/pkg/tools/transform"
)

// NewDefaultRegistry returns a registry with every built-in tool and agent
// factory registered.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	reg := NewRegistry(logger)

	reg.RegisterTool(log_tool.NewFactory())
	reg.RegisterTool(httpreq_tool.NewFactory())
	reg.RegisterTool(filewrite_tool.NewFactory())
	reg.RegisterTool(transform_tool.NewFactory())

	reg.RegisterAgent(httpagent.NewFactory())

	return reg
}
