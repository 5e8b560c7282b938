package registry

import (
	conditionnode "github.com/dukex/loyalflow/pkg/nodes/condition"
	"github.com/dukex/loyalflow/pkg/nodes/httprequest"
	"github.com/dukex/loyalflow/pkg/nodes/message"
	"github.com/dukex/loyalflow/pkg/nodes/sessionop"
	"github.com/dukex/loyalflow/pkg/nodes/subworkflow"
	"github.com/dukex/loyalflow/pkg/nodes/terminal"
	"github.com/dukex/loyalflow/pkg/nodes/waitinput"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(message.NewFactory())
	r.RegisterNode(conditionnode.NewFactory())
	r.RegisterNode(sessionop.NewFactory())
	r.RegisterNode(httprequest.NewFactory())
	r.RegisterNode(waitinput.NewFactory())
	r.RegisterNode(subworkflow.NewFactory())
	r.RegisterNode(terminal.NewFactory())
}
