package flowadmin

import (
	"time"

	"github.com/tenauth/flow-idm/pkg/flowgraph"
)

// Flow pairs a stored graph definition with its compiled plan.
type Flow struct {
	Definition flowgraph.GraphDefinition `json:"definition"`
	Plan       *flowgraph.CompiledPlan   `json:"plan"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}
