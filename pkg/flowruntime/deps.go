package flowruntime

import (
	"context"

	"github.com/tenauth/flow-idm/pkg/condition"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
)

// CredentialVerifier validates user-submitted credentials for auth nodes
// (login, mfa, register). Implementations live outside this package.
type CredentialVerifier interface {
	Verify(ctx context.Context, nodeType flowgraph.NodeType, config map[string]any, rc *condition.RuntimeContext, input map[string]any) error
}

// TokenIssuer mints the token set for issue_tokens nodes.
type TokenIssuer interface {
	IssueTokens(ctx context.Context, subject string, extraClaims map[string]any) (map[string]string, error)
}

// ActionDispatcher performs the side effect of resolve, session and
// side-effect nodes (webhooks, notifications, device binding, ...). The
// returned map is recorded as the node result in prevNode.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, nodeType flowgraph.NodeType, config map[string]any, rc *condition.RuntimeContext) (map[string]any, error)
}

// ServiceDependencies contains the collaborators flow execution needs.
type ServiceDependencies struct {
	CredentialVerifier CredentialVerifier
	TokenIssuer        TokenIssuer
	ActionDispatcher   ActionDispatcher
}
