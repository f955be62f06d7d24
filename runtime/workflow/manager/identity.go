package manager

import (
	"context"
	"fmt"

	"github.com/cubeassist/workflow-agent/runtime/workflow/toolclient"
)

// toolIdentityResolver resolves caller identity by calling the well-known
// "get_user_info" tool on the shared tool server, the same collaborator
// SYSTEM_ACTION steps call.
type toolIdentityResolver struct {
	tools toolclient.Caller
}

// NewToolIdentityResolver builds an IdentityResolver backed by tools.
func NewToolIdentityResolver(tools toolclient.Caller) IdentityResolver {
	return &toolIdentityResolver{tools: tools}
}

// ResolveIdentity implements IdentityResolver.
func (r *toolIdentityResolver) ResolveIdentity(ctx context.Context, token string) (string, []string, error) {
	reply, err := r.tools.Call(ctx, "get_user_info", map[string]any{"token": token})
	if err != nil {
		return "", nil, fmt.Errorf("manager: get_user_info: %w", err)
	}
	data := unwrapOutputData(reply)
	userID, _ := data["userId"].(string)
	if userID == "" {
		return "", nil, fmt.Errorf("manager: get_user_info returned no userId")
	}
	roles := toStringSlice(data["roles"])
	return userID, roles, nil
}

// unwrapOutputData descends the {output:{data:{...}}} envelope that
// get_user_info returns its payload in.
func unwrapOutputData(reply map[string]any) map[string]any {
	output, _ := reply["output"].(map[string]any)
	data, _ := output["data"].(map[string]any)
	return data
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
