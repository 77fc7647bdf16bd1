// Package skills provides the SkillInvoker the orchestration cycle calls for
// every drained work item, and the five built-in role agents.
package skills

import (
	"context"
	"fmt"

	"goldtier/pkg/protocol"
)

// SkillInvoker executes one work item on behalf of role. The returned
// outcome's FollowUps name the categories the router should derive next.
type SkillInvoker interface {
	Invoke(ctx context.Context, role protocol.Role, item *protocol.WorkItem) (protocol.Outcome, error)
}

// Agent is the per-role capability. Each role variant implements it.
type Agent interface {
	Role() protocol.Role
	Capabilities() []string
	Execute(ctx context.Context, item *protocol.WorkItem) (protocol.Outcome, error)
}

// Func adapts a plain function to SkillInvoker.
type Func func(ctx context.Context, role protocol.Role, item *protocol.WorkItem) (protocol.Outcome, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, role protocol.Role, item *protocol.WorkItem) (protocol.Outcome, error) {
	return f(ctx, role, item)
}

// Set dispatches to one Agent per role.
type Set struct {
	agents map[protocol.Role]Agent
}

// NewSet builds a Set. A later agent for the same role replaces an earlier one.
func NewSet(agents ...Agent) *Set {
	s := &Set{agents: make(map[protocol.Role]Agent, len(agents))}
	for _, a := range agents {
		s.agents[a.Role()] = a
	}
	return s
}

// Defaults returns a Set holding the five built-in agents.
func Defaults() *Set {
	return NewSet(Watcher{}, Processor{}, Poster{}, Analyst{}, Coordinator{})
}

// Agent returns the agent registered for role.
func (s *Set) Agent(role protocol.Role) (Agent, bool) {
	a, ok := s.agents[role]
	return a, ok
}

// Invoke runs item on role's agent. A role without an agent is a terminal
// failure for the item. Operator-injected failures (see injected) are
// applied before the agent runs.
func (s *Set) Invoke(ctx context.Context, role protocol.Role, item *protocol.WorkItem) (protocol.Outcome, error) {
	a, ok := s.agents[role]
	if !ok {
		return protocol.Outcome{}, protocol.Terminal(fmt.Sprintf("no agent for role %s", role))
	}
	if err := ctx.Err(); err != nil {
		return protocol.Outcome{}, fmt.Errorf("%s: %w", role, err)
	}
	if err := injected(role, item); err != nil {
		return protocol.Outcome{}, err
	}
	return a.Execute(ctx, item)
}

// injected honors the drill keys an operator can put in a payload:
//
//	fail:          error message; the retry classifier sees it verbatim
//	fail_attempts: only fail while item.Attempt is below this number
//	panic:         panic with this value
func injected(role protocol.Role, item *protocol.WorkItem) error {
	if v, ok := item.Payload["panic"]; ok {
		panic(fmt.Sprintf("%s: %v", role, v))
	}
	v, ok := item.Payload["fail"]
	if !ok {
		return nil
	}
	if limit, ok := intValue(item.Payload["fail_attempts"]); ok && item.Attempt >= limit {
		return nil
	}
	return fmt.Errorf("%s: injected failure: %v", role, v)
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

func stringValue(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
