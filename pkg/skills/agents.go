package skills

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"goldtier/pkg/protocol"
	"goldtier/pkg/registry"
)

func capabilities(role protocol.Role) []string {
	return slices.Clone(registry.DefaultCapabilities()[role])
}

// Watcher observes a source named by the payload's "src" (or "source") and
// hands what it saw to the processor.
type Watcher struct{}

func (Watcher) Role() protocol.Role { return protocol.Watcher }
func (Watcher) Capabilities() []string { return capabilities(protocol.Watcher) }

func (Watcher) Execute(_ context.Context, item *protocol.WorkItem) (protocol.Outcome, error) {
	source := stringValue(item.Payload, "src", "source")
	if source == "" {
		source = "system"
	}
	kind := map[string]string{
		"gmail":    "email",
		"email":    "email",
		"linkedin": "social_media",
		"social":   "social_media",
		"calendar": "event",
	}[source]
	if kind == "" {
		kind = "generic"
	}
	return protocol.Outcome{
		Payload: map[string]any{
			"source":      source,
			"type":        kind,
			"data":        fmt.Sprintf("observed %s activity", source),
			"observed_at": item.CreatedAt,
		},
		FollowUps: []string{"process"},
	}, nil
}

// Processor analyzes watched data. Mail becomes an action plan whose steps
// fan out to analysis and communication; social activity is prepared for
// posting; anything else goes straight to reporting. Items in the "analyze"
// category are plan steps and always end in a report.
type Processor struct{}

func (Processor) Role() protocol.Role { return protocol.Processor }
func (Processor) Capabilities() []string { return capabilities(protocol.Processor) }

func (Processor) Execute(_ context.Context, item *protocol.WorkItem) (protocol.Outcome, error) {
	analysis := map[string]any{
		"analysis":        "detailed analysis performed",
		"recommendations": []string{"respond within 24h", "track engagement"},
		"confidence":      0.95,
	}
	if strings.EqualFold(item.Category, "analyze") {
		analysis["step"] = "analyze"
		return protocol.Outcome{Payload: analysis, FollowUps: []string{"report"}}, nil
	}

	switch stringValue(item.Payload, "source", "src") {
	case "gmail", "email":
		steps := []string{"analyze", "communicate"}
		analysis["plan"] = steps
		return protocol.Outcome{Payload: analysis, FollowUps: steps}, nil
	case "linkedin", "social":
		analysis["content"] = "post drafted from analysis"
		return protocol.Outcome{Payload: analysis, FollowUps: []string{"post"}}, nil
	default:
		return protocol.Outcome{Payload: analysis, FollowUps: []string{"report"}}, nil
	}
}

// Poster publishes content and asks the analyst to track it.
type Poster struct{}

func (Poster) Role() protocol.Role { return protocol.Poster }
func (Poster) Capabilities() []string { return capabilities(protocol.Poster) }

func (Poster) Execute(_ context.Context, item *protocol.WorkItem) (protocol.Outcome, error) {
	platform := stringValue(item.Payload, "platform", "channel")
	if platform == "" {
		platform = "linkedin"
		if strings.EqualFold(item.Category, "communicate") {
			platform = "email"
		}
	}
	return protocol.Outcome{
		Payload: map[string]any{
			"platform": platform,
			"post_id":  "post_" + shortID(item.ID),
			"status":   "posted",
		},
		FollowUps: []string{"report"},
	}, nil
}

// Analyst records results. It is the end of every chain.
type Analyst struct{}

func (Analyst) Role() protocol.Role { return protocol.Analyst }
func (Analyst) Capabilities() []string { return capabilities(protocol.Analyst) }

func (Analyst) Execute(_ context.Context, item *protocol.WorkItem) (protocol.Outcome, error) {
	return protocol.Outcome{
		Payload: map[string]any{
			"report":   fmt.Sprintf("%s report for %s", item.Category, shortID(item.ID)),
			"tracked":  len(item.Payload),
			"priority": item.Priority.String(),
		},
	}, nil
}

// Coordinator expands a plan into its step categories. A payload "plan" is
// either a list of category names or a list of steps carrying a "category"
// field. Without a plan it runs maintenance and requests a report.
type Coordinator struct{}

func (Coordinator) Role() protocol.Role { return protocol.Coordinator }
func (Coordinator) Capabilities() []string { return capabilities(protocol.Coordinator) }

func (Coordinator) Execute(_ context.Context, item *protocol.WorkItem) (protocol.Outcome, error) {
	raw, ok := item.Payload["plan"]
	if !ok {
		return protocol.Outcome{
			Payload:   map[string]any{"maintenance": "completed"},
			FollowUps: []string{"report"},
		}, nil
	}
	steps, err := planSteps(raw)
	if err != nil {
		return protocol.Outcome{}, protocol.Terminal(fmt.Sprintf("coordinator: %v", err))
	}
	return protocol.Outcome{
		Payload:   map[string]any{"coordinated": len(steps)},
		FollowUps: steps,
	}, nil
}

func planSteps(raw any) ([]string, error) {
	var out []string
	switch steps := raw.(type) {
	case []string:
		out = slices.Clone(steps)
	case []any:
		for i, s := range steps {
			switch v := s.(type) {
			case string:
				out = append(out, v)
			case map[string]any:
				c, _ := v["category"].(string)
				if c == "" {
					return nil, fmt.Errorf("plan step %d has no category", i)
				}
				out = append(out, c)
			default:
				return nil, fmt.Errorf("plan step %d has type %T", i, s)
			}
		}
	default:
		return nil, fmt.Errorf("plan has type %T", raw)
	}
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
