// Package router maps the follow-up categories declared by a skill outcome to
// the roles whose queues receive the derived work.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goldtier/pkg/protocol"
)

// routes is the fixed category table. It is not editable at runtime.
var routes = map[string][]protocol.Role{ //nolint:gochecknoglobals // read-only lookup table
	"monitor":     {protocol.Watcher},
	"watch":       {protocol.Watcher},
	"process":     {protocol.Processor},
	"analyze":     {protocol.Processor},
	"post":        {protocol.Poster},
	"communicate": {protocol.Poster},
	"report":      {protocol.Analyst},
}

// Enqueuer places work on a role's queue. *registry.Registry implements it.
type Enqueuer interface {
	Enqueue(role protocol.Role, item *protocol.WorkItem) error
}

// Recorder receives diagnostics. It must not block.
type Recorder interface {
	Record(ev protocol.Event)
}

// RouteCategory returns the roles that consume category, or nil when the
// category is unknown.
func RouteCategory(category string) []protocol.Role {
	roles := routes[strings.ToLower(strings.TrimSpace(category))]
	if len(roles) == 0 {
		return nil
	}
	out := make([]protocol.Role, len(roles))
	copy(out, roles)
	return out
}

// Categories returns the routable categories.
func Categories() []string {
	out := make([]string, 0, len(routes))
	for c := range routes {
		out = append(out, c)
	}
	return out
}

// DeriveFollowUp builds one new work item per follow-up category in outcome.
// Each inherits the source priority, starts at attempt 0 and records from as
// its origin; a follow-up is new work, not a retry.
func DeriveFollowUp(source *protocol.WorkItem, outcome protocol.Outcome, from protocol.Role, now time.Time) []*protocol.WorkItem {
	if len(outcome.FollowUps) == 0 {
		return nil
	}
	out := make([]*protocol.WorkItem, 0, len(outcome.FollowUps))
	for _, category := range outcome.FollowUps {
		origin := from
		item := protocol.NewWorkItem(category, outcome.Payload, source.Priority, now)
		item.OriginRole = &origin
		out = append(out, item)
	}
	return out
}

// Result summarizes one Route call.
type Result struct {
	Enqueued map[protocol.Role]int
	Dropped  []string // unroutable categories
}

// Router derives follow-up items and places them on their target queues.
type Router struct {
	queues   Enqueuer
	recorder Recorder
	nowFunc  func() time.Time
}

// New creates a Router. recorder may be nil.
func New(queues Enqueuer, recorder Recorder) *Router {
	return &Router{queues: queues, recorder: recorder, nowFunc: time.Now}
}

// WithClock overrides the router's time source (for tests).
func (r *Router) WithClock(now func() time.Time) *Router {
	r.nowFunc = now
	return r
}

// Route derives follow-ups for source and enqueues each one on every role
// its category maps to. When a category has several consumers each receives
// its own copy, so no item ever sits in two queues. Unknown categories are
// dropped with an item_unroutable diagnostic.
func (r *Router) Route(_ context.Context, source *protocol.WorkItem, outcome protocol.Outcome, from protocol.Role) (Result, error) {
	res := Result{Enqueued: make(map[protocol.Role]int)}
	now := r.nowFunc()

	for _, item := range DeriveFollowUp(source, outcome, from, now) {
		targets := RouteCategory(item.Category)
		if len(targets) == 0 {
			res.Dropped = append(res.Dropped, item.Category)
			r.record(protocol.Event{
				Kind:     protocol.EventItemUnroutable,
				Role:     from,
				ItemID:   source.ID,
				Category: item.Category,
				Message:  fmt.Sprintf("no route for follow-up category %q; dropped", item.Category),
				At:       now,
			})
			continue
		}
		for i, role := range targets {
			placed := item
			if i > 0 {
				placed = item.Clone()
			}
			if err := r.queues.Enqueue(role, placed); err != nil {
				return res, fmt.Errorf("route %s to %s: %w", item.Category, role, err)
			}
			res.Enqueued[role]++
		}
	}
	return res, nil
}

func (r *Router) record(ev protocol.Event) {
	if r.recorder != nil {
		r.recorder.Record(ev)
	}
}
