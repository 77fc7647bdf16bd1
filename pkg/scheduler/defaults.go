package scheduler

import "goldtier/pkg/protocol"

// DefaultJobs returns the built-in job table used when no jobs are configured.
func DefaultJobs() []protocol.JobSpec {
	return []protocol.JobSpec{
		{ID: "daily_sync", Role: protocol.Watcher, Trigger: "daily 09:00", Description: "Daily data synchronization"},
		{ID: "daily_report", Role: protocol.Analyst, Trigger: "daily 17:00", Description: "Daily performance report"},
		{ID: "weekly_analytics", Role: protocol.Analyst, Trigger: "weekly friday 10:00", Description: "Weekly analytics summary"},
		{ID: "weekly_maintenance", Role: protocol.Coordinator, Trigger: "weekly sunday 02:00", Description: "Weekly system maintenance"},
		{ID: "hourly_check", Role: protocol.Watcher, Trigger: "hourly", Description: "Hourly system health check"},
	}
}
