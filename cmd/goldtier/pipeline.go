package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"goldtier/pkg/config"
	"goldtier/pkg/eventlog"
	"goldtier/pkg/metrics"
	"goldtier/pkg/notify"
	"goldtier/pkg/orchestrator"
	"goldtier/pkg/registry"
	"goldtier/pkg/scheduler"
	"goldtier/pkg/skills"
)

// pipeline is one fully wired orchestrator with its collaborators.
type pipeline struct {
	orch      *orchestrator.Orchestrator
	sched     *scheduler.Scheduler
	reg       *registry.Registry
	prom      *prometheus.Registry
	store     *eventlog.Store
	publisher *notify.Publisher
	recorder  eventlog.Recorder
}

// pipelineOpts selects which optional collaborators are attached.
type pipelineOpts struct {
	dbPath  string // empty disables the SQLite event store
	amqp    bool   // dial escalation.amqp_url when set
	invoker skills.SkillInvoker
	now     func() time.Time
}

// buildPipeline wires registry, scheduler, recorders, metrics and the
// orchestrator from cfg. The caller must Close the result.
func buildPipeline(cfg *config.Config, logger *slog.Logger, opts pipelineOpts) (*pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	p := &pipeline{prom: prometheus.NewRegistry()}
	p.prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(p.prom)

	recorders := []eventlog.Recorder{eventlog.NewSlogRecorder(logger)}
	if opts.dbPath != "" {
		p.store, err = eventlog.OpenStore(opts.dbPath, eventlog.StoreConfig{Buffer: cfg.Events.Buffer, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		recorders = append(recorders, p.store)
	}
	if opts.amqp && cfg.Escalation.AMQPURL != "" {
		pub, err := notify.Dial(cfg.Escalation.AMQPURL, notify.Config{Exchange: cfg.Escalation.Exchange, Logger: logger})
		if err != nil {
			// Escalations still reach the event store and the log.
			logger.Warn("escalation publisher unavailable", "error", err)
		} else {
			p.publisher = pub
			recorders = append(recorders, pub)
		}
	}
	recorder := eventlog.Multi(recorders...)
	p.recorder = recorder

	p.reg = registry.New()
	p.reg.RegisterDefaults()

	p.sched = scheduler.New(scheduler.Config{
		PollInterval: cfg.Scheduler.PollInterval.D(),
		Location:     loc,
		Now:          opts.now,
		Logger:       logger,
		OnFire:       func(f scheduler.Fired) { m.JobFired(f.JobID) },
	}, p.reg, recorder)

	retryDelay := cfg.RetryDelay.D()
	if retryDelay == 0 {
		retryDelay = -1
	}
	invoker := opts.invoker
	if invoker == nil {
		invoker = skills.Defaults()
	}
	p.orch = orchestrator.New(orchestrator.Config{
		CycleInterval: cfg.CycleInterval.D(),
		RetryDelay:    retryDelay,
		Logger:        logger,
		Now:           opts.now,
	}, p.reg, p.sched, invoker, recorder, m)

	return p, nil
}

// Close flushes the event store and closes the publisher.
func (p *pipeline) Close() error {
	var errs []error
	if p.publisher != nil {
		errs = append(errs, p.publisher.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}
