// Package config loads the goldtier configuration file. YAML and TOML are
// both accepted; the format is chosen by file extension.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"goldtier/pkg/notify"
	"goldtier/pkg/protocol"
	"goldtier/pkg/scheduler"
)

// Duration is a time.Duration written as a Go duration string ("5m").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// SchedulerConfig configures the job poller.
type SchedulerConfig struct {
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`
	Timezone     string   `yaml:"timezone" toml:"timezone"`
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// EventsConfig configures the SQLite event log.
type EventsConfig struct {
	DBPath string `yaml:"db_path,omitempty" toml:"db_path,omitempty"`
	Buffer int    `yaml:"buffer" toml:"buffer"`
}

// EscalationConfig configures the AMQP escalation publisher. An empty URL
// disables it.
type EscalationConfig struct {
	AMQPURL  string `yaml:"amqp_url,omitempty" toml:"amqp_url,omitempty"`
	Exchange string `yaml:"exchange" toml:"exchange"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}

// Job is one scheduled job entry.
type Job struct {
	ID          string            `yaml:"id" toml:"id"`
	Role        protocol.Role     `yaml:"role" toml:"role"`
	Category    string            `yaml:"category,omitempty" toml:"category,omitempty"`
	Trigger     string            `yaml:"trigger" toml:"trigger"`
	Description string            `yaml:"description,omitempty" toml:"description,omitempty"`
	Priority    protocol.Priority `yaml:"priority,omitempty" toml:"priority,omitempty"`
	Payload     map[string]any    `yaml:"payload,omitempty" toml:"payload,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
}

// Spec converts the entry into a scheduler job spec. A missing enabled flag
// means enabled.
func (j Job) Spec() protocol.JobSpec {
	return protocol.JobSpec{
		ID:          j.ID,
		Role:        j.Role,
		Category:    j.Category,
		Trigger:     j.Trigger,
		Description: j.Description,
		Priority:    j.Priority,
		Payload:     maps.Clone(j.Payload),
		Disabled:    j.Enabled != nil && !*j.Enabled,
	}
}

// Config is the whole configuration file.
type Config struct {
	CycleInterval Duration         `yaml:"cycle_interval" toml:"cycle_interval"`
	RetryDelay    Duration         `yaml:"retry_delay" toml:"retry_delay"`
	Scheduler     SchedulerConfig  `yaml:"scheduler" toml:"scheduler"`
	Admin         AdminConfig      `yaml:"admin" toml:"admin"`
	Events        EventsConfig     `yaml:"events" toml:"events"`
	Escalation    EscalationConfig `yaml:"escalation" toml:"escalation"`
	Log           LogConfig        `yaml:"log" toml:"log"`
	Jobs          []Job            `yaml:"jobs" toml:"jobs"`
}

// DefaultAdminAddr is the admin listener used when none is configured.
const DefaultAdminAddr = "127.0.0.1:7070"

// Default returns the built-in configuration, including the default job
// table.
func Default() *Config {
	cfg := &Config{
		CycleInterval: Duration(5 * time.Minute),
		RetryDelay:    Duration(protocol.DefaultRetryDelay),
		Scheduler:     SchedulerConfig{PollInterval: Duration(time.Second), Timezone: "Local"},
		Admin:         AdminConfig{Addr: DefaultAdminAddr},
		Events:        EventsConfig{Buffer: 1024},
		Escalation:    EscalationConfig{Exchange: notify.DefaultExchange},
		Log:           LogConfig{Level: "info", Format: "text"},
	}
	for _, spec := range scheduler.DefaultJobs() {
		cfg.Jobs = append(cfg.Jobs, Job{
			ID:          spec.ID,
			Role:        spec.Role,
			Trigger:     spec.Trigger,
			Description: spec.Description,
		})
	}
	return cfg
}

// Load reads the file at path over the defaults. A file without a jobs key
// keeps the default job table. The result is validated.
func Load(path string) (*Config, error) {
	//nolint:gosec // path comes from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	defaults := cfg.Jobs
	cfg.Jobs = nil

	switch format := FormatOf(path); format {
	case "toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Jobs == nil {
		cfg.Jobs = defaults
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// FormatOf returns "toml" for .toml files and "yaml" otherwise.
func FormatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// Render encodes cfg as "yaml" or "toml".
func Render(cfg *Config, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml", "":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("render yaml: %w", err)
		}
		return append([]byte("# goldtier configuration\n"), data...), nil
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("render toml: %w", err)
		}
		return append([]byte("# goldtier configuration\n"), data...), nil
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
}

// Validate reports every problem in cfg.
func (c *Config) Validate() error {
	var errs []error
	if c.CycleInterval <= 0 {
		errs = append(errs, errors.New("cycle_interval must be positive"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry_delay must not be negative"))
	}
	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, errors.New("scheduler.poll_interval must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Events.Buffer < 0 {
		errs = append(errs, errors.New("events.buffer must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		name := j.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		} else if seen[j.ID] {
			errs = append(errs, fmt.Errorf("job %s: duplicate id", j.ID))
		}
		seen[j.ID] = true
		if !j.Role.Valid() {
			errs = append(errs, fmt.Errorf("job %s: unknown role %q", name, j.Role))
		}
		if _, err := scheduler.ParseTrigger(j.Trigger); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone. Empty and "Local" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// JobSpecs returns the configured jobs as scheduler specs.
func (c *Config) JobSpecs() []protocol.JobSpec {
	out := make([]protocol.JobSpec, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		out = append(out, j.Spec())
	}
	return out
}
