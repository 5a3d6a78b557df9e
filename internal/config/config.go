// Package config loads and validates the taskd YAML configuration: scheduler
// settings plus the declarative task definitions the daemon registers at
// startup (and re-registers on hot reload).
package config

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"taskd/internal/scheduler"
)

// Config is the root of the taskd configuration file.
type Config struct {
	Log       Log       `yaml:"log"`
	Scheduler Scheduler `yaml:"scheduler"`
	History   History   `yaml:"history"`
	Notify    Notify    `yaml:"notify"`
	Tasks     []Task    `yaml:"tasks"`
}

type Log struct {
	// Level is a zerolog level name ("trace".."error"); empty means "info".
	Level string `yaml:"level"`
}

type Scheduler struct {
	// Mode is "foreground" or "background"; empty means foreground.
	Mode string `yaml:"mode"`
	// CheckInterval is the tick period as a Go duration; empty uses the
	// scheduler default.
	CheckInterval string `yaml:"check_interval"`
	// StopTimeout bounds how long a background stop waits for the
	// dispatcher; empty uses the scheduler default.
	StopTimeout string `yaml:"stop_timeout"`
}

type History struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Keep caps how many run records are retained; 0 keeps the default.
	Keep int `yaml:"keep"`
}

type Notify struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// Task is one declarative task definition.
type Task struct {
	Name string `yaml:"name"`
	// Priority is "low", "normal", "high", or "critical"; empty means normal.
	Priority string `yaml:"priority"`
	// Interval is a Go duration ("30s", "5m"). Exactly one of Interval and
	// Cron must be set.
	Interval string `yaml:"interval"`
	// Cron is a 5- or 6-field cron expression or descriptor ("@hourly").
	Cron string `yaml:"cron"`
	// Windows lists daily eligibility windows as "HH:MM-HH:MM" strings;
	// start past end wraps midnight. Empty means always eligible.
	Windows []string `yaml:"windows"`
	// MaxRunningTime is the advisory execution-time limit as a Go duration.
	MaxRunningTime string `yaml:"max_running_time"`
	Body           Body   `yaml:"body"`
}

// Body binds a task definition to one of the built-in bodies.
type Body struct {
	// Kind is "command", "http", or "speedtest".
	Kind string `yaml:"kind"`
	// Command is the argv for kind "command".
	Command []string `yaml:"command"`
	// URL is the probe target for kind "http".
	URL string `yaml:"url"`
	// Timeout bounds a single body invocation for kinds "command" and
	// "http"; empty means no bound.
	Timeout string `yaml:"timeout"`
}

// Load reads, strictly decodes, and validates the config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse strictly decodes and validates raw YAML. Unknown fields are rejected
// so typos fail loudly instead of silently configuring nothing.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that the daemon would otherwise only trip over
// at registration time.
func (c *Config) Validate() error {
	if _, err := scheduler.ParseMode(c.Scheduler.Mode); err != nil {
		return fmt.Errorf("scheduler.mode: %w", err)
	}
	if _, err := ParseDurationField("scheduler.check_interval", c.Scheduler.CheckInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.stop_timeout", c.Scheduler.StopTimeout); err != nil {
		return err
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		return fmt.Errorf("history.path: required when history is enabled")
	}
	if c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			return fmt.Errorf("notify.token: required when notify is enabled")
		}
		if c.Notify.ChatID == 0 {
			return fmt.Errorf("notify.chat_id: required when notify is enabled")
		}
	}

	seen := map[string]bool{}
	for i, t := range c.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%s.name: required", path)
		}
		if seen[t.Name] {
			return fmt.Errorf("%s.name: duplicate task name %q", path, t.Name)
		}
		seen[t.Name] = true
		if err := t.validate(path); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) validate(path string) error {
	if _, err := scheduler.ParsePriority(t.Priority); err != nil {
		return fmt.Errorf("%s.priority: %w", path, err)
	}
	interval, err := ParseDurationField(path+".interval", t.Interval)
	if err != nil {
		return err
	}
	if (interval > 0) == (t.Cron != "") {
		return fmt.Errorf("%s: exactly one of interval and cron must be set", path)
	}
	for _, w := range t.Windows {
		if _, err := scheduler.ParseWindow(w); err != nil {
			return fmt.Errorf("%s.windows: %w", path, err)
		}
	}
	if _, err := ParseDurationField(path+".max_running_time", t.MaxRunningTime); err != nil {
		return err
	}
	return t.Body.validate(path + ".body")
}

func (b *Body) validate(path string) error {
	switch b.Kind {
	case "command":
		if len(b.Command) == 0 {
			return fmt.Errorf("%s.command: required for kind \"command\"", path)
		}
	case "http":
		if strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("%s.url: required for kind \"http\"", path)
		}
	case "speedtest":
	case "":
		return fmt.Errorf("%s.kind: required", path)
	default:
		return fmt.Errorf("%s.kind: unknown body kind %q", path, b.Kind)
	}
	if _, err := ParseDurationField(path+".timeout", b.Timeout); err != nil {
		return err
	}
	return nil
}
