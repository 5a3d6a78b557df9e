package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const goodYAML = `
log:
  level: debug
scheduler:
  mode: background
  check_interval: 250ms
  stop_timeout: 10s
history:
  enabled: true
  path: /var/lib/taskd/history.db
  keep: 500
tasks:
  - name: heartbeat
    priority: high
    interval: 30s
    windows: ["09:00-17:00"]
    max_running_time: 5s
    body:
      kind: command
      command: ["true"]
  - name: probe
    cron: "@hourly"
    body:
      kind: http
      url: https://example.com/healthz
      timeout: 3s
  - name: bandwidth
    priority: low
    interval: 6h
    windows: ["22:00-03:00"]
    body:
      kind: speedtest
`

func TestParseValid(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(goodYAML))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Scheduler.Mode != "background" || cfg.Scheduler.CheckInterval != "250ms" {
		t.Fatalf("Scheduler = %+v", cfg.Scheduler)
	}
	if !cfg.History.Enabled || cfg.History.Keep != 500 {
		t.Fatalf("History = %+v", cfg.History)
	}
	if len(cfg.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(cfg.Tasks))
	}
	if cfg.Tasks[0].Body.Kind != "command" || cfg.Tasks[1].Body.Kind != "http" || cfg.Tasks[2].Body.Kind != "speedtest" {
		t.Fatalf("body kinds = %q %q %q", cfg.Tasks[0].Body.Kind, cfg.Tasks[1].Body.Kind, cfg.Tasks[2].Body.Kind)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "shceduler:\n  mode: background\n",
			want: "yaml decode",
		},
		{
			name: "bad mode",
			yaml: "scheduler:\n  mode: sideways\n",
			want: "scheduler.mode",
		},
		{
			name: "bad duration",
			yaml: "scheduler:\n  check_interval: fast\n",
			want: "scheduler.check_interval",
		},
		{
			name: "history without path",
			yaml: "history:\n  enabled: true\n",
			want: "history.path",
		},
		{
			name: "notify without token",
			yaml: "notify:\n  enabled: true\n  chat_id: 42\n",
			want: "notify.token",
		},
		{
			name: "task without name",
			yaml: "tasks:\n  - interval: 1m\n    body: {kind: speedtest}\n",
			want: "tasks[0].name",
		},
		{
			name: "duplicate task name",
			yaml: "tasks:\n  - {name: a, interval: 1m, body: {kind: speedtest}}\n  - {name: a, interval: 2m, body: {kind: speedtest}}\n",
			want: "duplicate task name",
		},
		{
			name: "both interval and cron",
			yaml: "tasks:\n  - {name: a, interval: 1m, cron: \"@hourly\", body: {kind: speedtest}}\n",
			want: "exactly one of interval and cron",
		},
		{
			name: "neither interval nor cron",
			yaml: "tasks:\n  - {name: a, body: {kind: speedtest}}\n",
			want: "exactly one of interval and cron",
		},
		{
			name: "bad window",
			yaml: "tasks:\n  - {name: a, interval: 1m, windows: [\"25:00-26:00\"], body: {kind: speedtest}}\n",
			want: "tasks[0].windows",
		},
		{
			name: "bad priority",
			yaml: "tasks:\n  - {name: a, priority: urgent, interval: 1m, body: {kind: speedtest}}\n",
			want: "tasks[0].priority",
		},
		{
			name: "command without argv",
			yaml: "tasks:\n  - {name: a, interval: 1m, body: {kind: command}}\n",
			want: "body.command",
		},
		{
			name: "http without url",
			yaml: "tasks:\n  - {name: a, interval: 1m, body: {kind: http}}\n",
			want: "body.url",
		},
		{
			name: "unknown body kind",
			yaml: "tasks:\n  - {name: a, interval: 1m, body: {kind: carrier-pigeon}}\n",
			want: "unknown body kind",
		},
		{
			name: "missing body kind",
			yaml: "tasks:\n  - {name: a, interval: 1m}\n",
			want: "body.kind",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadFromDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "taskd.yaml")
	if err := os.WriteFile(path, []byte(goodYAML), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(cfg.Tasks))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load of missing file succeeded")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: ParseDurationField = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}
