package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `solver:
  type: bnb
  conf:
    max_nodes: 500
    gap: 0.001
planner:
  timeout_seconds: 30
  verify: true
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "prometheus"
runlog:
  backend: sqlite
  path: runs.db
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "planner"
  topic_prefix: "grid"
  qos: 1
api:
  addr: ":9000"
  token: "secret"
generator:
  seed: 7
  units: 5
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"solver.type", cfg.Solver.Type, "bnb"},
		{"solver.conf.max_nodes", cfg.Solver.Conf["max_nodes"], 500},
		{"planner.timeout", cfg.Planner.TimeoutSeconds, 30.0},
		{"planner.verify", cfg.Planner.Verify, true},
		{"planner.tolerance", cfg.Planner.Tolerance, 1e-3},
		{"metrics.sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"runlog.backend", cfg.RunLog.Backend, "sqlite"},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.prefix", cfg.MQTT.TopicPrefix, "grid"},
		{"mqtt.qos", cfg.MQTT.QoS, byte(1)},
		{"api.addr", cfg.API.Addr, ":9000"},
		{"api.token", cfg.API.Token, "secret"},
		{"generator.seed", cfg.Generator.Seed, int64(7)},
		{"generator.units", cfg.Generator.Units, 5},
		{"generator.horizon", cfg.Generator.Horizon, 24},
		{"logging.level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v (%T)", c.name, c.got, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"api": {"addr": ":9000", "token": "file"}}`)
	t.Setenv("UC_API__TOKEN", "env")
	t.Setenv("UC_RUNLOG__BACKEND", "jsonl")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.API.Token != "env" {
		t.Fatalf("expected env token, got %q", cfg.API.Token)
	}
	if cfg.RunLog.Backend != "jsonl" || cfg.RunLog.Path != "runs.jsonl" {
		t.Fatalf("unexpected runlog %+v", cfg.RunLog)
	}
	if cfg.Solver.Type != "bnb" {
		t.Fatalf("solver default not applied")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(writeFile(t, "config.toml", "")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	bad := map[string]string{
		"runlog":  "runlog:\n  backend: postgres\n",
		"mqtt":    "mqtt:\n  enabled: true\n",
		"logging": "logging:\n  level: loud\n",
		"planner": "planner:\n  timeout_seconds: -1\n",
		"sentry":  "sentry:\n  traces_sample_rate: 2\n",
	}
	for name, data := range bad {
		if _, err := Load(writeFile(t, "config.yaml", data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Planner.Timeout() != 0 {
		t.Fatalf("expected unbounded timeout")
	}
	cfg.Planner.TimeoutSeconds = 1.5
	if cfg.Planner.Timeout().Milliseconds() != 1500 {
		t.Fatalf("unexpected timeout %v", cfg.Planner.Timeout())
	}
}
