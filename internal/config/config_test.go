package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"amm-limitbot/internal/supervisor"
)

func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func parse(t *testing.T, args []string, env map[string]string) (Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("limitbot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return Parse(fs, args, mapEnv(env))
}

func TestParseDefaults(t *testing.T) {
	c, err := parse(t, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.DataDir != "." || c.Workers != supervisor.DefaultWorkers || c.PollInterval != supervisor.DefaultPollInterval {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.MetricsAddr != "" || c.EventLog != "" || c.PrivateKey != "" {
		t.Fatalf("optional fields must default empty: %+v", c)
	}
	p := c.Paths()
	if p.Dir != "." || p.Settings != "" {
		t.Fatalf("paths: %+v", p)
	}
}

func TestParseEnvAndFlags(t *testing.T) {
	env := map[string]string{
		"LIMITBOT_DATA_DIR":      "/var/lib/limitbot",
		"LIMITBOT_WORKERS":       "8",
		"LIMITBOT_POLL_INTERVAL": "250ms",
		"METRICS_ADDR":           ":9100",
		"PRIVATE_KEY":            " abc ",
		"BSC_RPC_URL":            "https://bsc.example",
	}
	c, err := parse(t, []string{"-workers", "2", "-events", "out/events.jsonl"}, env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Workers != 2 {
		t.Fatalf("flag must override env: workers %d", c.Workers)
	}
	if c.DataDir != "/var/lib/limitbot" || c.PollInterval != 250*time.Millisecond {
		t.Fatalf("env not applied: %+v", c)
	}
	if c.MetricsAddr != ":9100" || c.EventLog != "out/events.jsonl" {
		t.Fatalf("unexpected %+v", c)
	}
	if c.PrivateKey != "abc" || c.Node != "https://bsc.example" {
		t.Fatalf("overrides: key %q node %q", c.PrivateKey, c.Node)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"env workers", nil, map[string]string{"LIMITBOT_WORKERS": "many"}},
		{"env interval", nil, map[string]string{"LIMITBOT_POLL_INTERVAL": "1 second"}},
		{"zero workers", []string{"-workers", "0"}, nil},
		{"unknown flag", []string{"-turbo"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parse(t, tc.args, tc.env); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LIMITBOT_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIMITBOT_TEST_VALUE", "")
	os.Unsetenv("LIMITBOT_TEST_VALUE")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("LIMITBOT_TEST_VALUE"); got != "from-file" {
		t.Fatalf("got %q want from-file", got)
	}
}
