package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vivars7/skillrelay/internal/config"
)

const minimalConfig = `auth:
  allow_unauthenticated: true
`

// writeTempConfig writes yaml to a file in a per-test directory.
func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skillrelay.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// chdirTemp moves the test into a fresh directory for commands that write
// to the working directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"--help"}); code != 0 {
		t.Errorf("expected exit code 0 for --help, got %d", code)
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Errorf("expected exit code 0 for --version, got %d", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"nonexistent"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown command, got %d", code)
	}
}

func TestRunFlagParseError(t *testing.T) {
	if code := run([]string{"--unknown-flag-xyz"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown flag, got %d", code)
	}
}

func TestRunHelpSubcommand(t *testing.T) {
	if code := run([]string{"help"}); code != 0 {
		t.Errorf("expected exit code 0 for help subcommand, got %d", code)
	}
}

// ── validate ──

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"minimal", minimalConfig, 0},
		{"with skills", `auth:
  allow_unauthenticated: true
skills:
  host_endpoint: http://127.0.0.1:3978/api/skills
  channels:
    - id: echo
      app_id: skill-app
      endpoint: http://127.0.0.1:39783/api/messages
`, 0},
		{"auth required without audience", "storage:\n  type: memory\n", 1},
		{"bad storage", "auth:\n  allow_unauthenticated: true\nstorage:\n  type: etcd\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.yaml)
			if code := run([]string{"--config", path, "validate"}); code != tt.want {
				t.Errorf("validate exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestRunValidateNoConfig(t *testing.T) {
	if code := run([]string{"--config", "nonexistent.yaml", "validate"}); code != 1 {
		t.Errorf("expected exit code 1 for missing config, got %d", code)
	}
}

// ── init ──

func TestRunInitProfiles(t *testing.T) {
	for _, profile := range []string{"dev", "prod"} {
		t.Run(profile, func(t *testing.T) {
			chdirTemp(t)
			if code := run([]string{"init", "--profile", profile}); code != 0 {
				t.Fatalf("expected exit code 0 for init --profile %s, got %d", profile, code)
			}
			if _, err := os.Stat("skillrelay.yaml"); err != nil {
				t.Fatalf("skillrelay.yaml was not created: %v", err)
			}
			// Generated profiles must load as they are.
			if _, err := config.Load("skillrelay.yaml"); err != nil {
				t.Errorf("generated %s profile does not load: %v", profile, err)
			}
		})
	}
}

func TestRunInitOutputFlag(t *testing.T) {
	dir := chdirTemp(t)
	out := filepath.Join(dir, "custom.yaml")
	if code := run([]string{"init", "--output", out}); code != 0 {
		t.Fatalf("init --output exit code = %d", code)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("%s was not created: %v", out, err)
	}
}

func TestRunInitInvalidProfile(t *testing.T) {
	chdirTemp(t)
	if code := run([]string{"init", "--profile", "invalid"}); code != 1 {
		t.Errorf("expected exit code 1 for invalid profile, got %d", code)
	}
}

func TestCmdInitHelp(t *testing.T) {
	if code := run([]string{"init", "--help"}); code != 0 {
		t.Errorf("expected exit code 0 for init --help, got %d", code)
	}
}

func TestCmdInitFlagParseError(t *testing.T) {
	if code := run([]string{"init", "--unknown-flag-xyz"}); code != 1 {
		t.Errorf("expected exit code 1 for unknown init flag, got %d", code)
	}
}

func TestCmdInitWriteError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := chdirTemp(t)
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0755)

	if code := run([]string{"init", "--profile", "dev"}); code != 1 {
		t.Errorf("expected exit code 1 for read-only dir, got %d", code)
	}
}

// ── serve ──

func TestCmdServeConfigLoadError(t *testing.T) {
	if code := cmdServe("/nonexistent/path/skillrelay.yaml", defaultServerFactory); code != 1 {
		t.Errorf("expected exit code 1 for missing config, got %d", code)
	}
}

// Pre-binding the configured port makes the server's Listen call fail.
func TestCmdServePortInUse(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind blocker port: %v", err)
	}
	defer blocker.Close()
	blockedPort := blocker.Addr().(*net.TCPAddr).Port

	path := writeTempConfig(t, fmt.Sprintf(`
listen:
  host: 127.0.0.1
  port: %d
auth:
  allow_unauthenticated: true
`, blockedPort))

	if code := cmdServe(path, defaultServerFactory); code != 1 {
		t.Errorf("expected exit code 1 for port-in-use, got %d", code)
	}
}

// Starts a real server, waits for /healthz, then sends SIGINT to trigger
// graceful shutdown.
func TestCmdServeStartsAndShutdown(t *testing.T) {
	port := freePort(t)
	path := writeTempConfig(t, fmt.Sprintf(`
listen:
  host: 127.0.0.1
  port: %d
bot:
  allow_anonymous_emulator: true
auth:
  allow_unauthenticated: true
logging:
  output: stderr
  level: error
`, port))

	doneCh := make(chan int, 1)
	go func() {
		doneCh <- run([]string{"--config", path, "serve"})
	}()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	deadline := time.Now().Add(3 * time.Second)
	started := false
	for time.Now().Before(deadline) {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			started = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !started {
		t.Error("server did not become ready within timeout")
	}

	syscall.Kill(syscall.Getpid(), syscall.SIGINT)

	select {
	case code := <-doneCh:
		if code != 0 {
			t.Errorf("expected exit code 0 after graceful shutdown, got %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Error("server did not shut down within timeout")
	}
}

func TestCmdServeServerNewFails(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	failingFactory := func(*config.Config, string, string) (startable, error) {
		return nil, errors.New("server creation failed")
	}
	if code := cmdServe(path, failingFactory); code != 1 {
		t.Errorf("expected exit code 1 for server.New failure, got %d", code)
	}
}

type failingServer struct{}

func (f *failingServer) Start(context.Context) error {
	return errors.New("start failed")
}

func TestCmdServeStartError(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	var gotPath string
	factory := func(_ *config.Config, configPath, _ string) (startable, error) {
		gotPath = configPath
		return &failingServer{}, nil
	}
	if code := cmdServe(path, factory); code != 1 {
		t.Errorf("expected exit code 1 for Start() error, got %d", code)
	}
	if gotPath != path {
		t.Errorf("factory got config path %q, want %q", gotPath, path)
	}
}

const skillsConfig = `auth:
  allow_unauthenticated: true
skills:
  host_endpoint: http://localhost:3978/api/skills
  channels:
    - id: echo
      app_id: echo-app
      endpoint: http://localhost:39783/api/messages
    - id: dice
      app_id: dice-app
      endpoint: http://localhost:39784/api/messages
`

func TestRunSkills(t *testing.T) {
	path := writeTempConfig(t, skillsConfig)
	if code := run([]string{"--config", path, "skills"}); code != 0 {
		t.Errorf("skills exit code = %d, want 0", code)
	}
}

func TestRunSkills_ConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if code := run([]string{"--config", path, "skills"}); code != 1 {
		t.Errorf("skills exit code = %d, want 1", code)
	}
}

func TestCmdSkills_Table(t *testing.T) {
	path := writeTempConfig(t, skillsConfig)
	var buf bytes.Buffer
	if code := cmdSkills(path, &buf); code != 0 {
		t.Fatalf("cmdSkills exit code = %d, want 0", code)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 skills:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "ENDPOINT") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "echo ") || !strings.Contains(lines[1], "http://localhost:39783/api/messages") {
		t.Errorf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "dice ") || !strings.Contains(lines[2], "dice-app") {
		t.Errorf("second row = %q", lines[2])
	}
}

func TestWriteSkills(t *testing.T) {
	cfg := &config.Config{}
	var buf bytes.Buffer
	if err := writeSkills(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "no skills configured\n" {
		t.Errorf("empty output = %q", got)
	}

	cfg.Skills.Channels = []config.SkillChannel{{ID: "anon", Endpoint: "http://skill.example/api/messages"}}
	buf.Reset()
	if err := writeSkills(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "anon  -") {
		t.Errorf("missing app id should print a dash:\n%s", buf.String())
	}
}

func TestOrDash(t *testing.T) {
	if orDash("") != "-" || orDash("x") != "x" {
		t.Error("orDash mismatch")
	}
}
