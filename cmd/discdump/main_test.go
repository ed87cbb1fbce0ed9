package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discdump/internal/config"
	"discdump/internal/services"
	"discdump/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg, extra)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config, extra string) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\noutput_dir = %q\nlog_dir = %q\n\n[logging]\nlevel = \"error\"\n%s",
		cfg.Paths.StateDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		extra,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func mustFingerprint(t *testing.T, layout string) string {
	t.Helper()
	table, err := parseLayout(layout)
	if err != nil {
		t.Fatalf("parseLayout: %v", err)
	}
	return table.Fingerprint()
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
}

func TestInvalidConfigIsConfigurationError(t *testing.T) {
	env := setupCLITestEnv(t, "\n[dump]\nskip = -1\nretry_passes = -2\n")
	_, _, err := runCLI(t, []string{"sessions"}, env.configPath)
	if services.ExitCode(err) != 2 {
		t.Fatalf("exit code = %d (err %v)", services.ExitCode(err), err)
	}
}

func TestDumpSimulatedDisc(t *testing.T) {
	env := setupCLITestEnv(t, "\n[dump]\nlead_out_sectors = 4\n")
	layout := "data:300,audio:200/20"

	out, _, err := runCLI(t, []string{"dump", "--simulate", layout, "--sim-lead-out", "2", "--name", "sim"}, env.configPath)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	requireContains(t, out, "completed")

	info, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "sim.bin"))
	if err != nil {
		t.Fatalf("stat image: %v", err)
	}
	if info.Size() < 500*2352 {
		t.Fatalf("image size = %d", info.Size())
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "sim.toc.json")); err != nil {
		t.Fatalf("stat track listing: %v", err)
	}

	fingerprint := mustFingerprint(t, layout)
	out, _, err = runCLI(t, []string{"sessions"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, fingerprint)

	out, _, err = runCLI(t, []string{"session", "show", fingerprint}, env.configPath)
	if err != nil {
		t.Fatalf("session show: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "[502-503]")

	out, _, err = runCLI(t, []string{"session", "forget", fingerprint}, env.configPath)
	if err != nil {
		t.Fatalf("session forget: %v", err)
	}
	requireContains(t, out, "Forgot session")
	out, _, err = runCLI(t, []string{"sessions"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "No saved sessions")
}

func TestDumpReplaysImage(t *testing.T) {
	env := setupCLITestEnv(t, "\n[dump]\ndump_lead_out = false\n")
	if _, _, err := runCLI(t, []string{"dump", "--simulate", "audio:150,data:150", "--name", "first"}, env.configPath); err != nil {
		t.Fatalf("first dump: %v", err)
	}
	base := filepath.Join(env.cfg.Paths.OutputDir, "first")
	out, _, err := runCLI(t, []string{"dump", "--image", base, "--name", "second", "--fresh"}, env.configPath)
	if err != nil {
		t.Fatalf("replay dump: %v", err)
	}
	requireContains(t, out, "completed")

	first, err := os.ReadFile(base + ".bin")
	if err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(env.cfg.Paths.OutputDir, "second.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("replayed image differs from the original")
	}
}

func TestDumpStopOnErrorExitCode(t *testing.T) {
	env := setupCLITestEnv(t, "\n[dump]\nstop_on_error = true\n")
	_, _, err := runCLI(t, []string{"dump", "--simulate", "data:200", "--sim-fail", "100-101"}, env.configPath)
	if !errors.Is(err, services.ErrPolicyAbort) {
		t.Fatalf("err = %v", err)
	}
	if services.ExitCode(err) != 3 {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}

	out, _, err := runCLI(t, []string{"session", "show", mustFingerprint(t, "data:200")}, env.configPath)
	if err != nil {
		t.Fatalf("session show: %v", err)
	}
	requireContains(t, out, "stopped_on_error")
}

func TestDumpRequiresSource(t *testing.T) {
	env := setupCLITestEnv(t, "")
	_, _, err := runCLI(t, []string{"dump"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}
