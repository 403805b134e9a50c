package provisioner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imagebench/imagebench/pkg/telemetry"
)

// fakeRunner records invocations and replays scripted results.
type fakeRunner struct {
	calls   [][]string
	results []CommandResult
	errs    []error
	idx     int
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.idx >= len(f.results) {
		return CommandResult{}, nil
	}
	result := f.results[f.idx]
	var err error
	if f.idx < len(f.errs) {
		err = f.errs[f.idx]
	}
	f.idx++
	return result, err
}

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	cfg := telemetry.DefaultConfig().Logging
	cfg.Level = "error"
	log, err := telemetry.NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return log
}

func testSpec() DeploymentSpec {
	return DeploymentSpec{
		Name:            "bench-abc123",
		ImageProject:    "img-project",
		Image:           "hpc-image-v42",
		Zone:            "us-central1-a",
		MachineType:     "c2-standard-60",
		NumInstances:    8,
		BenchmarkConfig: "gs://bench/config.yaml",
	}
}

func TestGHPCCreateDeployment(t *testing.T) {
	t.Setenv("USER", "tester")
	runner := &fakeRunner{results: []CommandResult{{}}}
	g := NewGHPC(GHPCConfig{
		Blueprint:    "benchmark.yaml",
		BuildProject: "build-project",
		WorkDir:      "/work",
	}, runner, testLogger(t))

	dep, err := g.CreateDeployment(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}

	if dep.Name != "bench-abc123" || dep.Zone != "us-central1-a" {
		t.Errorf("deployment = %+v", dep)
	}
	if dep.Dir != filepath.Join("/work", "bench-abc123") {
		t.Errorf("Dir = %q", dep.Dir)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(runner.calls))
	}
	call := runner.calls[0]
	if call[0] != "ghpc" || call[1] != "create" {
		t.Errorf("call = %v", call)
	}

	vars := call[len(call)-1]
	for _, want := range []string{
		"project_id=build-project",
		"deployment_name=bench-abc123",
		"image_project=img-project",
		"image_name=hpc-image-v42",
		"region=us-central1",
		"zone=us-central1-a",
		"compute_machine_type=c2-standard-60",
		"num_instances=8",
		"benchmark_config_location=gs://bench/config.yaml",
		"add_deployment_name_before_prefix=true",
		"system_user_name=tester",
	} {
		if !strings.Contains(vars, want) {
			t.Errorf("vars missing %q in %q", want, vars)
		}
	}
}

func TestGHPCCreateDeploymentFailure(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{Stderr: "blueprint not found", ExitCode: 1}}}
	g := NewGHPC(GHPCConfig{Blueprint: "missing.yaml"}, runner, testLogger(t))

	_, err := g.CreateDeployment(context.Background(), testSpec())
	var perr *ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProvisioningError, got %v", err)
	}
	if perr.Output != "blueprint not found" {
		t.Errorf("Output = %q", perr.Output)
	}
}

func TestGHPCDeployFailureCarriesOutput(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{
		Stderr:   "The zone does not have enough resources available",
		ExitCode: 1,
	}}}
	g := NewGHPC(GHPCConfig{}, runner, testLogger(t))

	err := g.Deploy(context.Background(), &Deployment{Name: "d1", Zone: "us-central1-a", Dir: "d1"})
	var derr *DeployError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DeployError, got %v", err)
	}
	if !strings.Contains(derr.Output, "does not have enough resources") {
		t.Errorf("Output = %q, classification text lost", derr.Output)
	}
}

func TestGHPCDeploySuccess(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{}}}
	g := NewGHPC(GHPCConfig{}, runner, testLogger(t))

	if err := g.Deploy(context.Background(), &Deployment{Name: "d1", Dir: "d1"}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	call := runner.calls[0]
	want := []string{"ghpc", "deploy", "d1", "--auto-approve"}
	if len(call) != len(want) {
		t.Fatalf("call = %v, want %v", call, want)
	}
	for i := range want {
		if call[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, call[i], want[i])
		}
	}
}

func TestGHPCDestroyFailure(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{Stderr: "resource busy", ExitCode: 1}}}
	g := NewGHPC(GHPCConfig{}, runner, testLogger(t))

	err := g.Destroy(context.Background(), &Deployment{Name: "d1", Dir: "d1"})
	if err == nil {
		t.Fatal("expected error for failed destroy")
	}
	if !strings.Contains(err.Error(), "resource busy") {
		t.Errorf("error should carry tool output: %v", err)
	}
}

func TestGHPCSerialConsoleWithoutSource(t *testing.T) {
	g := NewGHPC(GHPCConfig{}, &fakeRunner{}, testLogger(t))

	if _, err := g.SerialConsoleOutput(context.Background(), &Deployment{Name: "d1"}); err == nil {
		t.Fatal("expected error when no diagnostics source is configured")
	}
}

func TestSystemUser(t *testing.T) {
	t.Setenv("USER", "alice")
	t.Setenv("TRIGGER_ID", "")
	if got := systemUser(); got != "alice" {
		t.Errorf("systemUser() = %q, want %q", got, "alice")
	}

	t.Setenv("USER", "")
	t.Setenv("TRIGGER_ID", "Trigger-42")
	if got := systemUser(); got != "trigger-42" {
		t.Errorf("systemUser() = %q, want lowercased trigger", got)
	}

	t.Setenv("TRIGGER_ID", "")
	if got := systemUser(); got != "cloudbuild_manual" {
		t.Errorf("systemUser() = %q, want fallback", got)
	}
}
