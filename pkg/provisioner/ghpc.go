package provisioner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imagebench/imagebench/pkg/telemetry"
)

// DiagnosticsSource captures instance diagnostics for a deployment.
// Implemented by GCloud; optional on GHPC.
type DiagnosticsSource interface {
	SerialConsoleOutput(ctx context.Context, dep *Deployment) (string, error)
}

// GHPCConfig configures the ghpc-based provisioner.
type GHPCConfig struct {
	// Binary is the provisioning tool binary, default "ghpc".
	Binary string

	// Blueprint is the benchmark deployment blueprint handed to
	// "ghpc create".
	Blueprint string

	// BuildProject is the project deployments are created in.
	BuildProject string

	// DebugBucket is the bucket deployment definitions are archived
	// to on creation. Empty disables archiving.
	DebugBucket string

	// WorkDir is the directory deployment folders are created under.
	// Empty means the current directory.
	WorkDir string
}

// GHPC provisions benchmark deployments by shelling out to the ghpc
// toolchain.
type GHPC struct {
	cfg      GHPCConfig
	runner   CommandRunner
	uploader ArtifactUploader
	diag     DiagnosticsSource
	log      *telemetry.Logger
}

// NewGHPC creates a ghpc-backed provisioner.
func NewGHPC(cfg GHPCConfig, runner CommandRunner, log *telemetry.Logger) *GHPC {
	if cfg.Binary == "" {
		cfg.Binary = "ghpc"
	}
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &GHPC{cfg: cfg, runner: runner, log: log.NewComponentLogger("ghpc")}
}

// WithUploader sets the uploader used to archive deployment
// definitions to the debug bucket.
func (g *GHPC) WithUploader(u ArtifactUploader) *GHPC {
	g.uploader = u
	return g
}

// WithDiagnostics sets the source used for serial console capture.
func (g *GHPC) WithDiagnostics(d DiagnosticsSource) *GHPC {
	g.diag = d
	return g
}

// CreateDeployment runs "ghpc create" with the deployment variables
// for one attempt and archives the resulting deployment folder to the
// debug bucket when one is configured.
func (g *GHPC) CreateDeployment(ctx context.Context, spec DeploymentSpec) (*Deployment, error) {
	vars := []string{
		fmt.Sprintf("project_id=%s", g.cfg.BuildProject),
		fmt.Sprintf("deployment_name=%s", spec.Name),
		fmt.Sprintf("image_project=%s", spec.ImageProject),
		fmt.Sprintf("image_name=%s", spec.Image),
		fmt.Sprintf("region=%s", RegionForZone(spec.Zone)),
		fmt.Sprintf("zone=%s", spec.Zone),
		fmt.Sprintf("compute_machine_type=%s", spec.MachineType),
		fmt.Sprintf("num_instances=%d", spec.NumInstances),
		fmt.Sprintf("benchmark_config_location=%s", spec.BenchmarkConfig),
		"add_deployment_name_before_prefix=true",
		fmt.Sprintf("system_user_name=%s", systemUser()),
	}

	args := []string{"create", "-w", g.cfg.Blueprint, "--vars", strings.Join(vars, ",")}

	g.log.WithZone(spec.Zone).WithDeployment(spec.Name).Info("Creating deployment")

	result, err := g.runner.Run(ctx, g.cfg.Binary, args...)
	if err != nil {
		return nil, &ProvisioningError{Err: err}
	}
	if result.ExitCode != 0 {
		return nil, &ProvisioningError{
			Output: result.Combined(),
			Err:    fmt.Errorf("%s create exited %d", g.cfg.Binary, result.ExitCode),
		}
	}

	dep := &Deployment{
		Name:  spec.Name,
		Image: spec.Image,
		Zone:  spec.Zone,
		Dir:   filepath.Join(g.cfg.WorkDir, spec.Name),
	}

	g.archiveDeployment(ctx, dep)

	return dep, nil
}

// archiveDeployment tars the deployment folder and uploads it to the
// debug bucket. Failures are logged, never escalated.
func (g *GHPC) archiveDeployment(ctx context.Context, dep *Deployment) {
	if g.uploader == nil || g.cfg.DebugBucket == "" {
		return
	}

	archive := dep.Dir + ".tar.gz"
	if err := TarDirectory(dep.Dir, archive); err != nil {
		g.log.WithDeployment(dep.Name).WithError(err).Warn("Failed to archive deployment definition")
		return
	}
	if err := g.uploader.Upload(ctx, archive, g.cfg.DebugBucket); err != nil {
		g.log.WithDeployment(dep.Name).WithError(err).Warn("Failed to upload deployment archive")
	}
}

// Deploy runs "ghpc deploy" for a created deployment. On a non-zero
// exit the combined output is returned in a *DeployError for
// classification.
func (g *GHPC) Deploy(ctx context.Context, dep *Deployment) error {
	g.log.WithZone(dep.Zone).WithDeployment(dep.Name).Info("Deploying benchmark")

	result, err := g.runner.Run(ctx, g.cfg.Binary, "deploy", dep.Dir, "--auto-approve")
	if err != nil {
		return &DeployError{Err: err}
	}
	if result.ExitCode != 0 {
		return &DeployError{
			Output: result.Combined(),
			Err:    fmt.Errorf("%s deploy exited %d", g.cfg.Binary, result.ExitCode),
		}
	}
	return nil
}

// Destroy runs "ghpc destroy" for a deployment. The returned error
// includes the tool's output so teardown failures can be surfaced.
func (g *GHPC) Destroy(ctx context.Context, dep *Deployment) error {
	result, err := g.runner.Run(ctx, g.cfg.Binary, "destroy", dep.Dir, "--auto-approve")
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s destroy exited %d: %s", g.cfg.Binary, result.ExitCode, result.Combined())
	}
	return nil
}

// SerialConsoleOutput delegates to the configured diagnostics source.
func (g *GHPC) SerialConsoleOutput(ctx context.Context, dep *Deployment) (string, error) {
	if g.diag == nil {
		return "", fmt.Errorf("no diagnostics source configured")
	}
	return g.diag.SerialConsoleOutput(ctx, dep)
}

// systemUser resolves the user to attribute deployments to: the local
// user, the CI trigger, or a fixed fallback.
func systemUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if trigger := os.Getenv("TRIGGER_ID"); trigger != "" {
		return strings.ToLower(trigger)
	}
	return "cloudbuild_manual"
}
