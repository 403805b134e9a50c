package provisioner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/imagebench/imagebench/pkg/telemetry"
)

// GCloud queries images and instance diagnostics through the gcloud
// CLI.
type GCloud struct {
	// BuildProject is the project deployments run in, used for serial
	// console capture.
	BuildProject string

	runner CommandRunner
	log    *telemetry.Logger
}

// NewGCloud creates a gcloud-backed image lister and diagnostics
// source.
func NewGCloud(buildProject string, runner CommandRunner, log *telemetry.Logger) *GCloud {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &GCloud{
		BuildProject: buildProject,
		runner:       runner,
		log:          log.NewComponentLogger("gcloud"),
	}
}

// LatestImages lists up to count image names of the family, most
// recent first. Deprecated images are included so older family members
// remain testable.
func (g *GCloud) LatestImages(ctx context.Context, project, family string, count int) ([]string, error) {
	result, err := g.runner.Run(ctx, "gcloud",
		"compute", "images", "list",
		"--project="+project,
		"--no-standard-images", "--show-deprecated",
		fmt.Sprintf("--filter=family=%s", family),
		"--format=value(name)",
		"--sort-by=~name",
		"--limit", strconv.Itoa(count),
	)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("listing images for family %s exited %d: %s",
			family, result.ExitCode, result.Stderr)
	}

	images := strings.Fields(result.Stdout)
	if len(images) == 0 {
		return nil, fmt.Errorf("image family %s: %w", family, ErrNoImages)
	}
	if len(images) < count {
		g.log.Warnf("Only %d images were found in family %s", len(images), family)
	}
	return images, nil
}

// SerialConsoleOutput captures the serial port output of the
// deployment's first instance.
func (g *GCloud) SerialConsoleOutput(ctx context.Context, dep *Deployment) (string, error) {
	result, err := g.runner.Run(ctx, "gcloud",
		"compute", "instances", "get-serial-port-output", dep.Name+"-0",
		"--port", "1",
		"--zone", dep.Zone,
		"--project", g.BuildProject,
	)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("serial console capture for %s-0 exited %d: %s",
			dep.Name, result.ExitCode, result.Stderr)
	}
	return result.Stdout, nil
}
