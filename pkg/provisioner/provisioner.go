// Package provisioner adapts the external provisioning toolchain
// (ghpc, gcloud, gsutil) behind narrow interfaces. The orchestrator
// treats create, deploy, destroy and image listing as opaque external
// operations with a success or failure outcome; deploy failures carry
// the raw diagnostic text for classification.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrNoImages is returned when an image family query matches nothing.
var ErrNoImages = errors.New("no images found")

// DeploymentSpec describes one benchmark deployment to create.
type DeploymentSpec struct {
	// Name is the unique deployment name, see NewDeploymentName.
	Name string

	// ImageProject is the project the image under test lives in.
	ImageProject string

	// Image is the machine image under test.
	Image string

	// Zone is the zone to deploy into. Region is derived from it.
	Zone string

	// MachineType is the compute machine type for the cluster.
	MachineType string

	// NumInstances is the number of VMs in the testing cluster.
	NumInstances int

	// BenchmarkConfig is the location of the benchmark definition
	// handed through to the provisioning tool.
	BenchmarkConfig string
}

// Deployment is the handle for a created deployment. It is created per
// attempt and always paired with an eventual destroy.
type Deployment struct {
	// Name is the unique deployment name.
	Name string

	// Image is the image under test.
	Image string

	// Zone is the zone the deployment was created in.
	Zone string

	// Dir is the deployment working directory created by the
	// provisioning tool.
	Dir string
}

// ProvisioningError is a failure to create a deployment.
type ProvisioningError struct {
	// Output is the raw diagnostic text from the tool.
	Output string

	// Err is the underlying execution error.
	Err error
}

// Error implements the error interface.
func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ProvisioningError) Unwrap() error { return e.Err }

// DeployError is a failure to deploy a created deployment. Output is
// the raw text the failure classifier operates on.
type DeployError struct {
	// Output is the raw diagnostic text from the tool.
	Output string

	// Err is the underlying execution error.
	Err error
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DeployError) Unwrap() error { return e.Err }

// Provisioner creates, deploys and destroys benchmark deployments.
// Destroy is synchronous; asynchronous launch and reconciliation is
// the caller's concern.
type Provisioner interface {
	// CreateDeployment materializes the deployment definition for one
	// attempt. Fails with *ProvisioningError.
	CreateDeployment(ctx context.Context, spec DeploymentSpec) (*Deployment, error)

	// Deploy provisions the deployment's resources and runs the
	// benchmark. Fails with *DeployError carrying the raw output.
	Deploy(ctx context.Context, dep *Deployment) error

	// Destroy tears the deployment's resources down. A non-nil error
	// includes the tool's diagnostic output.
	Destroy(ctx context.Context, dep *Deployment) error

	// SerialConsoleOutput captures diagnostics from the deployment's
	// first instance. Best-effort; failures are non-fatal.
	SerialConsoleOutput(ctx context.Context, dep *Deployment) (string, error)
}

// ImageLister queries candidate images.
type ImageLister interface {
	// LatestImages returns up to count image names of the family, most
	// recent first. Returns ErrNoImages when the family is empty.
	LatestImages(ctx context.Context, project, family string, count int) ([]string, error)
}

// ArtifactUploader archives files to a debug bucket. Failures are
// logged by callers, never fatal to a test run.
type ArtifactUploader interface {
	Upload(ctx context.Context, path, bucket string) error
}

// buildIDEnv, when set (short build identifier from the CI
// environment), prefixes generated deployment names.
const buildIDEnv = "BUILD_ID_SHORT"

// NewDeploymentName generates a deployment name from an optional
// prefix, the short CI build identifier when present, and a short
// random suffix. Uniqueness only needs to be extremely likely.
func NewDeploymentName(prefix string) string {
	var parts []string
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if build := os.Getenv(buildIDEnv); build != "" {
		if len(build) > 6 {
			build = build[:6]
		}
		parts = append(parts, build)
	}
	parts = append(parts, uuid.New().String()[:6])
	return strings.Join(parts, "-")
}

// RegionForZone derives the region from a zone name by trimming the
// final zone-letter component, e.g. "us-central1-a" -> "us-central1".
func RegionForZone(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		return zone[:i]
	}
	return zone
}
