// Package config defines the benchmark run configuration and its
// validation and normalization rules.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults for optional configuration fields.
const (
	DefaultMachineType  = "c2-standard-60"
	DefaultNumInstances = 8
	DefaultDrainTimeout = 300 * time.Second

	// MaxRetryBound is the upper bound the retry budget is clamped to.
	MaxRetryBound = 6
)

// TestConfig is the configuration for one invocation of the test
// driver.
type TestConfig struct {
	// Project is the project builds run in and quota is drawn from.
	Project string `yaml:"project" validate:"required"`

	// ImageProject is the project the images under test live in.
	ImageProject string `yaml:"image_project" validate:"required"`

	// ImageFamily selects images by family; the newest NumImages
	// members are tested. Combined with Images when both are set.
	ImageFamily string `yaml:"image_family" validate:"required_without=Images"`

	// Images names exact images to test, merged with the family
	// selection.
	Images []string `yaml:"images" validate:"required_without=ImageFamily"`

	// NumImages is how many images of the family to test, newest
	// first. Values below 1 normalize to 1.
	NumImages int `yaml:"num_images"`

	// NthImage skips the newest NthImage family members, for spreading
	// concurrent runs over distinct images. Negative normalizes to 0.
	NthImage int `yaml:"nth_image"`

	// Zones is the ordered list of candidate zones.
	Zones []string `yaml:"zones" validate:"required,min=1,dive,required"`

	// MaxRetries is the per-image retry budget, clamped to
	// [0, MaxRetryBound] by Normalize.
	MaxRetries int `yaml:"max_retries"`

	// MachineType is the compute machine type for the test cluster.
	MachineType string `yaml:"machine_type"`

	// NumInstances is the number of VMs per test cluster.
	NumInstances int `yaml:"num_instances" validate:"omitempty,min=1"`

	// Blueprint is the deployment blueprint handed to the provisioning
	// tool.
	Blueprint string `yaml:"blueprint" validate:"required"`

	// BenchmarkConfig is the benchmark definition location passed
	// through to the deployed cluster.
	BenchmarkConfig string `yaml:"benchmark_config" validate:"required"`

	// DeploymentPrefix prefixes generated deployment names.
	DeploymentPrefix string `yaml:"deployment_prefix"`

	// DebugBucket receives deployment directory archives. Empty
	// disables archiving.
	DebugBucket string `yaml:"debug_bucket"`

	// KeepOnSuccess leaves successful deployments standing for manual
	// inspection instead of tearing them down.
	KeepOnSuccess bool `yaml:"keep_on_success"`

	// DrainTimeout bounds the wait for outstanding destroys at exit.
	// Decoded from YAML as a duration string, see UnmarshalYAML.
	DrainTimeout time.Duration `yaml:"-"`

	// Database is the path of the run-history database. Empty disables
	// persistence.
	Database string `yaml:"database"`
}

// UnmarshalYAML decodes the configuration, parsing drain_timeout from
// a duration string like "300s" or "5m".
func (c *TestConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain TestConfig
	aux := struct {
		plain        `yaml:",inline"`
		DrainTimeout string `yaml:"drain_timeout"`
	}{plain: plain(*c)}

	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = TestConfig(aux.plain)
	if aux.DrainTimeout != "" {
		d, err := time.ParseDuration(aux.DrainTimeout)
		if err != nil {
			return fmt.Errorf("invalid drain_timeout: %w", err)
		}
		c.DrainTimeout = d
	}
	return nil
}

// Load reads a YAML configuration file, normalizes it and validates
// the result.
func Load(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TestConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize applies defaults and clamps out-of-range values. It is
// idempotent and always called before Validate.
func (c *TestConfig) Normalize() {
	if c.NumImages < 1 {
		c.NumImages = 1
	}
	if c.NthImage < 0 {
		c.NthImage = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > MaxRetryBound {
		c.MaxRetries = MaxRetryBound
	}
	if c.MachineType == "" {
		c.MachineType = DefaultMachineType
	}
	if c.NumInstances == 0 {
		c.NumInstances = DefaultNumInstances
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// Validate checks the configuration against its constraints.
func (c *TestConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
