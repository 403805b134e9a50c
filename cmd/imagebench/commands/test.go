package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imagebench/imagebench/pkg/config"
	"github.com/imagebench/imagebench/pkg/orchestrator"
	"github.com/imagebench/imagebench/pkg/provisioner"
	"github.com/imagebench/imagebench/pkg/stores"
	"github.com/imagebench/imagebench/pkg/telemetry"
)

func newTestCommand() *cobra.Command {
	cfg := &config.TestConfig{}
	var metricsListen string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the benchmark against one or more images",
		Long: `Test freshly built machine images by deploying a benchmark cluster
for each one.

For every image the driver walks the candidate zone list, demoting a
zone to the back of the list when it is out of capacity and waiting
with exponential backoff between passes. A non-capacity failure aborts
the image after capturing serial console diagnostics. Every created
deployment is destroyed asynchronously; the driver waits for all
destroys to finish before exiting and fails if any are still pending
at the drain timeout.`,
		Example: `  # Test the three newest images of a family
  imagebench test --config daily.yaml --num-images 3

  # Test one explicit image in two zones
  imagebench test --config daily.yaml --image hpc-image-v42 \
    --zone us-central1-a --zone us-central1-b`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadTestConfig(cmd, cfg)
			if err != nil {
				return err
			}
			return runTest(cmd.Context(), loaded, metricsListen)
		},
	}

	cmd.Flags().StringVar(&cfg.Project, "project", "", "project deployments are created in")
	cmd.Flags().StringVar(&cfg.ImageProject, "image-project", "", "project the images under test live in")
	cmd.Flags().StringVar(&cfg.ImageFamily, "image-family", "", "image family to test the newest images of")
	cmd.Flags().StringSliceVar(&cfg.Images, "image", nil, "explicit image to test (repeatable)")
	cmd.Flags().IntVar(&cfg.NumImages, "num-images", 1, "number of family images to test, newest first")
	cmd.Flags().IntVar(&cfg.NthImage, "nth-image", 0, "skip this many of the newest family images")
	cmd.Flags().StringSliceVar(&cfg.Zones, "zone", nil, "candidate zone (repeatable, ordered)")
	cmd.Flags().IntVar(&cfg.MaxRetries, "max-retries", 3, "retry budget per image")
	cmd.Flags().StringVar(&cfg.MachineType, "machine-type", "", "compute machine type for the test cluster")
	cmd.Flags().IntVar(&cfg.NumInstances, "num-instances", 0, "number of VMs per test cluster")
	cmd.Flags().StringVar(&cfg.Blueprint, "blueprint", "", "deployment blueprint")
	cmd.Flags().StringVar(&cfg.BenchmarkConfig, "benchmark-config", "", "benchmark definition location")
	cmd.Flags().StringVar(&cfg.DeploymentPrefix, "prefix", "", "deployment name prefix")
	cmd.Flags().StringVar(&cfg.DebugBucket, "debug-bucket", "", "bucket for deployment definition archives")
	cmd.Flags().BoolVar(&cfg.KeepOnSuccess, "keep-on-success", false, "leave successful deployments standing")
	cmd.Flags().DurationVar(&cfg.DrainTimeout, "drain-timeout", config.DefaultDrainTimeout, "wait bound for outstanding destroys at exit")
	cmd.Flags().StringVar(&cfg.Database, "database", "", "run-history database path")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")

	return cmd
}

// loadTestConfig merges the config file, if any, with flag overrides.
// Flags that were set explicitly win over file values.
func loadTestConfig(cmd *cobra.Command, flags *config.TestConfig) (*config.TestConfig, error) {
	if configPath == "" {
		flags.Normalize()
		if err := flags.Validate(); err != nil {
			return nil, err
		}
		return flags, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	overrides := map[string]func(){
		"project":          func() { cfg.Project = flags.Project },
		"image-project":    func() { cfg.ImageProject = flags.ImageProject },
		"image-family":     func() { cfg.ImageFamily = flags.ImageFamily },
		"image":            func() { cfg.Images = flags.Images },
		"num-images":       func() { cfg.NumImages = flags.NumImages },
		"nth-image":        func() { cfg.NthImage = flags.NthImage },
		"zone":             func() { cfg.Zones = flags.Zones },
		"max-retries":      func() { cfg.MaxRetries = flags.MaxRetries },
		"machine-type":     func() { cfg.MachineType = flags.MachineType },
		"num-instances":    func() { cfg.NumInstances = flags.NumInstances },
		"blueprint":        func() { cfg.Blueprint = flags.Blueprint },
		"benchmark-config": func() { cfg.BenchmarkConfig = flags.BenchmarkConfig },
		"prefix":           func() { cfg.DeploymentPrefix = flags.DeploymentPrefix },
		"debug-bucket":     func() { cfg.DebugBucket = flags.DebugBucket },
		"keep-on-success":  func() { cfg.KeepOnSuccess = flags.KeepOnSuccess },
		"drain-timeout":    func() { cfg.DrainTimeout = flags.DrainTimeout },
		"database":         func() { cfg.Database = flags.Database },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runTest wires the provisioner, reconciler and orchestrator together
// and drives the full run.
func runTest(ctx context.Context, cfg *config.TestConfig, metricsListen string) error {
	tel, err := newTelemetryWithMetrics(metricsListen)
	if err != nil {
		return err
	}
	if err := tel.StartMetricsServer(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	ctx = tel.WithContext(ctx)

	runner := &provisioner.ExecRunner{}
	gcloud := provisioner.NewGCloud(cfg.Project, runner, tel.Logger)
	ghpc := provisioner.NewGHPC(provisioner.GHPCConfig{
		Blueprint:    cfg.Blueprint,
		BuildProject: cfg.Project,
		DebugBucket:  cfg.DebugBucket,
	}, runner, tel.Logger).
		WithDiagnostics(gcloud).
		WithUploader(provisioner.NewGSUtil(runner))

	images, err := resolveImages(ctx, cfg, gcloud)
	if err != nil {
		return err
	}

	reconciler := orchestrator.NewReconciler(ghpc, tel)
	orch := orchestrator.New(orchestrator.Config{
		Zones:            cfg.Zones,
		MaxRetries:       cfg.MaxRetries,
		ImageProject:     cfg.ImageProject,
		MachineType:      cfg.MachineType,
		NumInstances:     cfg.NumInstances,
		BenchmarkConfig:  cfg.BenchmarkConfig,
		DeploymentPrefix: cfg.DeploymentPrefix,
		KeepOnSuccess:    cfg.KeepOnSuccess,
	}, ghpc, reconciler, tel)

	if cfg.Database != "" {
		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		orch.WithRecorder(newStoreRecorder(store, tel.Logger))
	}

	results, err := orch.TestImages(ctx, images)

	// Deployments may be mid-destroy regardless of how the run went;
	// reconcile them before judging the outcome.
	drained := reconciler.Drain(context.WithoutCancel(ctx), cfg.DrainTimeout)

	if err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		log := tel.Logger.WithImage(result.Image).
			WithField("status", string(result.Status)).
			WithField("attempts", len(result.Attempts))
		if result.Status == orchestrator.ImageStatusFailed {
			failed++
			log.WithError(result.Err).Error("Image failed")
			continue
		}
		log.Info("Image succeeded")
	}

	if !drained {
		return fmt.Errorf("destroy operations still pending after %s, resources may be leaked", cfg.DrainTimeout)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}

// resolveImages queries the family for its newest members, skipping
// NthImage of them, and merges in the explicit image list. Order is
// stable and duplicates are dropped.
func resolveImages(ctx context.Context, cfg *config.TestConfig, lister provisioner.ImageLister) ([]string, error) {
	var images []string
	if cfg.ImageFamily != "" {
		found, err := lister.LatestImages(ctx, cfg.ImageProject, cfg.ImageFamily, cfg.NthImage+cfg.NumImages)
		if err != nil {
			return nil, err
		}
		if len(found) <= cfg.NthImage {
			return nil, fmt.Errorf("image family %s has %d images, cannot skip %d",
				cfg.ImageFamily, len(found), cfg.NthImage)
		}
		images = found[cfg.NthImage:]
	}

	seen := make(map[string]bool, len(images))
	for _, image := range images {
		seen[image] = true
	}
	for _, image := range cfg.Images {
		if !seen[image] {
			seen[image] = true
			images = append(images, image)
		}
	}
	return images, nil
}

// newTelemetry builds the telemetry bundle for CLI runs.
func newTelemetry() (*telemetry.Telemetry, error) {
	return newTelemetryWithMetrics("")
}

func newTelemetryWithMetrics(metricsListen string) (*telemetry.Telemetry, error) {
	tcfg := telemetry.DefaultConfig()
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if metricsListen != "" {
		tcfg.Metrics.Enabled = true
		tcfg.Metrics.ListenAddress = metricsListen
	}
	return telemetry.NewTelemetry(tcfg)
}

// openStore opens and migrates the run-history database.
func openStore(ctx context.Context, path string) (stores.Store, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
