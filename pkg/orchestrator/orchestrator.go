package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/imagebench/imagebench/pkg/provisioner"
	"github.com/imagebench/imagebench/pkg/telemetry"
)

// Config holds the orchestration parameters for a batch of image test
// runs.
type Config struct {
	// Zones is the ordered list of candidate zones. Must be non-empty.
	Zones []string

	// MaxRetries is the retry budget per image, clamped to
	// [0, MaxRetryBound]. An image gets MaxRetries+1 passes over the
	// zone list.
	MaxRetries int

	// ImageProject is the project the images under test live in.
	ImageProject string

	// MachineType is the compute machine type for the test cluster.
	MachineType string

	// NumInstances is the number of VMs per test cluster.
	NumInstances int

	// BenchmarkConfig is the benchmark definition location handed
	// through to the provisioner.
	BenchmarkConfig string

	// DeploymentPrefix prefixes generated deployment names.
	DeploymentPrefix string

	// KeepOnSuccess leaves a successful deployment standing for manual
	// inspection instead of tearing it down.
	KeepOnSuccess bool
}

// Orchestrator drives the per-image test state machine: attempts across
// a rotating zone list, exponential backoff between passes, and
// asynchronous teardown registration for every created deployment.
type Orchestrator struct {
	cfg      Config
	prov     provisioner.Provisioner
	teardown *Reconciler
	recorder Recorder
	backoff  Backoff

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	// Injection points for tests.
	sleep   func(ctx context.Context, d time.Duration) error
	newName func(prefix string) string
	now     func() time.Time
}

// New creates an orchestrator. The reconciler receives one teardown
// registration per created deployment; the caller is responsible for
// draining it after TestImages returns.
func New(cfg Config, prov provisioner.Provisioner, teardown *Reconciler, tel *telemetry.Telemetry) *Orchestrator {
	cfg.MaxRetries = ClampRetries(cfg.MaxRetries)
	return &Orchestrator{
		cfg:      cfg,
		prov:     prov,
		teardown: teardown,
		backoff:  NewBackoff(cfg.MaxRetries),
		log:      tel.Logger.NewComponentLogger("orchestrator"),
		metrics:  tel.Metrics,
		tracer:   tel.Tracer,
		sleep:    sleepContext,
		newName:  provisioner.NewDeploymentName,
		now:      time.Now,
	}
}

// WithRecorder attaches a best-effort run recorder.
func (o *Orchestrator) WithRecorder(rec Recorder) *Orchestrator {
	o.recorder = rec
	return o
}

// TestImages tests each image in order and returns one result per
// image. Per-image failures are reported in the results, not as an
// error; the error return is reserved for setup problems that prevent
// any attempt.
func (o *Orchestrator) TestImages(ctx context.Context, images []string) ([]ImageResult, error) {
	if len(images) == 0 {
		return nil, NewSetupError("no images to test", nil)
	}
	if len(o.cfg.Zones) == 0 {
		return nil, NewSetupError("no zones configured", nil)
	}

	results := make([]ImageResult, 0, len(images))
	for _, image := range images {
		results = append(results, o.testImage(ctx, image))
	}
	return results, nil
}

// testImage runs the full state machine for one image: up to
// MaxRetries+1 passes over the zone list, rotating on transient
// capacity failures and backing off between passes.
func (o *Orchestrator) testImage(ctx context.Context, image string) ImageResult {
	runID := uuid.New().String()
	ring, err := NewZoneRing(o.cfg.Zones)
	if err != nil {
		return ImageResult{Image: image, Status: ImageStatusFailed, Err: err}
	}

	log := o.log.WithImage(image).WithRunID(runID)
	startedAt := o.now()

	ctx, span := o.tracer.StartImageSpan(ctx, runID, image)
	defer span.End()

	o.metrics.RecordImageRunStarted()
	if o.recorder != nil {
		o.recorder.BeginRun(runID, image, ring.Zones(), startedAt)
	}
	log.Infof("Testing image, zones %v, up to %d passes", ring.Zones(), o.cfg.MaxRetries+1)

	result := ImageResult{Image: image}

passes:
	for pass := 0; o.backoff.ShouldContinue(pass); pass++ {
		result.Passes = pass + 1
		o.metrics.RecordPass()

		n := ring.Len()
		for i := 0; i < n; i++ {
			zone := ring.Front()
			attempt := o.attempt(ctx, image, zone, pass)
			result.Attempts = append(result.Attempts, attempt)
			if o.recorder != nil {
				o.recorder.RecordAttempt(runID, attempt)
			}

			switch {
			case attempt.Outcome == OutcomeSuccess:
				log.WithZone(zone).WithPass(pass).Info("Image test succeeded")
				result.Status = ImageStatusSucceeded
				break passes

			case attempt.Outcome.Transient():
				// The zone is out of capacity right now; demote it and
				// try the next one.
				log.WithZone(zone).WithPass(pass).
					Warnf("Capacity failure (%s), rotating zone list", attempt.Outcome)
				ring.Rotate()

			default:
				log.WithZone(zone).WithPass(pass).Error("Non-capacity failure, aborting image")
				result.Status = ImageStatusFailed
				result.Err = NewHardError("non-capacity deployment failure", nil).
					WithImage(image).WithZone(zone).WithDeployment(attempt.DeploymentName)
				break passes
			}
		}

		// Every zone failed on capacity this pass. Back off before the
		// next pass unless the retry budget is spent.
		if !o.backoff.ShouldContinue(pass + 1) {
			break
		}
		wait := o.backoff.WaitDuration(pass)
		log.Infof("All zones out of capacity, waiting %s before pass %d", wait, pass+2)
		o.metrics.RecordBackoff(wait)
		if err := o.sleep(ctx, wait); err != nil {
			result.Status = ImageStatusFailed
			result.Err = NewSetupError("interrupted while waiting between passes", err).WithImage(image)
			break
		}
	}

	if result.Status == "" {
		result.Status = ImageStatusFailed
		result.Err = NewCapacityError("all zones exhausted after every retry", nil).WithImage(image)
		log.Error("Image test failed: all zones exhausted after every retry")
	}

	completedAt := o.now()
	o.metrics.RecordImageRunCompleted(string(result.Status), completedAt.Sub(startedAt))
	if result.Err != nil {
		telemetry.RecordError(span, result.Err)
	} else {
		telemetry.RecordSuccess(span)
	}
	if o.recorder != nil {
		o.recorder.FinishRun(runID, result, completedAt)
	}
	return result
}

// attempt performs one create-and-deploy cycle in the given zone. Every
// deployment that was created is registered with the teardown
// reconciler exactly once, except a successful one kept standing by
// KeepOnSuccess.
func (o *Orchestrator) attempt(ctx context.Context, image, zone string, pass int) AttemptRecord {
	name := o.newName(o.cfg.DeploymentPrefix)
	record := AttemptRecord{
		Image:          image,
		Zone:           zone,
		Pass:           pass,
		DeploymentName: name,
		StartedAt:      o.now(),
	}

	log := o.log.WithImage(image).WithZone(zone).WithPass(pass).WithDeployment(name)
	ctx, span := o.tracer.StartAttemptSpan(ctx, name, zone, pass)
	defer span.End()

	dep, err := o.prov.CreateDeployment(ctx, provisioner.DeploymentSpec{
		Name:            name,
		ImageProject:    o.cfg.ImageProject,
		Image:           image,
		Zone:            zone,
		MachineType:     o.cfg.MachineType,
		NumInstances:    o.cfg.NumInstances,
		BenchmarkConfig: o.cfg.BenchmarkConfig,
	})
	if err != nil {
		// Nothing was provisioned, so there is nothing to tear down.
		// A broken deployment definition will not get better in another
		// zone; treat it as a hard failure.
		record.Outcome = OutcomeOtherFailure
		var perr *provisioner.ProvisioningError
		if errors.As(err, &perr) {
			record.RawError = perr.Output
		} else {
			record.RawError = err.Error()
		}
		log.WithError(err).Error("Failed to create deployment")
		o.finishAttempt(&record, span)
		return record
	}

	log.Info("Deploying")
	err = o.prov.Deploy(ctx, dep)
	if err == nil {
		record.Outcome = OutcomeSuccess
		if o.cfg.KeepOnSuccess {
			log.Warn("Leaving successful deployment standing for inspection")
		} else {
			o.teardown.Register(ctx, dep)
		}
		o.finishAttempt(&record, span)
		return record
	}

	var derr *provisioner.DeployError
	if errors.As(err, &derr) {
		record.RawError = derr.Output
	} else {
		record.RawError = err.Error()
	}
	record.Outcome = Classify(record.RawError)

	if record.Outcome == OutcomeOtherFailure {
		o.captureDiagnostics(ctx, dep)
	}
	o.teardown.Register(ctx, dep)

	log.WithError(err).Warnf("Deploy failed, classified as %s", record.Outcome)
	o.finishAttempt(&record, span)
	return record
}

// finishAttempt stamps the attempt and records its telemetry.
func (o *Orchestrator) finishAttempt(record *AttemptRecord, span trace.Span) {
	record.CompletedAt = o.now()
	span.SetAttributes(telemetry.AttrOutcome.String(string(record.Outcome)))
	if record.Outcome == OutcomeSuccess {
		telemetry.RecordSuccess(span)
	}
	o.metrics.RecordAttempt(string(record.Outcome), record.Zone, record.CompletedAt.Sub(record.StartedAt))
}

// captureDiagnostics fetches the serial console output of the failed
// deployment's first instance. Best-effort: the instance may never have
// booted.
func (o *Orchestrator) captureDiagnostics(ctx context.Context, dep *provisioner.Deployment) {
	text, err := o.prov.SerialConsoleOutput(ctx, dep)
	if err != nil {
		o.log.WithDeployment(dep.Name).WithError(err).Warn("Could not fetch serial console output")
		return
	}
	o.log.WithDeployment(dep.Name).WithField("serial_output", text).
		Info("Serial console output from failed deployment")
}
