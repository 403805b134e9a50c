package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/imagebench/imagebench/pkg/provisioner"
	"github.com/imagebench/imagebench/pkg/telemetry"
)

const (
	// DefaultDrainTimeout bounds the wait for outstanding destroys at
	// process exit. Leaked resources keep billing, so hitting this
	// bound forces a failure exit code.
	DefaultDrainTimeout = 300 * time.Second

	// defaultPollInterval is the interval between polls of the pending
	// set while draining.
	defaultPollInterval = 5 * time.Second
)

// Destroyer tears down a deployment's resources.
type Destroyer interface {
	Destroy(ctx context.Context, dep *provisioner.Deployment) error
}

// DestroyResult is the outcome of one completed destroy operation.
type DestroyResult struct {
	// Deployment is the deployment that was destroyed.
	Deployment *provisioner.Deployment

	// Err is non-nil when the destroy failed; it carries the tool's
	// diagnostic output.
	Err error

	// Duration is how long the destroy took.
	Duration time.Duration
}

// pendingTeardown pairs a deployment with the completion signal of its
// in-flight destroy.
type pendingTeardown struct {
	dep  *provisioner.Deployment
	done chan DestroyResult
}

// Reconciler tracks destroy operations launched without waiting and
// reconciles their completion before process exit. Registration and
// polling may happen from different goroutines; the pending set is
// mutex-guarded.
type Reconciler struct {
	// PollInterval is the wait between polls while draining.
	PollInterval time.Duration

	mu      sync.Mutex
	pending map[string]*pendingTeardown

	destroyer Destroyer
	log       *telemetry.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer

	sleep func(ctx context.Context, d time.Duration) error
}

// NewReconciler creates a teardown reconciler that launches destroys
// through the given destroyer.
func NewReconciler(destroyer Destroyer, tel *telemetry.Telemetry) *Reconciler {
	return &Reconciler{
		PollInterval: defaultPollInterval,
		pending:      make(map[string]*pendingTeardown),
		destroyer:    destroyer,
		log:          tel.Logger.NewComponentLogger("teardown"),
		metrics:      tel.Metrics,
		tracer:       tel.Tracer,
		sleep:        sleepContext,
	}
}

// Register launches the deployment's destroy without waiting and adds
// it to the pending set. Each deployment handle is registered at most
// once; a duplicate registration is dropped with a warning.
func (r *Reconciler) Register(ctx context.Context, dep *provisioner.Deployment) {
	r.mu.Lock()
	if _, exists := r.pending[dep.Name]; exists {
		r.mu.Unlock()
		r.log.WithDeployment(dep.Name).Warn("Teardown already registered, ignoring duplicate")
		return
	}

	pt := &pendingTeardown{dep: dep, done: make(chan DestroyResult, 1)}
	r.pending[dep.Name] = pt
	count := len(r.pending)
	r.mu.Unlock()

	r.metrics.RecordTeardownLaunched()
	r.metrics.SetPendingTeardowns(count)
	r.log.WithDeployment(dep.Name).Info("Destroying deployment")

	// The destroy outlives the registering attempt's context; once
	// launched it runs to completion or external-tool timeout.
	go func() {
		destroyCtx, span := r.tracer.StartTeardownSpan(context.WithoutCancel(ctx), dep.Name)
		defer span.End()

		start := time.Now()
		err := r.destroyer.Destroy(destroyCtx, dep)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}

		pt.done <- DestroyResult{
			Deployment: dep,
			Err:        err,
			Duration:   time.Since(start),
		}
	}()
}

// Poll removes and returns every pending teardown that has completed.
// Failed destroys are reported but never re-queued: retrying teardown
// of a possibly half-destroyed deployment is unsafe without
// idempotency guarantees from the external tool.
func (r *Reconciler) Poll() []DestroyResult {
	r.mu.Lock()
	var completed []DestroyResult
	for name, pt := range r.pending {
		select {
		case result := <-pt.done:
			completed = append(completed, result)
			delete(r.pending, name)
		default:
		}
	}
	count := len(r.pending)
	r.mu.Unlock()

	r.metrics.SetPendingTeardowns(count)

	for _, result := range completed {
		if result.Err != nil {
			r.metrics.RecordTeardownCompleted(true, result.Duration)
			r.log.WithDeployment(result.Deployment.Name).WithError(result.Err).
				Error("Destroy failed")
			continue
		}
		r.metrics.RecordTeardownCompleted(false, result.Duration)
		r.log.WithDeployment(result.Deployment.Name).Debug("Destroy completed")
	}

	return completed
}

// Pending returns the number of outstanding destroy operations.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Drain polls until the pending set is empty or the timeout elapses,
// returning whether the set became empty. A false return means
// resources may still be provisioned and the process should exit with
// a failure status.
func (r *Reconciler) Drain(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		r.Poll()
		remaining := r.Pending()
		if remaining == 0 {
			r.log.Info("All destroy operations have completed")
			return true
		}
		if time.Now().After(deadline) {
			r.log.Errorf("%d destroy operations still pending at drain timeout", remaining)
			return false
		}

		interval := r.PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		if err := r.sleep(ctx, interval); err != nil {
			return r.Pending() == 0
		}
	}
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
