package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/imagebench/imagebench/pkg/orchestrator"
	"github.com/imagebench/imagebench/pkg/stores"
	"github.com/imagebench/imagebench/pkg/telemetry"
)

// recorderTimeout bounds each persistence call so a wedged database
// cannot stall a test run.
const recorderTimeout = 10 * time.Second

// storeRecorder bridges the orchestrator's run records to the
// persistence layer. All writes are best-effort: failures are logged
// and never affect the run.
type storeRecorder struct {
	store stores.Store
	log   *telemetry.Logger
}

func newStoreRecorder(store stores.Store, log *telemetry.Logger) *storeRecorder {
	return &storeRecorder{
		store: store,
		log:   log.NewComponentLogger("recorder"),
	}
}

// BeginRun persists the start of one image's run.
func (r *storeRecorder) BeginRun(runID, image string, zones []string, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
	defer cancel()

	zonesJSON, err := json.Marshal(zones)
	if err != nil {
		zonesJSON = []byte("[]")
	}

	now := time.Now().UTC()
	err = r.store.CreateRun(ctx, &stores.Run{
		ID:        runID,
		Image:     image,
		Zones:     string(zonesJSON),
		Status:    stores.RunStatusRunning,
		StartedAt: startedAt,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		r.log.WithRunID(runID).WithError(err).Warn("Failed to record run start")
	}
}

// RecordAttempt persists one deployment attempt.
func (r *storeRecorder) RecordAttempt(runID string, attempt orchestrator.AttemptRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
	defer cancel()

	var rawError *string
	if attempt.RawError != "" {
		rawError = &attempt.RawError
	}

	err := r.store.AppendAttempt(ctx, &stores.Attempt{
		RunID:       runID,
		Zone:        attempt.Zone,
		Pass:        attempt.Pass,
		Deployment:  attempt.DeploymentName,
		Outcome:     string(attempt.Outcome),
		RawError:    rawError,
		StartedAt:   attempt.StartedAt,
		CompletedAt: attempt.CompletedAt,
	})
	if err != nil {
		r.log.WithRunID(runID).WithError(err).Warn("Failed to record attempt")
	}
}

// FinishRun persists the terminal result of one image's run.
func (r *storeRecorder) FinishRun(runID string, result orchestrator.ImageResult, completedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
	defer cancel()

	status := stores.RunStatusSucceeded
	var errText *string
	if result.Status == orchestrator.ImageStatusFailed {
		status = stores.RunStatusFailed
		if result.Err != nil {
			msg := result.Err.Error()
			errText = &msg
		}
	}

	if err := r.store.FinishRun(ctx, runID, status, result.Passes, errText, completedAt); err != nil {
		r.log.WithRunID(runID).WithError(err).Warn("Failed to record run result")
	}
}
