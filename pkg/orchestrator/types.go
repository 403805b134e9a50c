package orchestrator

import (
	"time"
)

// AttemptOutcome classifies the result of a single deployment attempt.
type AttemptOutcome string

const (
	// OutcomeSuccess indicates the deployment ran to completion.
	OutcomeSuccess AttemptOutcome = "success"

	// OutcomeStockout indicates the zone could not satisfy the resource
	// request (zone-level capacity exhaustion).
	OutcomeStockout AttemptOutcome = "stockout"

	// OutcomeQuotaExceeded indicates the project hit a quota limit while
	// instances were being created.
	OutcomeQuotaExceeded AttemptOutcome = "quota"

	// OutcomeOtherFailure indicates a failure that is not capacity
	// related. Retrying in another zone will not help.
	OutcomeOtherFailure AttemptOutcome = "other"
)

// Transient reports whether the outcome is a capacity problem that
// warrants rotating to a different zone and retrying after backoff.
func (o AttemptOutcome) Transient() bool {
	return o == OutcomeStockout || o == OutcomeQuotaExceeded
}

// ImageStatus is the terminal status of one image's test run.
type ImageStatus string

const (
	ImageStatusSucceeded ImageStatus = "succeeded"
	ImageStatusFailed    ImageStatus = "failed"
)

// AttemptRecord captures one deployment attempt for reporting and
// persistence.
type AttemptRecord struct {
	// Image is the machine image under test.
	Image string

	// Zone is the zone the deployment was attempted in.
	Zone string

	// Pass is the zero-based index of the pass over the zone list.
	Pass int

	// DeploymentName is the generated unique deployment name.
	DeploymentName string

	// Outcome is the classified result of the attempt.
	Outcome AttemptOutcome

	// RawError is the diagnostic text from a failed deploy, empty on
	// success.
	RawError string

	// StartedAt and CompletedAt bound the attempt.
	StartedAt   time.Time
	CompletedAt time.Time
}

// ImageResult is the terminal outcome of testing one image.
type ImageResult struct {
	// Image is the machine image that was tested.
	Image string

	// Status is the terminal status.
	Status ImageStatus

	// Passes is the number of passes over the zone list that were
	// started for this image.
	Passes int

	// Attempts lists every deployment attempt in order.
	Attempts []AttemptRecord

	// Err carries the failure cause for a failed image, nil otherwise.
	Err error
}

// Recorder receives run and attempt records for persistence. All
// methods are best-effort: implementations report their own errors and
// the orchestrator never fails a test run over a recording problem.
type Recorder interface {
	// BeginRun is called once per image before the first attempt.
	BeginRun(runID, image string, zones []string, startedAt time.Time)

	// RecordAttempt is called after every deployment attempt.
	RecordAttempt(runID string, attempt AttemptRecord)

	// FinishRun is called once per image with the terminal result.
	FinishRun(runID string, result ImageResult, completedAt time.Time)
}
