package orchestrator

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and
// exit-code policy.
type ErrorClass string

const (
	// ErrorClassCapacity indicates a transient, zone-specific capacity
	// failure (stockout or quota). Recovered locally by zone rotation
	// and backoff.
	ErrorClassCapacity ErrorClass = "capacity"

	// ErrorClassHard indicates a deployment-definition or environment
	// failure. The image's run is aborted after diagnostics capture.
	ErrorClassHard ErrorClass = "hard"

	// ErrorClassTeardown indicates a failed destroy operation. Reported
	// but never retried.
	ErrorClassTeardown ErrorClass = "teardown"

	// ErrorClassSetup indicates a precondition failure (no images, no
	// zones, provisioner unreachable). Fatal before any attempt.
	ErrorClassSetup ErrorClass = "setup"
)

// BenchError is a classified error with deployment context.
type BenchError struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Image is the image under test, if applicable.
	Image string

	// Zone is the zone of the failing attempt, if applicable.
	Zone string

	// Deployment is the deployment name, if applicable.
	Deployment string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BenchError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Image != "" {
		msg += fmt.Sprintf(" (image=%s", e.Image)
		if e.Zone != "" {
			msg += fmt.Sprintf(", zone=%s", e.Zone)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BenchError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *BenchError) Is(target error) bool {
	t, ok := target.(*BenchError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewCapacityError creates a transient capacity error.
func NewCapacityError(message string, err error) *BenchError {
	return &BenchError{Class: ErrorClassCapacity, Message: message, Err: err}
}

// NewHardError creates a hard failure error.
func NewHardError(message string, err error) *BenchError {
	return &BenchError{Class: ErrorClassHard, Message: message, Err: err}
}

// NewTeardownError creates a teardown failure error.
func NewTeardownError(message string, err error) *BenchError {
	return &BenchError{Class: ErrorClassTeardown, Message: message, Err: err}
}

// NewSetupError creates a setup failure error.
func NewSetupError(message string, err error) *BenchError {
	return &BenchError{Class: ErrorClassSetup, Message: message, Err: err}
}

// WithImage adds image context to an error.
func (e *BenchError) WithImage(image string) *BenchError {
	e.Image = image
	return e
}

// WithZone adds zone context to an error.
func (e *BenchError) WithZone(zone string) *BenchError {
	e.Zone = zone
	return e
}

// WithDeployment adds deployment-name context to an error.
func (e *BenchError) WithDeployment(name string) *BenchError {
	e.Deployment = name
	return e
}

// IsCapacity returns true if the error is a transient capacity failure.
func IsCapacity(err error) bool {
	return classOf(err) == ErrorClassCapacity
}

// IsHard returns true if the error is a hard failure.
func IsHard(err error) bool {
	return classOf(err) == ErrorClassHard
}

// IsTeardown returns true if the error is a teardown failure.
func IsTeardown(err error) bool {
	return classOf(err) == ErrorClassTeardown
}

// IsSetup returns true if the error is a setup failure.
func IsSetup(err error) bool {
	return classOf(err) == ErrorClassSetup
}

func classOf(err error) ErrorClass {
	var e *BenchError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}
