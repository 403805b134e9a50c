// Package telemetry provides structured logging, tracing and metrics
// for imagebench. Components receive child loggers tagged with their
// name; image runs and deployment attempts are traced as spans and
// counted in the Prometheus registry.
package telemetry
