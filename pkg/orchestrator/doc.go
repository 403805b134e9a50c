// Package orchestrator implements the deployment scheduling core of
// imagebench: the per-image state machine that picks a zone, attempts a
// benchmark deployment, classifies failures, rotates capacity-starved
// zones to the back of the candidate list, backs off exponentially
// between passes, and reconciles fire-and-forget teardown work before
// the process exits.
package orchestrator
