package orchestrator

import "strings"

// Failure markers emitted by the provisioning layer. The stockout
// marker is checked before the quota marker: a message mentioning both
// is a stockout.
const (
	stockoutMarker = "does not have enough resources"
	quotaMarker    = "Error waiting for instance to create: Quota"
)

// Classify maps the raw diagnostic text of a failed deploy attempt to
// an AttemptOutcome. It is total: any text, including empty, yields a
// classification. Stockout and quota failures are zone- or
// capacity-specific and warrant rotating to a different zone; anything
// else indicates a deployment-definition or environment problem and
// aborts the image's run.
func Classify(raw string) AttemptOutcome {
	switch {
	case strings.Contains(raw, stockoutMarker):
		return OutcomeStockout
	case strings.Contains(raw, quotaMarker):
		return OutcomeQuotaExceeded
	default:
		return OutcomeOtherFailure
	}
}
