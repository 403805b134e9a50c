package orchestrator

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want AttemptOutcome
	}{
		{
			name: "stockout marker",
			raw:  "ZONE_RESOURCE_POOL_EXHAUSTED: The zone 'us-central1-a' does not have enough resources available",
			want: OutcomeStockout,
		},
		{
			name: "quota marker",
			raw:  "Error waiting for instance to create: Quota 'C2_CPUS' exceeded",
			want: OutcomeQuotaExceeded,
		},
		{
			name: "both markers classifies as stockout",
			raw:  "Error waiting for instance to create: Quota exceeded because zone does not have enough resources",
			want: OutcomeStockout,
		},
		{
			name: "unrelated failure",
			raw:  "Error: invalid blueprint: unknown module id",
			want: OutcomeOtherFailure,
		},
		{
			name: "empty text",
			raw:  "",
			want: OutcomeOtherFailure,
		},
		{
			name: "marker embedded mid-output",
			raw:  "step 3/7 failed\nterraform apply: resource error: the zone does not have enough resources to fulfill the request\nexit status 1",
			want: OutcomeStockout,
		},
		{
			name: "quota text without exact prefix is other",
			raw:  "Quota 'C2_CPUS' exceeded",
			want: OutcomeOtherFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.raw); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAttemptOutcomeTransient(t *testing.T) {
	if !OutcomeStockout.Transient() {
		t.Error("stockout should be transient")
	}
	if !OutcomeQuotaExceeded.Transient() {
		t.Error("quota should be transient")
	}
	if OutcomeOtherFailure.Transient() {
		t.Error("other failure should not be transient")
	}
	if OutcomeSuccess.Transient() {
		t.Error("success should not be transient")
	}
}
