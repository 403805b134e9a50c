package orchestrator

import (
	"reflect"
	"testing"
)

func TestNewZoneRingEmpty(t *testing.T) {
	_, err := NewZoneRing(nil)
	if err == nil {
		t.Fatal("expected error for empty zone list")
	}
	if !IsSetup(err) {
		t.Errorf("expected setup error, got %v", err)
	}
}

func TestZoneRingRotate(t *testing.T) {
	ring, err := NewZoneRing([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("NewZoneRing: %v", err)
	}

	if got := ring.Front(); got != "a" {
		t.Errorf("Front() = %q, want %q", got, "a")
	}

	ring.Rotate()
	if got := ring.Zones(); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Errorf("after one rotation: %v", got)
	}

	ring.Rotate()
	ring.Rotate()
	if got := ring.Zones(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("after full cycle: %v", got)
	}
}

func TestZoneRingRotateCycle(t *testing.T) {
	zones := []string{"us-central1-a", "us-central1-b", "us-east1-c", "europe-west4-a"}
	ring, err := NewZoneRing(zones)
	if err != nil {
		t.Fatalf("NewZoneRing: %v", err)
	}

	// n rotations must restore the original order.
	for i := 0; i < ring.Len(); i++ {
		ring.Rotate()
	}
	if got := ring.Zones(); !reflect.DeepEqual(got, zones) {
		t.Errorf("after %d rotations: %v, want %v", len(zones), got, zones)
	}
}

func TestZoneRingSingleZone(t *testing.T) {
	ring, err := NewZoneRing([]string{"only"})
	if err != nil {
		t.Fatalf("NewZoneRing: %v", err)
	}

	ring.Rotate()
	if got := ring.Front(); got != "only" {
		t.Errorf("Front() after rotation = %q, want %q", got, "only")
	}
}

func TestZoneRingCopiesInput(t *testing.T) {
	zones := []string{"a", "b"}
	ring, err := NewZoneRing(zones)
	if err != nil {
		t.Fatalf("NewZoneRing: %v", err)
	}

	zones[0] = "mutated"
	if got := ring.Front(); got != "a" {
		t.Errorf("ring shares backing array with input: Front() = %q", got)
	}

	out := ring.Zones()
	out[0] = "mutated"
	if got := ring.Front(); got != "a" {
		t.Errorf("Zones() shares backing array with ring: Front() = %q", got)
	}
}
