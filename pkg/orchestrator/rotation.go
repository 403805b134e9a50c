package orchestrator

// ZoneRing maintains the working copy of the candidate zone list for
// one image's attempt loop. The front of the ring is the next zone to
// try. A zone that fails with a capacity outcome is demoted to the
// tail rather than removed, so it is retried on a later pass after
// backoff. Duplicates are tolerated and treated independently.
type ZoneRing struct {
	zones []string
}

// NewZoneRing creates a ring over the given ordered zone list. The
// list must be non-empty.
func NewZoneRing(zones []string) (*ZoneRing, error) {
	if len(zones) == 0 {
		return nil, NewSetupError("zone list is empty", nil)
	}
	ring := &ZoneRing{zones: make([]string, len(zones))}
	copy(ring.zones, zones)
	return ring, nil
}

// Len returns the number of zones in the ring.
func (r *ZoneRing) Len() int {
	return len(r.zones)
}

// Front returns the next zone to try without modifying the ring.
func (r *ZoneRing) Front() string {
	return r.zones[0]
}

// Rotate moves the front zone to the tail. With a single zone this is
// a no-op: the same zone is retried next pass, and backoff rather than
// zone diversity provides the retry value.
func (r *ZoneRing) Rotate() {
	if len(r.zones) < 2 {
		return
	}
	front := r.zones[0]
	copy(r.zones, r.zones[1:])
	r.zones[len(r.zones)-1] = front
}

// Zones returns a copy of the current ordering.
func (r *ZoneRing) Zones() []string {
	out := make([]string, len(r.zones))
	copy(out, r.zones)
	return out
}
