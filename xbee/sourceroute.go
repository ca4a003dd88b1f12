package xbee

// MaxSourceRouteHops bounds the cached route; a Route Record Indicator
// reporting more hops than this is ignored.
const MaxSourceRouteHops = 40

// SourceRoute is the cached route to the session's target: an ordered
// list of intermediate 16-bit addresses, nearest-to-target first. Hops
// -1 means unset. Changed true means the next outbound addressed API
// call must be preceded by a Create Source Route frame.
type SourceRoute struct {
	Hops    int
	Addrs   [MaxSourceRouteHops]uint16
	Changed bool
}

// NewSourceRoute returns a route in the unset state.
func NewSourceRoute() SourceRoute {
	return SourceRoute{Hops: -1}
}

// Update applies a Route Record Indicator's hop list. It replaces the
// cached route and sets Changed when either the hop count or the
// address vector differs from what was cached. A route longer than
// MaxSourceRouteHops is ignored entirely.
func (r *SourceRoute) Update(addrs []uint16) {
	if len(addrs) > MaxSourceRouteHops {
		return
	}
	if r.Hops == len(addrs) && r.sameAddrs(addrs) {
		return
	}
	r.Hops = len(addrs)
	for i := range r.Addrs {
		r.Addrs[i] = 0
	}
	copy(r.Addrs[:], addrs)
	r.Changed = true
}

func (r *SourceRoute) sameAddrs(addrs []uint16) bool {
	for i, a := range addrs {
		if r.Addrs[i] != a {
			return false
		}
	}
	return true
}

// NeedsAnnounce reports whether an outbound frame of apiType must be
// preceded by a Create Source Route frame: any addressed call other
// than local AT (which carries no destination) and Create Source Route
// itself, while the cached route has changed since it was last
// announced.
func (r *SourceRoute) NeedsAnnounce(apiType byte) bool {
	return r.Changed && apiType != FrameLocalAT && apiType != FrameCreateSourceRoute
}

// Announced clears the Changed flag once a Create Source Route frame
// has been emitted for the current route.
func (r *SourceRoute) Announced() {
	r.Changed = false
}

// ChunkReduction returns the byte count a stop-and-wait chunk budget
// must shrink by while this route is cached, per the 2*hops+2 formula.
// Zero when hops is unset, zero or the reduction would not fit within
// budget.
func (r *SourceRoute) ChunkReduction(budget int) int {
	if r.Hops <= 0 {
		return 0
	}
	reduction := 2*r.Hops + 2
	if reduction >= budget {
		return 0
	}
	return reduction
}
