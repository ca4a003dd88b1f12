package xbeeboot

import (
	"time"

	gostats "github.com/montanaflynn/stats"
)

// StatGroup names one of the four latency populations this transport
// tracks. montanaflynn/stats supplies the Min/Max/Mean reduction over
// each group's collected samples.
type StatGroup int

const (
	StatGroupLocalAT StatGroup = iota
	StatGroupRemoteAT
	StatGroupTransmit
	StatGroupReceive
	numStatGroups
)

func (g StatGroup) String() string {
	switch g {
	case StatGroupLocalAT:
		return "local-at"
	case StatGroupRemoteAT:
		return "remote-at"
	case StatGroupTransmit:
		return "transmit"
	case StatGroupReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// Summary is one group's reduced latency statistics.
type Summary struct {
	Group StatGroup
	Count int
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
}

// statTable tracks one group's in-flight send timestamps, keyed by the
// 8-bit sequence or frame id that correlates a send with its matching
// receive, plus the completed sample durations.
type statTable struct {
	sendTime [256]time.Time
	samples  []time.Duration
}

func (t *statTable) begin(seq byte) {
	t.sendTime[seq] = time.Now()
}

// complete records the elapsed time since begin(seq) as a sample. It is
// a no-op if begin was never called for seq (a stale or duplicate
// response), so repeated retries don't corrupt the distribution.
func (t *statTable) complete(seq byte) {
	start := t.sendTime[seq]
	if start.IsZero() {
		return
	}
	t.samples = append(t.samples, time.Since(start))
	t.sendTime[seq] = time.Time{}
}

func (t *statTable) summary(group StatGroup) Summary {
	if len(t.samples) == 0 {
		return Summary{Group: group}
	}
	floats := make([]float64, len(t.samples))
	for i, d := range t.samples {
		floats[i] = float64(d)
	}
	min, _ := gostats.Min(floats)
	max, _ := gostats.Max(floats)
	mean, _ := gostats.Mean(floats)
	return Summary{
		Group: group,
		Count: len(t.samples),
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Mean:  time.Duration(mean),
	}
}

// Stats holds all four latency groups. Every group is initialized the
// same way at construction, resolving the open question of whether the
// receive group (historically left uninitialized in the original
// driver) should be tracked: it is, on equal footing with the other
// three.
type Stats struct {
	tables [numStatGroups]statTable
}

func newStats() *Stats {
	return &Stats{}
}

func (s *Stats) begin(group StatGroup, seq byte)    { s.tables[group].begin(seq) }
func (s *Stats) complete(group StatGroup, seq byte) { s.tables[group].complete(seq) }

// Summaries returns one Summary per group, in StatGroup order.
func (s *Stats) Summaries() []Summary {
	out := make([]Summary, 0, numStatGroups)
	for i := range s.tables {
		out = append(out, s.tables[i].summary(StatGroup(i)))
	}
	return out
}
