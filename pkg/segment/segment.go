// Package segment defines data structures for HLS media segments and the
// discontinuity runs they are grouped into.
package segment

import "time"

// Segment represents a single HLS media segment.
type Segment struct {
	// URI is the line that followed the segment's #EXTINF tag, kept verbatim
	URI string

	// Duration is the segment duration from #EXTINF, exact to the nanosecond
	Duration time.Duration

	// Sequence is the position in the source playlist
	Sequence int
}

// DiscontinuityRun is a contiguous span of segments between two discontinuity
// boundaries.
type DiscontinuityRun struct {
	// TotalDuration is the sum of the durations of Segments
	TotalDuration time.Duration

	// Segments are the members of the run in playback order
	Segments []Segment
}

// NewRun builds a run from segs, deriving its total duration. The slice is
// copied so the run does not alias the caller's backing array.
func NewRun(segs []Segment) DiscontinuityRun {
	members := make([]Segment, len(segs))
	copy(members, segs)

	return DiscontinuityRun{
		TotalDuration: Total(members),
		Segments:      members,
	}
}

// Total returns the summed duration of segs.
func Total(segs []Segment) time.Duration {
	var total time.Duration
	for _, seg := range segs {
		total += seg.Duration
	}
	return total
}
