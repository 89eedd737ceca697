package parser

import (
	"time"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/pkg/segment"
)

// MediaPlaylist contains the parsed media playlist.
type MediaPlaylist struct {
	// TargetDuration is the #EXT-X-TARGETDURATION value in whole seconds
	TargetDuration uint64

	// Version is the #EXT-X-VERSION value, nil when the playlist does not declare one
	Version *uint32

	// Segments is the flat list of every segment in playback order
	Segments []segment.Segment

	// Discontinuities partitions Segments into contiguous runs
	Discontinuities []segment.DiscontinuityRun

	// Ended is set once #EXT-X-ENDLIST has been seen
	Ended bool
}

// TargetDurationValue returns the target duration as a time.Duration.
func (p *MediaPlaylist) TargetDurationValue() time.Duration {
	return time.Duration(p.TargetDuration) * time.Second
}

// VersionOr returns the declared version, or def when none was declared.
func (p *MediaPlaylist) VersionOr(def uint32) uint32 {
	if p.Version == nil {
		return def
	}
	return *p.Version
}

// TotalDuration returns the summed duration of all segments.
func (p *MediaPlaylist) TotalDuration() time.Duration {
	return segment.Total(p.Segments)
}
