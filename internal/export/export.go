// Package export renders parsed media playlists as JSON, plain text, or a
// normalized m3u8 document.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/grafov/m3u8"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/parser"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/pkg/segment"
)

// ErrUnencodable is returned when a playlist holds a value the m3u8 encoder
// cannot represent.
var ErrUnencodable = errors.New("playlist cannot be encoded as m3u8")

// maxEncodableVersion is the largest version grafov stores (uint8).
const maxEncodableVersion = math.MaxUint8

// Format selects an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatM3U8 Format = "m3u8"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatText, FormatM3U8}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(name) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", name)
}

// PlaylistSummary is the JSON view of a media playlist. Durations are in seconds.
type PlaylistSummary struct {
	TargetDuration  uint64           `json:"target_duration"`
	Version         *uint32          `json:"version,omitempty"`
	Ended           bool             `json:"ended"`
	TotalDuration   float64          `json:"total_duration"`
	Segments        []SegmentSummary `json:"segments"`
	Discontinuities []RunSummary     `json:"discontinuities"`
}

// SegmentSummary is the JSON view of a segment.
type SegmentSummary struct {
	Sequence int     `json:"sequence"`
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
}

// RunSummary is the JSON view of a discontinuity run.
type RunSummary struct {
	TotalDuration float64          `json:"total_duration"`
	Segments      []SegmentSummary `json:"segments"`
}

// Summarize builds the JSON view of pl.
func Summarize(pl *parser.MediaPlaylist) PlaylistSummary {
	s := PlaylistSummary{
		TargetDuration:  pl.TargetDuration,
		Version:         pl.Version,
		Ended:           pl.Ended,
		TotalDuration:   pl.TotalDuration().Seconds(),
		Segments:        summarizeSegments(pl.Segments),
		Discontinuities: make([]RunSummary, 0, len(pl.Discontinuities)),
	}

	for _, run := range pl.Discontinuities {
		s.Discontinuities = append(s.Discontinuities, RunSummary{
			TotalDuration: run.TotalDuration.Seconds(),
			Segments:      summarizeSegments(run.Segments),
		})
	}
	return s
}

func summarizeSegments(segs []segment.Segment) []SegmentSummary {
	out := make([]SegmentSummary, 0, len(segs))
	for _, seg := range segs {
		out = append(out, SegmentSummary{
			Sequence: seg.Sequence,
			URI:      seg.URI,
			Duration: seg.Duration.Seconds(),
		})
	}
	return out
}

// Write renders pl to w in the given format.
func Write(w io.Writer, pl *parser.MediaPlaylist, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, pl)
	case FormatText:
		return WriteText(w, pl)
	case FormatM3U8:
		return WriteM3U8(w, pl)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteJSON writes the indented JSON summary of pl.
func WriteJSON(w io.Writer, pl *parser.MediaPlaylist) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Summarize(pl)); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteText writes a human-readable report of pl, one block per run.
func WriteText(w io.Writer, pl *parser.MediaPlaylist) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	version := "unspecified"
	if pl.Version != nil {
		version = fmt.Sprintf("%d", *pl.Version)
	}

	fmt.Fprintf(tw, "target duration:\t%ds\n", pl.TargetDuration)
	fmt.Fprintf(tw, "version:\t%s\n", version)
	fmt.Fprintf(tw, "ended:\t%t\n", pl.Ended)
	fmt.Fprintf(tw, "segments:\t%d\n", len(pl.Segments))
	fmt.Fprintf(tw, "total duration:\t%v\n", pl.TotalDuration())

	for i, run := range pl.Discontinuities {
		fmt.Fprintf(tw, "\nrun %d\t%d segments\t%v\n", i, len(run.Segments), run.TotalDuration)
		for _, seg := range run.Segments {
			fmt.Fprintf(tw, "  #%d\t%v\t%s\n", seg.Sequence, seg.Duration, seg.URI)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	return nil
}

// WriteM3U8 re-encodes pl as a VOD media playlist. An #EXT-X-DISCONTINUITY is
// emitted before the first segment of every run after the first.
func WriteM3U8(w io.Writer, pl *parser.MediaPlaylist) error {
	mp, err := Encode(pl)
	if err != nil {
		return err
	}
	if _, err := mp.Encode().WriteTo(w); err != nil {
		return fmt.Errorf("write m3u8: %w", err)
	}
	return nil
}

// Encode converts pl into a grafov m3u8 media playlist.
func Encode(pl *parser.MediaPlaylist) (*m3u8.MediaPlaylist, error) {
	if pl.Version != nil && *pl.Version > maxEncodableVersion {
		return nil, fmt.Errorf("%w: version %d exceeds %d", ErrUnencodable, *pl.Version, maxEncodableVersion)
	}

	count := uint(len(pl.Segments))
	mp, err := m3u8.NewMediaPlaylist(0, count)
	if err != nil {
		return nil, fmt.Errorf("create media playlist: %w", err)
	}

	for i, run := range pl.Discontinuities {
		for j, seg := range run.Segments {
			if err := mp.Append(seg.URI, seg.Duration.Seconds(), ""); err != nil {
				return nil, fmt.Errorf("append segment %d: %w", seg.Sequence, err)
			}
			if i > 0 && j == 0 {
				if err := mp.SetDiscontinuity(); err != nil {
					return nil, fmt.Errorf("mark discontinuity before segment %d: %w", seg.Sequence, err)
				}
			}
		}
	}

	// Append raises TargetDuration to the longest segment; the declared value wins.
	mp.TargetDuration = float64(pl.TargetDuration)
	if pl.Version != nil {
		mp.SetVersion(uint8(*pl.Version))
	}
	if pl.Ended {
		mp.Close()
	}

	return mp, nil
}
