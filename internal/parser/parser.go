// Package parser turns Extended M3U media playlist text into a MediaPlaylist.
//
// Parsing is a single pass over the lines of the manifest. Only the tags needed
// to build the playlist model are interpreted; every other line is skipped.
// The parser performs no I/O and keeps no state between calls, so it is safe
// to use from multiple goroutines.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/pkg/segment"
)

const (
	headerTag        = "#EXTM3U"
	tagTargetDur     = "#EXT-X-TARGETDURATION"
	tagVersion       = "#EXT-X-VERSION"
	tagInf           = "#EXTINF"
	tagDiscontinuity = "#EXT-X-DISCONTINUITY"
	tagEndList       = "#EXT-X-ENDLIST"

	maxLineSize = 1024 * 1024
)

// tagHandler applies one recognized tag to the parse state.
type tagHandler func(st *state, value string) error

// tagHandlers maps a tag name, the text before the first ':', to its handler.
// Lines whose tag is not listed are ignored.
var tagHandlers = map[string]tagHandler{
	tagTargetDur:     (*state).targetDuration,
	tagVersion:       (*state).version,
	tagInf:           (*state).inf,
	tagDiscontinuity: (*state).discontinuity,
	tagEndList:       (*state).endList,
}

// segmentTags cannot appear between an #EXTINF and its URI.
var segmentTags = map[string]bool{
	tagInf:           true,
	tagDiscontinuity: true,
	tagEndList:       true,
}

// state is the accumulator threaded through the line loop.
type state struct {
	pl *MediaPlaylist

	line int

	// awaitingURI holds the #EXTINF duration until its URI line arrives.
	awaitingURI pendingSegment

	// cursor is the index in pl.Segments where the open discontinuity run starts.
	cursor int

	// total is the summed duration of pl.Segments. It bounds every run total.
	total time.Duration

	targetSet bool
}

type pendingSegment struct {
	set  bool
	line int
	raw  string
	dur  time.Duration
}

// Parse parses a complete media playlist.
func Parse(content string) (*MediaPlaylist, error) {
	return ParseReader(strings.NewReader(content))
}

// ParseReader reads r to the end and parses it as a media playlist.
func ParseReader(r io.Reader) (*MediaPlaylist, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	st := &state{pl: &MediaPlaylist{}}

	if err := st.header(scanner); err != nil {
		return nil, err
	}

	for scanner.Scan() {
		st.line++
		if err := st.processLine(strings.TrimSpace(scanner.Text())); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	return st.finish()
}

// header consumes lines up to and including the first non-empty one, which
// must be the #EXTM3U marker.
func (st *state) header(scanner *bufio.Scanner) error {
	for scanner.Scan() {
		st.line++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if line != headerTag {
			return &ParseError{Kind: HeaderMismatch, Line: st.line, Value: line}
		}
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read playlist: %w", err)
	}
	return &ParseError{Kind: HeaderMismatch}
}

func (st *state) processLine(line string) error {
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "#") {
		// URI lines only mean something right after an #EXTINF.
		if st.awaitingURI.set {
			return st.addSegment(line)
		}
		return nil
	}

	name, value, _ := strings.Cut(line, ":")
	handler, ok := tagHandlers[name]
	if !ok {
		return nil
	}

	if st.awaitingURI.set && segmentTags[name] {
		return &ParseError{Kind: DanglingSegment, Line: st.awaitingURI.line, Tag: tagInf}
	}

	return handler(st, value)
}

func (st *state) addSegment(uri string) error {
	pending := st.awaitingURI
	if st.total > math.MaxInt64-pending.dur {
		return &ParseError{Kind: MalformedNumber, Line: pending.line, Tag: tagInf, Value: pending.raw, Err: strconv.ErrRange}
	}
	st.total += pending.dur

	st.pl.Segments = append(st.pl.Segments, segment.Segment{
		URI:      uri,
		Duration: st.awaitingURI.dur,
		Sequence: len(st.pl.Segments),
	})
	st.awaitingURI = pendingSegment{}
	return nil
}

func (st *state) targetDuration(value string) error {
	n, err := parseUint(value, 64)
	if err != nil {
		return st.malformed(tagTargetDur, value, err)
	}
	st.pl.TargetDuration = n
	st.targetSet = true
	return nil
}

func (st *state) version(value string) error {
	n, err := parseUint(value, 32)
	if err != nil {
		return st.malformed(tagVersion, value, err)
	}
	v := uint32(n)
	st.pl.Version = &v
	return nil
}

// inf handles "#EXTINF:<duration>,<title>". The title is not kept.
func (st *state) inf(value string) error {
	raw, _, _ := strings.Cut(value, ",")
	raw = strings.TrimSpace(raw)

	d, err := parseSeconds(raw)
	if err != nil {
		return st.malformed(tagInf, raw, err)
	}

	st.awaitingURI = pendingSegment{set: true, line: st.line, raw: raw, dur: d}
	return nil
}

func (st *state) discontinuity(string) error {
	st.closeRun()
	return nil
}

func (st *state) endList(string) error {
	st.closeRun()
	st.pl.Ended = true
	return nil
}

// closeRun moves every segment since the last boundary into a new run. A
// boundary with nothing to close records no run, so runs are never empty.
func (st *state) closeRun() {
	if st.cursor > len(st.pl.Segments) {
		panic(fmt.Sprintf("parser: run cursor %d past %d segments", st.cursor, len(st.pl.Segments)))
	}
	if st.cursor == len(st.pl.Segments) {
		return
	}

	st.pl.Discontinuities = append(st.pl.Discontinuities, segment.NewRun(st.pl.Segments[st.cursor:]))
	st.cursor = len(st.pl.Segments)
}

func (st *state) malformed(tag, value string, err error) error {
	return &ParseError{Kind: MalformedNumber, Line: st.line, Tag: tag, Value: value, Err: err}
}

func (st *state) finish() (*MediaPlaylist, error) {
	if st.awaitingURI.set {
		return nil, &ParseError{Kind: DanglingSegment, Line: st.awaitingURI.line, Tag: tagInf}
	}

	// End of input acts as an implicit boundary: segments after the last
	// #EXT-X-DISCONTINUITY (or in a playlist with none at all) still form a run
	// even when #EXT-X-ENDLIST is missing.
	st.closeRun()

	if !st.targetSet {
		return nil, &ParseError{Kind: MissingRequiredField, Tag: tagTargetDur}
	}

	return st.pl, nil
}
