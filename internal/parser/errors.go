package parser

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure kind. A *ParseError unwraps to one of these,
// so callers can use errors.Is without inspecting the details.
var (
	ErrHeaderMismatch       = errors.New("not a valid Extended M3U manifest")
	ErrMalformedNumber      = errors.New("malformed number")
	ErrDanglingSegment      = errors.New("segment tag without URI")
	ErrMissingRequiredField = errors.New("missing required field")
)

// ErrorKind identifies why a parse failed.
type ErrorKind int

const (
	// HeaderMismatch means the first non-empty line was not #EXTM3U.
	HeaderMismatch ErrorKind = iota + 1
	// MalformedNumber means a numeric tag value was not a valid non-negative number.
	MalformedNumber
	// DanglingSegment means an #EXTINF was never followed by its URI line.
	DanglingSegment
	// MissingRequiredField means a mandatory tag never appeared.
	MissingRequiredField
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case HeaderMismatch:
		return "HeaderMismatch"
	case MalformedNumber:
		return "MalformedNumber"
	case DanglingSegment:
		return "DanglingSegment"
	case MissingRequiredField:
		return "MissingRequiredField"
	default:
		return "Unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case HeaderMismatch:
		return ErrHeaderMismatch
	case MalformedNumber:
		return ErrMalformedNumber
	case DanglingSegment:
		return ErrDanglingSegment
	case MissingRequiredField:
		return ErrMissingRequiredField
	default:
		return nil
	}
}

// ParseError describes a failed parse.
type ParseError struct {
	Kind ErrorKind

	// Line is the 1-based line number the failure was detected on, 0 when the
	// failure is only known at end of input.
	Line int

	// Tag is the tag or field name involved, e.g. "#EXT-X-VERSION".
	Tag string

	// Value is the raw offending text, if any.
	Value string

	// Err is the underlying cause, e.g. a *strconv.NumError.
	Err error
}

func (e *ParseError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Tag != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Tag)
	}
	if e.Value != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Value)
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ParseError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
