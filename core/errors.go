package core

import "fmt"

// ArgError reports an invalid argument passed to a public API — an empty or
// oversize repo name, a malformed remark, and similar caller mistakes.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return "pippin: argument error: " + e.Msg }

// ReadSpan locates a parse failure inside a 16-byte header block.
type ReadSpan struct {
	Offset int // byte offset within the block
	Length int // number of bytes the failing field occupies
}

// ReadError is a byte-level parse failure in the header, snapshot or
// commit-log codecs. Pos is the absolute byte offset into the stream.
type ReadError struct {
	Msg  string
	Pos  int64
	Span ReadSpan
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("pippin: read error at byte %d (span %d+%d): %s", e.Pos, e.Span.Offset, e.Span.Length, e.Msg)
}

// IoError wraps an error surfaced by the RepoIO backend.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("pippin: io error during %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// ErrReadOnly is returned when a write is attempted through a read-only RepoIO.
var ErrReadOnly = &readOnlyError{}

type readOnlyError struct{}

func (*readOnlyError) Error() string { return "pippin: repo is read-only" }

// TipErrorKind distinguishes the two ways Partition.Tip can fail.
type TipErrorKind int

const (
	// TipNotReady means zero tips are known — the partition has no state.
	TipNotReady TipErrorKind = iota
	// TipMergeRequired means more than one tip exists and must be merged
	// before a single authoritative state can be named.
	TipMergeRequired
)

type TipError struct {
	Kind TipErrorKind
}

func (e *TipError) Error() string {
	switch e.Kind {
	case TipNotReady:
		return "pippin: no tip available: partition not ready"
	case TipMergeRequired:
		return "pippin: more than one tip: merge required"
	default:
		return "pippin: tip error"
	}
}

// MergeErrorKind enumerates merge failure modes.
type MergeErrorKind int

const (
	MergeNoCommonAncestor MergeErrorKind = iota
	MergeNoState
	MergeNotSolved
)

type MergeError struct {
	Kind MergeErrorKind
	Msg  string
}

func (e *MergeError) Error() string {
	switch e.Kind {
	case MergeNoCommonAncestor:
		return "pippin: merge error: no common ancestor"
	case MergeNoState:
		return "pippin: merge error: state unavailable: " + e.Msg
	case MergeNotSolved:
		return "pippin: merge error: conflict left unsolved: " + e.Msg
	default:
		return "pippin: merge error"
	}
}

// PatchOpKind enumerates commit apply failure modes.
type PatchOpKind int

const (
	PatchNoParent PatchOpKind = iota
	PatchSumMismatch
	PatchElementOp
)

type PatchOpError struct {
	Kind PatchOpKind
	Msg  string
}

func (e *PatchOpError) Error() string {
	switch e.Kind {
	case PatchNoParent:
		return "pippin: patch error: parent state not found"
	case PatchSumMismatch:
		return "pippin: patch error: statesum mismatch after apply: " + e.Msg
	case PatchElementOp:
		return "pippin: patch error: invalid element operation: " + e.Msg
	default:
		return "pippin: patch error"
	}
}

// MatchErrorKind enumerates prefix-lookup failure modes.
type MatchErrorKind int

const (
	MatchNone MatchErrorKind = iota
	MatchMulti
)

type MatchError struct {
	Kind     MatchErrorKind
	A, B     Sum
	HasMatch bool
}

func (e *MatchError) Error() string {
	switch e.Kind {
	case MatchNone:
		return "pippin: no state matches prefix"
	case MatchMulti:
		return fmt.Sprintf("pippin: ambiguous prefix matches %s and %s", e.A.Hex(false), e.B.Hex(false))
	default:
		return "pippin: match error"
	}
}

// OtherError is the catch-all for invariant violations at module boundaries.
type OtherError struct {
	Msg string
}

func (e *OtherError) Error() string { return "pippin: " + e.Msg }
