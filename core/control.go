package core

import "io"

// RepoIO is the file-discovery and concrete I/O backend a host application
// supplies. The core never picks paths or opens files itself; it only asks
// this capability for numbered snapshot and commit-log streams.
type RepoIO interface {
	// SSLen reports one past the highest snapshot number the backend is
	// currently aware of (0 if none).
	SSLen() int
	// SSCLLen reports one past the highest commit-log number recorded
	// against snapshot ss.
	SSCLLen(ss int) int
	HasSS(ss int) bool

	ReadSS(ss int) (r io.ReadCloser, ok bool, err error)
	ReadSSCL(ss, cl int) (r io.ReadCloser, ok bool, err error)

	// NewSS/NewSSCL create a file that must not already exist; ok is false
	// (with a nil error) when it already does, so the caller can probe the
	// next number instead of truncating existing data.
	NewSS(ss int) (w io.WriteCloser, ok bool, err error)
	NewSSCL(ss, cl int) (w io.WriteCloser, ok bool, err error)
	// AppendSSCL opens an existing commit log for append; ok is false when
	// the file does not exist yet.
	AppendSSCL(ss, cl int) (w io.WriteCloser, ok bool, err error)

	ReadOnly() bool
}

// SnapshotPolicy decides when a Partition should fold its history into a
// fresh snapshot.
type SnapshotPolicy interface {
	Count(commitsAdded, changesAdded int)
	WantSnapshot() bool
	ForceSnapshot()
	Reset()
}

// Recorder is the metrics facade the engine reports to. Like Logger, it is
// injected rather than imported, so core carries no dependency on any
// particular metrics library.
type Recorder interface {
	CommitPushed()
	MergeRun()
	SnapshotWritten()
	BytesRead(n int)
	BytesWritten(n int)
	Collision()
}

type noopRecorder struct{}

func (noopRecorder) CommitPushed()     {}
func (noopRecorder) MergeRun()         {}
func (noopRecorder) SnapshotWritten()  {}
func (noopRecorder) BytesRead(int)     {}
func (noopRecorder) BytesWritten(int)  {}
func (noopRecorder) Collision()        {}

// NoopRecorder discards every metric. It is the default when a Control
// implementation returns a nil Recorder.
var NoopRecorder Recorder = noopRecorder{}

// Control is the multi-partition coordination capability: it supplies I/O,
// the snapshot policy, commit metadata stamping, the element factory used to
// decode stored values, and optional header hooks.
type Control interface {
	IO() RepoIO
	SnapshotPolicy() SnapshotPolicy
	// MakeCommitMeta returns the Timestamp and Ext fields for a new state's
	// metadata; Number is always stamped by the engine itself
	// (parent.Number+1, or 0 for genesis), so callers may leave it zero.
	MakeCommitMeta(parent Meta) Meta
	ElementFactory() ElementFactory
	// ReadHeader is an optional hook invoked with every header this
	// partition reads; return an error to abort the read. May be nil.
	ReadHeader(h Header) error
	// MakeUserData returns the opaque user-data blocks to attach to a
	// header about to be written.
	MakeUserData(h Header) [][]byte
	Logger() Logger
	Metrics() Recorder
}
