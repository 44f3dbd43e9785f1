package fsrepo

import (
	"time"

	"github.com/pippin-db/pippin/core"
)

// Control is the reference core.Control over a Backend: it stamps commit
// metadata with wall-clock time (unlike core.MemControl's deterministic
// counter, meant for tests) and carries no custom header validation or user
// data by default.
type Control struct {
	backend *Backend
	factory core.ElementFactory
	policy  core.SnapshotPolicy
	logger  core.Logger
	metrics core.Recorder

	// UserData is stamped into every snapshot/commit-log header written
	// through this Control; nil means none.
	UserData [][]byte
}

// NewControl builds a Control over backend. policy, logger and metrics may
// be nil; a nil policy gets an always-off core.CountingSnapshotPolicy(0)
// caller must still call WriteSnapshot explicitly), nil logger/metrics fall
// back to core.NopLogger/core.NoopRecorder.
func NewControl(backend *Backend, factory core.ElementFactory, policy core.SnapshotPolicy, logger core.Logger, metrics core.Recorder) *Control {
	if policy == nil {
		policy = core.NewCountingSnapshotPolicy(0)
	}
	return &Control{backend: backend, factory: factory, policy: policy, logger: logger, metrics: metrics}
}

func (c *Control) IO() core.RepoIO                   { return c.backend }
func (c *Control) SnapshotPolicy() core.SnapshotPolicy { return c.policy }
func (c *Control) ElementFactory() core.ElementFactory { return c.factory }
func (c *Control) ReadHeader(core.Header) error       { return nil }
func (c *Control) MakeUserData(core.Header) [][]byte  { return c.UserData }

func (c *Control) Logger() core.Logger {
	if c.logger != nil {
		return c.logger
	}
	return core.NopLogger
}

func (c *Control) Metrics() core.Recorder {
	if c.metrics != nil {
		return c.metrics
	}
	return core.NoopRecorder
}

func (c *Control) MakeCommitMeta(parent core.Meta) core.Meta {
	return core.Meta{Timestamp: time.Now().Unix()}
}
