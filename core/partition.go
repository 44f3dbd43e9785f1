package core

import (
	"io"
	"sort"
)

// maxFileNumber bounds the probe loop Partition uses when picking the next
// free snapshot or commit-log number; reaching it means something is very
// wrong with the backing RepoIO (or it is lying about existing files).
const maxFileNumber = 1_000_000

// Partition is the state graph engine for one partition: it tracks every
// PartState it has loaded, which of them are current tips, and the queue of
// commits not yet flushed to the backing RepoIO. A Partition holds no lock
// and is not safe for concurrent use by multiple goroutines.
type Partition struct {
	name        string
	partitionID uint32
	control     Control

	states    map[Sum]*PartState
	ancestors map[Sum]struct{} // sums known superseded but not materialized
	tips      map[Sum]struct{} // sums materialized and not yet superseded

	unsaved []*Commit

	ss0, ss1 int // loaded snapshot-number range [ss0, ss1)
}

func (p *Partition) logger() Logger {
	if p.control == nil {
		return NopLogger
	}
	if l := p.control.Logger(); l != nil {
		return l
	}
	return NopLogger
}

func (p *Partition) metrics() Recorder {
	if p.control == nil {
		return NoopRecorder
	}
	if m := p.control.Metrics(); m != nil {
		return m
	}
	return NoopRecorder
}

func (p *Partition) policy() SnapshotPolicy {
	if p.control == nil {
		return nil
	}
	return p.control.SnapshotPolicy()
}

func stampMeta(control Control, parent *Meta) Meta {
	var base Meta
	if parent != nil {
		base = *parent
	}
	m := control.MakeCommitMeta(base)
	if parent == nil {
		m.Number = 0
	} else {
		m.Number = parent.Number + 1
	}
	return m
}

// Name returns the partition's header name.
func (p *Partition) Name() string { return p.name }

// PartitionID returns the 24-bit id newly allocated elements are scoped under.
func (p *Partition) PartitionID() uint32 { return p.partitionID }

// CreatePartition initializes a brand-new partition: an empty genesis state,
// written immediately as snapshot 0.
func CreatePartition(control Control, name string, partitionID uint32) (*Partition, error) {
	if err := validateHeaderName(name); err != nil {
		return nil, err
	}
	meta := stampMeta(control, nil)
	genesis := NewGenesisPartState(meta)

	p := &Partition{
		name:        name,
		partitionID: partitionID,
		control:     control,
		states:      map[Sum]*PartState{},
		ancestors:   map[Sum]struct{}{},
		tips:        map[Sum]struct{}{},
	}
	p.addState(genesis)

	if err := p.writeSnapshotAt(0, genesis); err != nil {
		return nil, err
	}
	p.ss0, p.ss1 = 0, 1
	return p, nil
}

// OpenPartition reconstructs a Partition from whatever its RepoIO already
// holds: the newest snapshot that parses, plus (if readData) every commit
// log recorded since. If no snapshot parses at all, an empty genesis state
// is assumed, matching CreatePartition's initial state.
func OpenPartition(control Control, readData bool) (*Partition, error) {
	io_ := control.IO()
	p := &Partition{
		control:   control,
		states:    map[Sum]*PartState{},
		ancestors: map[Sum]struct{}{},
		tips:      map[Sum]struct{}{},
	}

	n := io_.SSLen()
	foundSS := -1
	var base *PartState
	for ss := n - 1; ss >= 0; ss-- {
		if !io_.HasSS(ss) {
			continue
		}
		st, h, err := p.readSnapshotFile(ss)
		if err != nil {
			continue
		}
		foundSS = ss
		base = st
		p.name = h.Name
		if h.PartID != nil {
			p.partitionID = uint32(*h.PartID)
		}
		break
	}
	if foundSS == -1 {
		meta := stampMeta(control, nil)
		base = NewGenesisPartState(meta)
		foundSS = 0
	}
	p.addState(base)
	p.ss0, p.ss1 = foundSS, foundSS+1

	if readData {
		commits, err := p.collectLogs(foundSS, n)
		if err != nil {
			return nil, err
		}
		if err := p.replayCommits(commits); err != nil {
			return nil, err
		}
		p.ss1 = n
	}
	return p, nil
}

func (p *Partition) readSnapshotFile(ss int) (*PartState, Header, error) {
	r, ok, err := p.control.IO().ReadSS(ss)
	if err != nil {
		return nil, Header{}, &IoError{Op: "read snapshot", Err: err}
	}
	if !ok {
		return nil, Header{}, &OtherError{Msg: "snapshot not present"}
	}
	defer r.Close()
	h, err := ReadHeaderWithLogger(r, p.logger())
	if err != nil {
		return nil, Header{}, err
	}
	if err := p.control.ReadHeader(h); err != nil {
		return nil, Header{}, err
	}
	st, err := ReadSnapshot(r, h.Version, p.control.ElementFactory())
	if err != nil {
		return nil, Header{}, err
	}
	return st, h, nil
}

// collectLogs reads every commit-log record recorded against snapshots
// [ss0, ss1), in file and record order. A log whose header or body magic
// does not parse is skipped (it cannot be distinguished here from a
// concurrently-created file still being written); ReadCommitRecords itself
// tolerates a torn trailing record. An error from Control.ReadHeader, or
// from decoding a complete, checksummed record, is returned.
func (p *Partition) collectLogs(ss0, ss1 int) ([]*Commit, error) {
	io_ := p.control.IO()
	var commits []*Commit
	for ss := ss0; ss < ss1; ss++ {
		clCount := io_.SSCLLen(ss)
		for cl := 0; cl < clCount; cl++ {
			r, ok, err := io_.ReadSSCL(ss, cl)
			if err != nil {
				return nil, &IoError{Op: "read commit log", Err: err}
			}
			if !ok {
				continue
			}
			cs, err := func() ([]*Commit, error) {
				defer r.Close()
				h, err := ReadHeaderWithLogger(r, p.logger())
				if err != nil {
					return nil, nil
				}
				if err := p.control.ReadHeader(h); err != nil {
					return nil, err
				}
				if err := ReadCommitLogMagic(r); err != nil {
					return nil, nil
				}
				return ReadCommitRecords(r, p.control.ElementFactory())
			}()
			if err != nil {
				return nil, err
			}
			commits = append(commits, cs...)
		}
	}
	return commits, nil
}

// replayCommits applies commits whose parent is already known, repeatedly,
// until a full pass makes no progress; this tolerates commit logs whose
// records arrived out of causal order across files.
func (p *Partition) replayCommits(commits []*Commit) error {
	remaining := commits
	for len(remaining) > 0 {
		var next []*Commit
		progressed := false
		for _, c := range remaining {
			ready := true
			for _, parentSum := range c.Parents {
				if _, ok := p.states[parentSum]; !ok {
					ready = false
					break
				}
			}
			if !ready {
				next = append(next, c)
				continue
			}
			if err := p.AddCommit(c); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			break
		}
		remaining = next
	}
	return nil
}

// addState records st as known, updating tip/ancestor bookkeeping: a state
// is a tip until some other loaded state names it as a parent.
func (p *Partition) addState(st *PartState) {
	sum := st.Statesum()
	if _, exists := p.states[sum]; exists {
		return
	}
	p.states[sum] = st
	delete(p.ancestors, sum)
	p.tips[sum] = struct{}{}
	for _, parent := range st.Parents() {
		delete(p.tips, parent)
		if _, ok := p.states[parent]; !ok {
			p.ancestors[parent] = struct{}{}
		}
	}
}

// Tip returns the partition's single current state. It fails with
// TipNotReady if nothing is loaded, or TipMergeRequired if more than one tip
// currently exists.
func (p *Partition) Tip() (*PartState, error) {
	switch len(p.tips) {
	case 0:
		return nil, &TipError{Kind: TipNotReady}
	case 1:
		for sum := range p.tips {
			return p.states[sum], nil
		}
	}
	return nil, &TipError{Kind: TipMergeRequired}
}

// Tips returns every current tip state, in unspecified order.
func (p *Partition) Tips() []*PartState {
	out := make([]*PartState, 0, len(p.tips))
	for sum := range p.tips {
		out = append(out, p.states[sum])
	}
	return out
}

// State looks up a previously loaded state by its exact statesum.
func (p *Partition) State(sum Sum) (*PartState, error) {
	st, ok := p.states[sum]
	if !ok {
		return nil, &MergeError{Kind: MergeNoState, Msg: sum.Hex(false)}
	}
	return st, nil
}

// StateFromString resolves a hex sum prefix to the unique loaded state it
// identifies. It fails with MatchNone if nothing matches, or MatchMulti if
// more than one loaded state shares the prefix.
func (p *Partition) StateFromString(prefix string) (*PartState, error) {
	raw, err := ParseSumPrefix(prefix)
	if err != nil {
		return nil, err
	}
	var first, second Sum
	found, multi := false, false
	for sum := range p.states {
		if !sum.MatchesPrefix(raw) {
			continue
		}
		if !found {
			first, found = sum, true
			continue
		}
		second, multi = sum, true
		break
	}
	if !found {
		return nil, &MatchError{Kind: MatchNone}
	}
	if multi {
		return nil, &MatchError{Kind: MatchMulti, A: first, B: second, HasMatch: true}
	}
	return p.states[first], nil
}

func statesEqualByValue(a, b *PartState) bool {
	if len(a.elements) != len(b.elements) {
		return false
	}
	for id, av := range a.elements {
		bv, ok := b.elements[id]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// addPair records a freshly produced (commit, state) pair, perturbing both
// deterministically via MutateMeta on a statesum collision against an
// unequal existing state, up to 32 attempts (spec.md §9).
func (p *Partition) addPair(commit *Commit, state *PartState, queueForWrite bool) error {
	for attempt := uint64(1); ; attempt++ {
		existing, exists := p.states[state.Statesum()]
		if !exists {
			break
		}
		if statesEqualByValue(existing, state) {
			return nil
		}
		if attempt > 32 {
			return &OtherError{Msg: "statesum collision did not resolve within 32 attempts"}
		}
		state = state.MutateMeta(attempt)
		commit.MutateMeta(attempt)
		p.metrics().Collision()
	}
	p.addState(state)
	if queueForWrite {
		p.unsaved = append(p.unsaved, commit)
	}
	if pol := p.policy(); pol != nil {
		pol.Count(1, len(commit.Changes))
	}
	p.metrics().CommitPushed()
	return nil
}

// PushState freezes mut (which must have been cloned from a state this
// partition already knows), diffs it against its parent, and records the
// resulting commit. It returns false if mut carries no changes.
func (p *Partition) PushState(mut *MutPartState) (bool, error) {
	if !mut.hasParent {
		return false, &OtherError{Msg: "push_state requires a state cloned from an existing parent"}
	}
	parent, ok := p.states[mut.parentSum]
	if !ok {
		return false, &PatchOpError{Kind: PatchNoParent}
	}
	meta := stampMeta(p.control, &parent.meta)
	child := mut.Freeze(meta)
	commit, changed := FromDiff(parent, child)
	if !changed {
		return false, nil
	}
	if err := p.addPair(commit, child, true); err != nil {
		return false, err
	}
	return true, nil
}

// PushCommit applies an externally produced commit and queues it for write,
// as though it had been produced locally.
func (p *Partition) PushCommit(commit *Commit) error {
	return p.applyAndAdd(commit, true)
}

// AddCommit applies a commit read back from storage without queuing it for
// another write.
func (p *Partition) AddCommit(commit *Commit) error {
	return p.applyAndAdd(commit, false)
}

func (p *Partition) applyAndAdd(commit *Commit, queue bool) error {
	if len(commit.Parents) == 0 {
		return &PatchOpError{Kind: PatchNoParent, Msg: "commit has no parents"}
	}
	parent, ok := p.states[commit.Parents[0]]
	if !ok {
		return &PatchOpError{Kind: PatchNoParent}
	}
	state, err := Apply(commit, parent)
	if err != nil {
		return err
	}
	return p.addPair(commit, state, queue)
}

// UnsavedLen reports how many commits are queued but not yet written.
func (p *Partition) UnsavedLen() int { return len(p.unsaved) }

// RequireSnapshot reports whether the configured SnapshotPolicy wants a
// fresh snapshot written.
func (p *Partition) RequireSnapshot() bool {
	pol := p.policy()
	return pol != nil && pol.WantSnapshot()
}

func (p *Partition) openNewSS(startAt int) (int, io.WriteCloser, error) {
	io_ := p.control.IO()
	for ss := startAt; ss < maxFileNumber; ss++ {
		w, ok, err := io_.NewSS(ss)
		if err != nil {
			return 0, nil, &IoError{Op: "new snapshot", Err: err}
		}
		if ok {
			return ss, w, nil
		}
	}
	return 0, nil, &OtherError{Msg: "exhausted snapshot numbers"}
}

func (p *Partition) openNewCL(ss, startAt int) (int, io.WriteCloser, error) {
	io_ := p.control.IO()
	for cl := startAt; cl < maxFileNumber; cl++ {
		w, ok, err := io_.NewSSCL(ss, cl)
		if err != nil {
			return 0, nil, &IoError{Op: "new commit log", Err: err}
		}
		if ok {
			return cl, w, nil
		}
	}
	return 0, nil, &OtherError{Msg: "exhausted commit log numbers"}
}

func (p *Partition) headerUserData() [][]byte {
	return p.control.MakeUserData(Header{Kind: HeaderSnapshot, Name: p.name})
}

func (p *Partition) writeSnapshotAt(ss int, state *PartState) error {
	if p.control.IO().ReadOnly() {
		return ErrReadOnly
	}
	w, ok, err := p.control.IO().NewSS(ss)
	if err != nil {
		return &IoError{Op: "new snapshot", Err: err}
	}
	if !ok {
		return &OtherError{Msg: "snapshot file already exists"}
	}
	defer w.Close()
	pid := uint64(p.partitionID)
	h := Header{Kind: HeaderSnapshot, Name: p.name, PartID: &pid, UserData: p.headerUserData()}
	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if err := WriteSnapshot(w, state); err != nil {
		return err
	}
	p.metrics().SnapshotWritten()
	return nil
}

// WriteFast appends every queued commit to the current commit log, creating
// a fresh one (with its own header and body magic) if none is open yet.
func (p *Partition) WriteFast() error {
	if len(p.unsaved) == 0 {
		return nil
	}
	io_ := p.control.IO()
	if io_.ReadOnly() {
		return ErrReadOnly
	}
	ss := p.ss1 - 1
	clCount := io_.SSCLLen(ss)
	var w io.WriteCloser
	created := false
	if clCount == 0 {
		_, nw, nerr := p.openNewCL(ss, clCount)
		if nerr != nil {
			return nerr
		}
		w, created = nw, true
	} else {
		aw, ok, err := io_.AppendSSCL(ss, clCount-1)
		if err != nil {
			return &IoError{Op: "append commit log", Err: err}
		}
		if !ok {
			_, nw, nerr := p.openNewCL(ss, clCount)
			if nerr != nil {
				return nerr
			}
			w, created = nw, true
		} else {
			w = aw
		}
	}
	defer w.Close()
	if created {
		h := Header{Kind: HeaderCommitLog, Name: p.name, UserData: p.control.MakeUserData(Header{Kind: HeaderCommitLog, Name: p.name})}
		if err := WriteHeader(w, h); err != nil {
			return err
		}
		if err := WriteCommitLogMagic(w); err != nil {
			return err
		}
	}
	for _, c := range p.unsaved {
		if err := WriteCommitRecord(w, c); err != nil {
			return err
		}
	}
	p.unsaved = nil
	return nil
}

// WriteSnapshot folds the partition's single tip state into a brand-new
// snapshot file, advancing the loaded range. It fails with TipMergeRequired
// if more than one tip currently exists — merge first.
func (p *Partition) WriteSnapshot() error {
	tip, err := p.Tip()
	if err != nil {
		return err
	}
	ssNum, w, err := p.openNewSS(p.ss1)
	if err != nil {
		return err
	}
	defer w.Close()
	pid := uint64(p.partitionID)
	h := Header{Kind: HeaderSnapshot, Name: p.name, PartID: &pid, UserData: p.headerUserData()}
	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if err := WriteSnapshot(w, tip); err != nil {
		return err
	}
	p.ss0 = ssNum
	p.ss1 = ssNum + 1
	if pol := p.policy(); pol != nil {
		pol.Reset()
	}
	p.metrics().SnapshotWritten()
	return nil
}

// WriteFull writes every queued commit, then a fresh snapshot if the
// configured SnapshotPolicy wants one.
func (p *Partition) WriteFull() error {
	if err := p.WriteFast(); err != nil {
		return err
	}
	if p.RequireSnapshot() {
		return p.WriteSnapshot()
	}
	return nil
}

// Unload discards every in-memory state, freeing the partition to be
// reloaded with LoadRange/LoadAll. It refuses when unsaved commits are
// pending unless force is set.
func (p *Partition) Unload(force bool) error {
	if !force && len(p.unsaved) > 0 {
		return &OtherError{Msg: "cannot unload: unsaved commits pending"}
	}
	p.states = map[Sum]*PartState{}
	p.tips = map[Sum]struct{}{}
	p.ancestors = map[Sum]struct{}{}
	p.unsaved = nil
	p.ss0, p.ss1 = 0, 0
	return nil
}

// LoadAll loads every snapshot and commit log the backing RepoIO has.
func (p *Partition) LoadAll() error {
	return p.LoadRange(0, p.control.IO().SSLen())
}

// LoadLatest loads only the newest snapshot slot and its trailing logs.
func (p *Partition) LoadLatest() error {
	n := p.control.IO().SSLen()
	from := n - 1
	if from < 0 {
		from = 0
	}
	return p.LoadRange(from, n)
}

// LoadRange widens the in-memory graph to cover snapshot numbers [ss0, ss1),
// loading any snapshot files and commit logs in that range not already
// loaded. Used by Merge to reach further back for a common ancestor.
func (p *Partition) LoadRange(ss0, ss1 int) error {
	if ss0 >= p.ss0 && ss1 <= p.ss1 {
		return nil
	}
	lo, hi := ss0, ss1
	if p.ss0 < lo {
		lo = p.ss0
	}
	if p.ss1 > hi {
		hi = p.ss1
	}

	io_ := p.control.IO()
	var allCommits []*Commit
	for ss := lo; ss < p.ss0; ss++ {
		if io_.HasSS(ss) {
			if st, _, err := p.readSnapshotFile(ss); err == nil {
				p.addState(st)
			}
		}
		cs, err := p.collectLogs(ss, ss+1)
		if err != nil {
			return err
		}
		allCommits = append(allCommits, cs...)
	}
	for ss := p.ss1; ss < hi; ss++ {
		if io_.HasSS(ss) {
			if st, _, err := p.readSnapshotFile(ss); err == nil {
				p.addState(st)
			}
		}
		cs, err := p.collectLogs(ss, ss+1)
		if err != nil {
			return err
		}
		allCommits = append(allCommits, cs...)
	}
	if err := p.replayCommits(allCommits); err != nil {
		return err
	}
	p.ss0, p.ss1 = lo, hi
	return nil
}

// latestCommonAncestor walks both branches' ancestry (within what's
// currently loaded) breadth-first and returns the first sum reachable from
// both.
func (p *Partition) latestCommonAncestor(a, b Sum) (Sum, error) {
	seenFromA := map[Sum]struct{}{a: {}}
	queue := []Sum{a}
	for i := 0; i < len(queue); i++ {
		st, ok := p.states[queue[i]]
		if !ok {
			continue
		}
		for _, parent := range st.Parents() {
			if _, ok := seenFromA[parent]; !ok {
				seenFromA[parent] = struct{}{}
				queue = append(queue, parent)
			}
		}
	}

	visited := map[Sum]struct{}{b: {}}
	queue2 := []Sum{b}
	for i := 0; i < len(queue2); i++ {
		cur := queue2[i]
		if _, ok := seenFromA[cur]; ok {
			return cur, nil
		}
		st, ok := p.states[cur]
		if !ok {
			continue
		}
		for _, parent := range st.Parents() {
			if _, ok := visited[parent]; !ok {
				visited[parent] = struct{}{}
				queue2 = append(queue2, parent)
			}
		}
	}
	return Sum{}, &MergeError{Kind: MergeNoCommonAncestor}
}

func (p *Partition) twoSmallestTips() (Sum, Sum) {
	sums := make([]Sum, 0, len(p.tips))
	for s := range p.tips {
		sums = append(sums, s)
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].Compare(sums[j]) < 0 })
	return sums[0], sums[1]
}

// Merge repeatedly folds the two lexicographically-smallest tips together
// using solver until only one tip remains. When autoLoad is set and a pair's
// common ancestor isn't within the currently loaded snapshot range, it
// widens the range one snapshot further back and retries before giving up.
func (p *Partition) Merge(solver Solver, autoLoad bool) error {
	for len(p.tips) > 1 {
		a, b := p.twoSmallestTips()
		common, err := p.latestCommonAncestor(a, b)
		if err != nil {
			if autoLoad && p.ss0 > 0 {
				if lerr := p.LoadRange(p.ss0-1, p.ss1); lerr != nil {
					return lerr
				}
				continue
			}
			return err
		}
		stateA := p.states[a]
		stateB := p.states[b]
		commonState, ok := p.states[common]
		if !ok {
			if autoLoad && p.ss0 > 0 {
				if lerr := p.LoadRange(p.ss0-1, p.ss1); lerr != nil {
					return lerr
				}
				continue
			}
			return &MergeError{Kind: MergeNoState, Msg: common.Hex(false)}
		}

		tw, err := NewTwoWayMerge(p.partitionID, commonState, stateA, stateB, solver)
		if err != nil {
			return err
		}
		meta := stampMeta(p.control, &stateA.meta)
		commit, changed, err := tw.MakeCommit(meta)
		if err != nil {
			return err
		}
		if !changed {
			// Both tips already agree: collapse b into a without a commit.
			delete(p.tips, b)
			continue
		}
		state, err := Apply(commit, stateA)
		if err != nil {
			return err
		}
		if err := p.addPair(commit, state, true); err != nil {
			return err
		}
		p.metrics().MergeRun()
	}
	return nil
}
