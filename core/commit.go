package core

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ChangeKind tags the kind of mutation a Commit applies to one element id.
type ChangeKind byte

const (
	ChangeInsert  ChangeKind = 'I'
	ChangeReplace ChangeKind = 'R'
	ChangeRemove  ChangeKind = 'X'
	ChangeMove    ChangeKind = 'M'
)

// Change is one per-id mutation carried by a Commit.
type Change struct {
	Kind   ChangeKind
	Value  Element // set for Insert and Replace
	MoveTo EltId   // set for Move
}

// Commit is a parent-linked diff between two PartStates. Applying it to its
// parent state must reproduce a state whose Statesum equals c.Statesum.
type Commit struct {
	Statesum Sum
	Parents  []Sum
	Changes  map[EltId]Change
	Meta     Meta
}

// FromDiff builds the commit that transforms old into new. It returns
// (nil, false) when the two states are identical (no changes).
func FromDiff(old, new *PartState) (*Commit, bool) {
	changes := map[EltId]Change{}
	for id, nv := range new.elements {
		if ov, ok := old.elements[id]; ok {
			if !ov.Equal(nv) {
				changes[id] = Change{Kind: ChangeReplace, Value: nv}
			}
			continue
		}
		changes[id] = Change{Kind: ChangeInsert, Value: nv}
	}
	for id := range old.elements {
		if _, ok := new.elements[id]; ok {
			continue
		}
		if to, ok := new.moved[id]; ok {
			changes[id] = Change{Kind: ChangeMove, MoveTo: to}
		} else {
			changes[id] = Change{Kind: ChangeRemove}
		}
	}
	if len(changes) == 0 {
		return nil, false
	}
	return &Commit{
		Statesum: new.statesum,
		Parents:  []Sum{old.statesum},
		Changes:  changes,
		Meta:     new.meta.Clone(),
	}, true
}

// sortedChangeIDs gives a deterministic iteration order over a change set so
// Apply's incremental accumulator update doesn't depend on map order.
func sortedChangeIDs(changes map[EltId]Change) []EltId {
	ids := make([]EltId, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Apply reconstructs the child PartState that c produces when applied to
// parent, and verifies the result's Statesum matches c.Statesum.
func Apply(c *Commit, parent *PartState) (*PartState, error) {
	if len(c.Parents) == 0 {
		return nil, &PatchOpError{Kind: PatchNoParent, Msg: "commit has no parents"}
	}
	if parent.Statesum() != c.Parents[0] {
		return nil, &PatchOpError{Kind: PatchNoParent, Msg: "parent statesum does not match commit's first parent"}
	}
	mut := parent.CloneMut(0)
	for _, id := range sortedChangeIDs(c.Changes) {
		ch := c.Changes[id]
		var err error
		switch ch.Kind {
		case ChangeInsert:
			idCopy := id
			_, err = mut.Insert(&idCopy, ch.Value)
		case ChangeReplace:
			err = mut.Replace(id, ch.Value)
		case ChangeRemove:
			err = mut.Remove(id)
		case ChangeMove:
			err = mut.Move(id, ch.MoveTo)
		default:
			err = &PatchOpError{Kind: PatchElementOp, Msg: fmt.Sprintf("unknown change kind %q", ch.Kind)}
		}
		if err != nil {
			if _, ok := err.(*PatchOpError); ok {
				return nil, err
			}
			return nil, &PatchOpError{Kind: PatchElementOp, Msg: err.Error()}
		}
	}
	result := mut.Freeze(c.Meta)
	result.parents = append([]Sum(nil), c.Parents...)
	if result.Statesum() != c.Statesum {
		return nil, &PatchOpError{
			Kind: PatchSumMismatch,
			Msg:  fmt.Sprintf("got %s want %s", result.Statesum().Hex(false), c.Statesum.Hex(false)),
		}
	}
	return result, nil
}

// MutateMeta perturbs the commit's metadata extension bytes deterministically
// by attempt number, and updates Statesum to match. Used by the partition
// engine's collision-retry loop (add_pair); bounded and reproducible, never
// randomized, so replicas that hit the same collision converge identically.
func (c *Commit) MutateMeta(attempt uint64) {
	oldMetaSum := c.Meta.sum()
	var tail [8]byte
	binary.BigEndian.PutUint64(tail[:], attempt)
	c.Meta.Ext = append(append([]byte(nil), c.Meta.Ext...), tail[:]...)
	newMetaSum := c.Meta.sum()
	c.Statesum = c.Statesum.XOR(oldMetaSum).XOR(newMetaSum)
}

// MutateMeta returns a copy of s with its metadata extension perturbed by
// attempt number and its statesum recomputed to match — the state-side half
// of the collision-retry protocol described by Commit.MutateMeta.
func (s *PartState) MutateMeta(attempt uint64) *PartState {
	meta := s.meta.Clone()
	var tail [8]byte
	binary.BigEndian.PutUint64(tail[:], attempt)
	meta.Ext = append(meta.Ext, tail[:]...)
	return &PartState{
		statesum: s.elemAcc.XOR(meta.sum()),
		parents:  append([]Sum(nil), s.parents...),
		elements: s.elements,
		moved:    s.moved,
		meta:     meta,
		elemAcc:  s.elemAcc,
	}
}
