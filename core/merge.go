package core

import "fmt"

// MergeOutcome is a Solver's decision for one conflicting element id.
type MergeOutcome int

const (
	// MergeKeepBase resolves to the common ancestor's value (or absence).
	MergeKeepBase MergeOutcome = iota
	// MergeKeepLeft resolves to the left side's value (or absence).
	MergeKeepLeft
	// MergeKeepRight resolves to the right side's value (or absence).
	MergeKeepRight
	// MergeCustom resolves to SolverDecision.Value, regardless of either side.
	MergeCustom
	// MergeDrop removes the id from the merged state entirely.
	MergeDrop
	// MergeRename keeps the left side's value at id and reinserts the right
	// side's value under a freshly allocated id, so both survive.
	MergeRename
	// MergeUndecided defers to the next solver in a chain, or fails the
	// merge with MergeNotSolved if nothing resolves it.
	MergeUndecided
)

// SolverDecision is what a Solver returns for one element id.
type SolverDecision struct {
	Outcome MergeOutcome
	Value   Element // meaningful only when Outcome == MergeCustom
}

// Solver decides how to resolve one element id that differs between the two
// branches being merged. base/left/right are nil when the id is not present
// on that side, and the corresponding *Avail flag is then false; the flag
// does not distinguish an id that was removed from one that never existed.
type Solver interface {
	Resolve(id EltId, base, left, right Element, baseAvail, leftAvail, rightAvail bool) SolverDecision
}

// TwoWaySolverChain tries each Solver in order and takes the first decision
// that isn't MergeUndecided.
type TwoWaySolverChain struct {
	Solvers []Solver
}

func (c TwoWaySolverChain) Resolve(id EltId, base, left, right Element, baseAvail, leftAvail, rightAvail bool) SolverDecision {
	for _, s := range c.Solvers {
		d := s.Resolve(id, base, left, right, baseAvail, leftAvail, rightAvail)
		if d.Outcome != MergeUndecided {
			return d
		}
	}
	return SolverDecision{Outcome: MergeUndecided}
}

// AncestorSolver2W auto-resolves every id that changed on only one side
// relative to the common ancestor, and drops ids removed on both sides. It
// leaves a true two-sided conflict (both sides changed, to different
// values) as MergeUndecided for a later solver in the chain to handle.
type AncestorSolver2W struct{}

func (AncestorSolver2W) Resolve(id EltId, base, left, right Element, baseAvail, leftAvail, rightAvail bool) SolverDecision {
	leftChanged := sideChanged(baseAvail, base, leftAvail, left)
	rightChanged := sideChanged(baseAvail, base, rightAvail, right)
	switch {
	case !leftChanged && !rightChanged:
		return SolverDecision{Outcome: MergeKeepBase}
	case leftChanged && !rightChanged:
		return SolverDecision{Outcome: MergeKeepLeft}
	case !leftChanged && rightChanged:
		return SolverDecision{Outcome: MergeKeepRight}
	default:
		if !leftAvail && !rightAvail {
			return SolverDecision{Outcome: MergeDrop}
		}
		if leftAvail && rightAvail && left.Equal(right) {
			return SolverDecision{Outcome: MergeKeepLeft}
		}
		return SolverDecision{Outcome: MergeUndecided}
	}
}

func sideChanged(baseAvail bool, base Element, sideAvail bool, side Element) bool {
	if baseAvail != sideAvail {
		return true
	}
	if !baseAvail {
		return false
	}
	return !base.Equal(side)
}

// RenamingSolver2W is the last-resort tail of a solver chain: rather than
// fail the merge, it keeps left's value under id and gives right's value a
// new id (insert/insert collisions included), so no data is lost.
type RenamingSolver2W struct{}

func (RenamingSolver2W) Resolve(id EltId, base, left, right Element, baseAvail, leftAvail, rightAvail bool) SolverDecision {
	if !leftAvail && rightAvail {
		return SolverDecision{Outcome: MergeKeepRight}
	}
	if !rightAvail {
		return SolverDecision{Outcome: MergeKeepLeft}
	}
	return SolverDecision{Outcome: MergeRename}
}

// TwoWayMerge computes the commit that reconciles left and right against
// their common ancestor base, for a single partition.
type TwoWayMerge struct {
	partitionID     uint32
	base, left, right *PartState
	solver          Solver
}

// NewTwoWayMerge prepares a merge of left and right with common ancestor
// base. partitionID scopes ids freshly allocated by a MergeRename decision.
func NewTwoWayMerge(partitionID uint32, base, left, right *PartState, solver Solver) (*TwoWayMerge, error) {
	if solver == nil {
		return nil, &ArgError{Msg: "merge requires a solver"}
	}
	if base == nil || left == nil || right == nil {
		return nil, &MergeError{Kind: MergeNoState}
	}
	return &TwoWayMerge{partitionID: partitionID, base: base, left: left, right: right, solver: solver}, nil
}

func (m *TwoWayMerge) allIDs() map[EltId]struct{} {
	ids := make(map[EltId]struct{})
	for id := range m.base.elements {
		ids[id] = struct{}{}
	}
	for id := range m.left.elements {
		ids[id] = struct{}{}
	}
	for id := range m.right.elements {
		ids[id] = struct{}{}
	}
	return ids
}

func applyMergeOutcome(mut *MutPartState, id EltId, wantAvail bool, val Element, hadLeft bool) error {
	if wantAvail {
		if mut.IsAvail(id) {
			return mut.Replace(id, val)
		}
		idc := id
		_, err := mut.Insert(&idc, val)
		return err
	}
	if hadLeft {
		return mut.Remove(id)
	}
	return nil
}

// MakeCommit resolves every conflicting id via the configured Solver and
// returns the two-parent commit that merges right into left. It returns
// (nil, false, nil) when the merge produces no changes to left (right was
// already fully reflected in left), and a MergeNotSolved error if any id was
// left MergeUndecided.
func (m *TwoWayMerge) MakeCommit(meta Meta) (*Commit, bool, error) {
	mut := m.left.CloneMut(m.partitionID)
	var unresolved []EltId

	for id := range m.allIDs() {
		baseVal, baseAvail := m.base.Get(id)
		leftVal, leftAvail := m.left.Get(id)
		rightVal, rightAvail := m.right.Get(id)

		if leftAvail == rightAvail && (!leftAvail || leftVal.Equal(rightVal)) {
			continue
		}

		decision := m.solver.Resolve(id, baseVal, leftVal, rightVal, baseAvail, leftAvail, rightAvail)
		var err error
		switch decision.Outcome {
		case MergeKeepBase:
			err = applyMergeOutcome(mut, id, baseAvail, baseVal, leftAvail)
		case MergeKeepLeft:
			err = applyMergeOutcome(mut, id, leftAvail, leftVal, leftAvail)
		case MergeKeepRight:
			err = applyMergeOutcome(mut, id, rightAvail, rightVal, leftAvail)
		case MergeCustom:
			err = applyMergeOutcome(mut, id, true, decision.Value, leftAvail)
		case MergeDrop:
			if leftAvail {
				err = mut.Remove(id)
			}
		case MergeRename:
			if rightAvail {
				_, err = mut.Insert(nil, rightVal)
			}
		case MergeUndecided:
			unresolved = append(unresolved, id)
			continue
		default:
			err = &OtherError{Msg: "unknown merge outcome"}
		}
		if err != nil {
			return nil, false, err
		}
	}

	if len(unresolved) > 0 {
		return nil, false, &MergeError{Kind: MergeNotSolved, Msg: fmt.Sprintf("%d conflicting element ids left unresolved", len(unresolved))}
	}

	child := mut.Freeze(meta)
	commit, changed := FromDiff(m.left, child)
	if !changed {
		return nil, false, nil
	}
	commit.Parents = []Sum{m.left.Statesum(), m.right.Statesum()}
	return commit, true, nil
}
