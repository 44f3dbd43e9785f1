package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// movedRetentionLimit bounds the `moved` map carried by a PartState. The
// source left this unbounded (spec.md §9, open question); Pippin retains at
// most this many rename records per state and drops the lowest-valued
// EltId keys first when the bound is exceeded, so behavior stays
// deterministic across replicas instead of depending on map iteration order.
const movedRetentionLimit = 4096

// PartState is an immutable snapshot of a partition's element set, keyed by
// its own content-derived Statesum. Two PartStates with equal Statesum are
// guaranteed value-equal (statesum collisions are handled at the Partition
// layer by perturbing metadata, see Commit.MutateMeta).
type PartState struct {
	statesum Sum
	parents  []Sum
	elements map[EltId]Element
	moved    map[EltId]EltId
	meta     Meta
	elemAcc  Sum // XOR of every live element's rotated sum, meta excluded
}

// NewGenesisPartState creates the empty genesis state of a partition: no
// elements, no parents, statesum derived purely from meta.
func NewGenesisPartState(meta Meta) *PartState {
	return &PartState{
		statesum: meta.sum(),
		elements: map[EltId]Element{},
		moved:    map[EltId]EltId{},
		meta:     meta,
	}
}

func (s *PartState) Statesum() Sum      { return s.statesum }
func (s *PartState) Parents() []Sum     { return append([]Sum(nil), s.parents...) }
func (s *PartState) Meta() Meta         { return s.meta.Clone() }
func (s *PartState) Len() int           { return len(s.elements) }
func (s *PartState) AnyAvail() bool     { return len(s.elements) > 0 }

// Get returns the element stored under id, if present locally.
func (s *PartState) Get(id EltId) (Element, bool) {
	e, ok := s.elements[id]
	return e, ok
}

// IsAvail reports whether id is present locally (not moved or removed).
func (s *PartState) IsAvail(id EltId) bool {
	_, ok := s.elements[id]
	return ok
}

// EltIds returns every locally-present element id, in unspecified order.
func (s *PartState) EltIds() []EltId {
	out := make([]EltId, 0, len(s.elements))
	for id := range s.elements {
		out = append(out, id)
	}
	return out
}

// MovedTo reports the id that id was renamed to, if Pippin still remembers
// the rename (bounded by movedRetentionLimit).
func (s *PartState) MovedTo(id EltId) (EltId, bool) {
	to, ok := s.moved[id]
	return to, ok
}

// CloneMut returns a mutable builder seeded from this state, ready to record
// insertions, replacements, removals and moves. partitionID scopes newly
// allocated ids (see EltId).
func (s *PartState) CloneMut(partitionID uint32) *MutPartState {
	elements := make(map[EltId]Element, len(s.elements))
	for id, e := range s.elements {
		elements[id] = e
	}
	moved := make(map[EltId]EltId, len(s.moved))
	for from, to := range s.moved {
		moved[from] = to
	}
	return &MutPartState{
		partitionID: partitionID,
		hasParent:   true,
		parentSum:   s.statesum,
		elements:    elements,
		moved:       moved,
		meta:        s.meta.Clone(),
		elemAcc:     s.elemAcc,
	}
}

// eltSum computes SHA256(serialize(value)) rotated by (id mod 256) bits, the
// O(1)-foldable contribution of one element to a state's accumulator.
func eltSum(id EltId, value Element) (Sum, error) {
	var buf bytes.Buffer
	if err := value.WriteBuf(&buf); err != nil {
		return Sum{}, &PatchOpError{Kind: PatchElementOp, Msg: err.Error()}
	}
	digest := sha256.Sum256(buf.Bytes())
	return Sum(rotateLeft(digest, uint(uint64(id)%256))), nil
}

// allocateID deterministically probes for a free id in partitionID's 40-bit
// range, keyed by (parentSum, attempt) so the same sequence of insertions
// yields the same ids on every replica.
func allocateID(partitionID uint32, parentSum Sum, taken func(EltId) bool) EltId {
	for attempt := uint64(0); ; attempt++ {
		var buf [40]byte
		copy(buf[:32], parentSum[:])
		binary.BigEndian.PutUint64(buf[32:], attempt)
		h := sha256.Sum256(buf[:])
		local := binary.BigEndian.Uint64(h[:8]) & eltIDValueMask
		id := MakeEltId(partitionID, local)
		if !taken(id) {
			return id
		}
	}
}

// trimMoved enforces movedRetentionLimit by dropping the lowest-valued keys
// first, deterministically.
func trimMoved(moved map[EltId]EltId) {
	if len(moved) <= movedRetentionLimit {
		return
	}
	keys := make([]EltId, 0, len(moved))
	for k := range moved {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	excess := len(keys) - movedRetentionLimit
	for i := 0; i < excess; i++ {
		delete(moved, keys[i])
	}
}
