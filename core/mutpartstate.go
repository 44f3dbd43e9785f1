package core

// MutPartState is a transient builder cloned from a PartState. It records
// mutations incrementally (O(1) per op against the element accumulator) and
// freezes into a new, immutable PartState.
type MutPartState struct {
	partitionID uint32
	hasParent   bool
	parentSum   Sum
	elements    map[EltId]Element
	moved       map[EltId]EltId
	meta        Meta
	elemAcc     Sum
}

// NewMutPartState starts a builder with no parent — used only to construct a
// partition's genesis state.
func NewMutPartState(partitionID uint32) *MutPartState {
	return &MutPartState{
		partitionID: partitionID,
		elements:    map[EltId]Element{},
		moved:       map[EltId]EltId{},
	}
}

func (m *MutPartState) taken(id EltId) bool {
	_, ok := m.elements[id]
	return ok
}

// Insert adds value under id, or allocates a fresh id when id is nil. It
// fails if an explicit id is already present.
func (m *MutPartState) Insert(id *EltId, value Element) (EltId, error) {
	var target EltId
	if id != nil {
		if m.taken(*id) {
			return 0, &OtherError{Msg: "insert: id already present"}
		}
		target = *id
	} else {
		target = allocateID(m.partitionID, m.parentSum, m.taken)
	}
	es, err := eltSum(target, value)
	if err != nil {
		return 0, err
	}
	m.elements[target] = value
	m.elemAcc = m.elemAcc.XOR(es)
	return target, nil
}

// Replace overwrites the value stored under id. It fails if id is absent.
func (m *MutPartState) Replace(id EltId, value Element) error {
	old, ok := m.elements[id]
	if !ok {
		return &OtherError{Msg: "replace: id not present"}
	}
	oldSum, err := eltSum(id, old)
	if err != nil {
		return err
	}
	newSum, err := eltSum(id, value)
	if err != nil {
		return err
	}
	m.elements[id] = value
	m.elemAcc = m.elemAcc.XOR(oldSum).XOR(newSum)
	return nil
}

// Remove deletes id. It fails if id is absent.
func (m *MutPartState) Remove(id EltId) error {
	old, ok := m.elements[id]
	if !ok {
		return &OtherError{Msg: "remove: id not present"}
	}
	oldSum, err := eltSum(id, old)
	if err != nil {
		return err
	}
	delete(m.elements, id)
	m.elemAcc = m.elemAcc.XOR(oldSum)
	return nil
}

// Move removes id locally and remembers that it was renamed to toID.
func (m *MutPartState) Move(id, toID EltId) error {
	old, ok := m.elements[id]
	if !ok {
		return &OtherError{Msg: "move: id not present"}
	}
	oldSum, err := eltSum(id, old)
	if err != nil {
		return err
	}
	delete(m.elements, id)
	m.elemAcc = m.elemAcc.XOR(oldSum)
	m.moved[id] = toID
	trimMoved(m.moved)
	return nil
}

func (m *MutPartState) Get(id EltId) (Element, bool) {
	e, ok := m.elements[id]
	return e, ok
}

func (m *MutPartState) IsAvail(id EltId) bool {
	_, ok := m.elements[id]
	return ok
}

func (m *MutPartState) AnyAvail() bool { return len(m.elements) > 0 }

func (m *MutPartState) EltIds() []EltId {
	out := make([]EltId, 0, len(m.elements))
	for id := range m.elements {
		out = append(out, id)
	}
	return out
}

// Freeze stamps meta and produces the resulting immutable PartState. The
// caller (typically Partition, via Control.MakeCommitMeta) is responsible
// for giving meta a monotonic Number and Timestamp.
func (m *MutPartState) Freeze(meta Meta) *PartState {
	elements := make(map[EltId]Element, len(m.elements))
	for id, e := range m.elements {
		elements[id] = e
	}
	moved := make(map[EltId]EltId, len(m.moved))
	for from, to := range m.moved {
		moved[from] = to
	}
	var parents []Sum
	if m.hasParent {
		parents = []Sum{m.parentSum}
	}
	return &PartState{
		statesum: m.elemAcc.XOR(meta.sum()),
		parents:  parents,
		elements: elements,
		moved:    moved,
		meta:     meta.Clone(),
		elemAcc:  m.elemAcc,
	}
}
