package namespace

import "fmt"

// nodeRef is a generational handle into the arena. Both indexes store
// handles rather than pointers; a handle whose seq no longer matches its
// slot refers to a node that has been freed.
type nodeRef struct {
	slot uint32
	seq  uint32
}

func (r nodeRef) String() string {
	return fmt.Sprintf("#%d/%d", r.slot, r.seq)
}

type arenaSlot struct {
	seq  uint32
	used bool
	node node
}

// arena owns every node of a namespace. It is not synchronised: the
// namespace lock covers it.
type arena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

func (a *arena) alloc(n node) nodeRef {
	var idx uint32
	if k := len(a.free); k > 0 {
		idx = a.free[k-1]
		a.free = a.free[:k-1]
	} else {
		a.slots = append(a.slots, arenaSlot{})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.seq++
	s.used = true
	s.node = n
	a.live++
	return nodeRef{slot: idx, seq: s.seq}
}

// get resolves ref. A dangling handle means an index outlived its node,
// which must never happen.
func (a *arena) get(ref nodeRef) *node {
	if int(ref.slot) >= len(a.slots) {
		panic(fmt.Sprintf("namespace: node handle %s out of range", ref))
	}
	s := &a.slots[ref.slot]
	if !s.used || s.seq != ref.seq {
		panic(fmt.Sprintf("namespace: dangling node handle %s (slot seq %d, used %t)", ref, s.seq, s.used))
	}
	return &s.node
}

func (a *arena) release(ref nodeRef) {
	n := a.get(ref)
	if n.lookupCount != 0 || n.childCount != 0 || len(n.parents) != 0 {
		panic(fmt.Sprintf("namespace: freeing referenced node %s", n))
	}

	s := &a.slots[ref.slot]
	s.used = false
	s.node = node{}
	a.free = append(a.free, ref.slot)
	a.live--
}

func (a *arena) len() int {
	return a.live
}

// reset drops every node at once (teardown).
func (a *arena) reset() {
	a.slots = nil
	a.free = nil
	a.live = 0
}
