package namespace

import (
	"fmt"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
)

// Stats is a point-in-time view of a namespace.
type Stats struct {
	Nodes int
	Edges int

	LookupTable hashtable.Stats
	NodeTable   hashtable.Stats
}

// Stats returns node and edge counts plus both index statistics.
func (ns *Namespace) Stats() Stats {
	ns.lock.RLock()
	defer ns.lock.RUnlock()

	return Stats{
		Nodes:       ns.arena.len(),
		Edges:       ns.lookup.Size(),
		LookupTable: ns.lookup.Stats(),
		NodeTable:   ns.nodes.Stats(),
	}
}

// LookupCount returns the number of references held on id: one per entry
// resolving to it, plus one for the root.
func (ns *Namespace) LookupCount(id InodeID) (uint32, error) {
	ns.lock.RLock()
	defer ns.lock.RUnlock()

	n, err := ns.nodeLocked(id)
	if err != nil {
		return 0, err
	}
	return n.lookupCount, nil
}

// ChildCount returns the number of entries recorded under id.
func (ns *Namespace) ChildCount(id InodeID) (uint32, error) {
	ns.lock.RLock()
	defer ns.lock.RUnlock()

	n, err := ns.nodeLocked(id)
	if err != nil {
		return 0, err
	}
	return n.childCount, nil
}

// Lookup resolves the entry name under parent.
func (ns *Namespace) Lookup(parent InodeID, name string) (Identity, error) {
	ns.lock.RLock()
	defer ns.lock.RUnlock()

	if err := ns.ready(); err != nil {
		return Identity{}, err
	}
	if err := validName(name, ns.cfg.MaxNameLen); err != nil {
		return Identity{}, err
	}
	ref, err := ns.lookup.Get(edgeKey{parent: parent, name: name})
	if err != nil {
		return Identity{}, ns.indexError(err, entryPath(parent, name))
	}
	return ns.arena.get(ref).id, nil
}

func (ns *Namespace) nodeLocked(id InodeID) (*node, error) {
	if err := ns.ready(); err != nil {
		return nil, err
	}
	ref, err := ns.nodes.Get(id)
	if err != nil {
		return nil, ns.indexError(err, id.String())
	}
	return ns.arena.get(ref), nil
}

// CheckInvariants cross-checks the arena against both indexes:
//
//   - every node is indexed by its inode and every indexed inode is live,
//   - every edge of a node is in the lookup index and resolves back to it,
//   - the number of edges equals the size of the lookup index,
//   - lookupCount is the number of edges (plus one for the root),
//   - childCount is the number of edges naming the node as parent.
func (ns *Namespace) CheckInvariants() error {
	ns.lock.RLock()
	defer ns.lock.RUnlock()

	if err := ns.ready(); err != nil {
		return err
	}

	edges := 0
	children := make(map[InodeID]uint32)

	for i := range ns.arena.slots {
		s := &ns.arena.slots[i]
		if !s.used {
			continue
		}
		ref := nodeRef{slot: uint32(i), seq: s.seq}
		n := &s.node

		indexed, err := ns.nodes.Get(n.id.InodeID)
		if err != nil || indexed != ref {
			return ns.violation("node %s not indexed by its inode", n)
		}

		want := uint32(len(n.parents))
		if n.id.InodeID == ns.root.InodeID {
			want++
		}
		if n.lookupCount != want {
			return ns.violation("node %s: lookup count %d, expected %d", n, n.lookupCount, want)
		}

		for _, e := range n.parents {
			target, err := ns.lookup.Get(e.key())
			if err != nil || target != ref {
				return ns.violation("edge %s of node %s not indexed", entryPath(e.parent.InodeID, e.name), n)
			}
			children[e.parent.InodeID]++
		}
		edges += len(n.parents)
	}

	if edges != ns.lookup.Size() {
		return ns.violation("%d edges recorded on nodes, %d in lookup index", edges, ns.lookup.Size())
	}
	if live := ns.arena.len(); live != ns.nodes.Size() {
		return ns.violation("%d live nodes, %d in node index", live, ns.nodes.Size())
	}

	for i := range ns.arena.slots {
		s := &ns.arena.slots[i]
		if !s.used {
			continue
		}
		if got := children[s.node.id.InodeID]; got != s.node.childCount {
			return ns.violation("node %s: child count %d, %d edges name it as parent", &s.node, s.node.childCount, got)
		}
	}

	return nil
}

func (ns *Namespace) violation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	logger.Error("namespace %s: consistency violation: %s", ns.cfg.Name, msg)
	return newError(ErrInternal, "", "%s", msg)
}

// Log dumps both indexes at debug level.
func (ns *Namespace) Log() {
	ns.lock.RLock()
	defer ns.lock.RUnlock()

	logger.Debug("namespace %s [%s]: root=%s nodes=%d edges=%d",
		ns.cfg.Name, ns.id, ns.root, ns.arena.len(), ns.lookup.Size())
	ns.lookup.Log()
	ns.nodes.Log()
}
