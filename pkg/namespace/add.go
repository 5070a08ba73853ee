package namespace

import (
	"context"
	"time"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
	"github.com/marmos91/dittofs-namespace/pkg/metrics"
)

// Operation names used for metrics.
const (
	opInitialize      = "initialize"
	opAddChild        = "add_child"
	opRemoveChild     = "remove_child"
	opRename          = "rename"
	opGetGeneration   = "get_generation"
	opReconstructPath = "reconstruct_path"
)

// AddChild records the entry name under parent, resolving to child.
//
// If child is already known this links an additional edge to it (hardlink)
// and its existing generation is returned; newGen is ignored. Otherwise a
// new node is created with generation newGen.
//
// Re-adding an entry that already resolves to child is a no-op. An entry
// that resolves to a different inode fails with ErrConflict and leaves the
// namespace untouched.
func (ns *Namespace) AddChild(parent Identity, name string, child InodeID, newGen uint32) (uint32, error) {
	start := time.Now()

	ns.lock.Lock()
	gen, err := ns.addChildLocked(parent, name, child, newGen)
	ns.lock.Unlock()

	ns.observe(opAddChild, start, err, true)
	return gen, err
}

// AddChildAuto is AddChild with the generation of a new node drawn from
// the configured generation source. The source is consulted before the
// namespace lock is taken, so a hardlink still consumes a generation.
func (ns *Namespace) AddChildAuto(ctx context.Context, parent Identity, name string, child InodeID) (uint32, error) {
	gen, err := ns.nextGeneration(ctx, child)
	if err != nil {
		return 0, err
	}
	return ns.AddChild(parent, name, child, gen)
}

func (ns *Namespace) addChildLocked(parent Identity, name string, child InodeID, newGen uint32) (uint32, error) {
	if err := ns.ready(); err != nil {
		return 0, err
	}
	if err := validName(name, ns.cfg.MaxNameLen); err != nil {
		return 0, err
	}

	pref, err := ns.parentRef(parent)
	if err != nil {
		return 0, err
	}

	key := edgeKey{parent: parent.InodeID, name: name}
	existing, err := ns.lookup.Get(key)
	hasEdge := err == nil
	if err != nil && hashtable.StatusOf(err) != hashtable.StatusNoSuchKey {
		return 0, ns.indexError(err, entryPath(parent.InodeID, name))
	}

	cref, err := ns.nodes.Get(child)
	switch {
	case err == nil:
		c := ns.arena.get(cref)
		gen := c.id.Generation

		if hasEdge {
			if existing == cref {
				return gen, nil
			}
			return 0, ns.conflict(key, existing, c.id.InodeID)
		}
		if err := ns.link(pref, key, cref); err != nil {
			return 0, err
		}
		return gen, nil

	case hashtable.StatusOf(err) != hashtable.StatusNoSuchKey:
		return 0, ns.indexError(err, child.String())
	}

	// Brand-new node. The entry must be free before anything is created.
	if hasEdge {
		return 0, ns.conflict(key, existing, child)
	}

	cref = ns.arena.alloc(node{id: Identity{InodeID: child, Generation: newGen}})
	if err := ns.nodes.Insert(child, cref, hashtable.SetNoOverwrite); err != nil {
		ns.arena.release(cref)
		return 0, newError(ErrAlloc, child.String(), "cannot index node: %v", err)
	}
	if err := ns.link(pref, key, cref); err != nil {
		if _, _, derr := ns.nodes.Delete(child); derr != nil {
			panic("namespace: rollback of node " + child.String() + " failed: " + derr.Error())
		}
		ns.arena.release(cref)
		return 0, err
	}

	logger.Debug("namespace %s: new node %s at %s", ns.cfg.Name, Identity{InodeID: child, Generation: newGen}, entryPath(parent.InodeID, name))
	return newGen, nil
}

// link inserts the (parent, name) edge to cref into the lookup index and
// updates both nodes' counters. Nothing is changed on failure.
func (ns *Namespace) link(pref nodeRef, key edgeKey, cref nodeRef) error {
	if err := ns.lookup.Insert(key, cref, hashtable.SetNoOverwrite); err != nil {
		return newError(ErrAlloc, entryPath(key.parent, key.name), "cannot index entry: %v", err)
	}

	p := ns.arena.get(pref)
	ns.arena.get(cref).linkEdge(edge{parent: p.id, name: key.name})
	p.childCount++
	return nil
}

func (ns *Namespace) conflict(key edgeKey, existing nodeRef, want InodeID) error {
	have := ns.arena.get(existing)
	logger.Error("namespace %s: entry %s already resolves to %s, refusing %s",
		ns.cfg.Name, entryPath(key.parent, key.name), have.id, want)
	return newError(ErrConflict, entryPath(key.parent, key.name), "entry resolves to a different inode")
}

// parentRef resolves and validates a caller-supplied parent.
func (ns *Namespace) parentRef(parent Identity) (nodeRef, error) {
	ref, err := ns.nodes.Get(parent.InodeID)
	if err != nil {
		return nodeRef{}, ns.indexError(err, parent.InodeID.String())
	}
	if have := ns.arena.get(ref).id.Generation; have != parent.Generation {
		return nodeRef{}, newError(ErrStale, parent.InodeID.String(),
			"generation %d does not match %d", parent.Generation, have)
	}
	return ref, nil
}

// indexError translates a failed index lookup.
func (ns *Namespace) indexError(err error, path string) error {
	if hashtable.StatusOf(err) == hashtable.StatusNoSuchKey {
		return newError(ErrNotFound, path, "not in namespace")
	}
	return newError(ErrInternal, path, "index failure: %v", err)
}

func (ns *Namespace) observe(op string, start time.Time, err error, mutating bool) {
	ns.metrics.RecordOperation(ns.cfg.Name, op, metricStatus(err), time.Since(start))
	if mutating {
		ns.updateGauges()
	}
}

// metricStatus buckets an outcome the way the hashtable collector does:
// absent and stale targets are ordinary misses, not failures.
func metricStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case IsNotFound(err), IsStale(err):
		return metrics.StatusNotFound
	default:
		return metrics.StatusError
	}
}

func entryPath(parent InodeID, name string) string {
	return parent.String() + "/" + name
}
