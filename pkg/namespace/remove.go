package namespace

import (
	"fmt"
	"time"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
)

// RemoveChild drops the entry name under parent. Removing an entry that is
// not present succeeds. When the last entry resolving to a node is removed
// the node is destroyed.
func (ns *Namespace) RemoveChild(parent Identity, name string) error {
	start := time.Now()

	ns.lock.Lock()
	err := ns.removeChildLocked(parent, name)
	ns.lock.Unlock()

	ns.observe(opRemoveChild, start, err, true)
	return err
}

func (ns *Namespace) removeChildLocked(parent Identity, name string) error {
	if err := ns.ready(); err != nil {
		return err
	}
	if err := validName(name, ns.cfg.MaxNameLen); err != nil {
		return err
	}

	pref, err := ns.parentRef(parent)
	if err != nil {
		return err
	}

	_, cref, err := ns.lookup.Delete(edgeKey{parent: parent.InodeID, name: name})
	if err != nil {
		if hashtable.StatusOf(err) == hashtable.StatusNoSuchKey {
			return nil
		}
		return ns.indexError(err, entryPath(parent.InodeID, name))
	}

	c := ns.arena.get(cref)
	e, ok := c.unlinkEdge(parent.InodeID, name)
	if !ok {
		panic(fmt.Sprintf("namespace: indexed entry %s missing from node %s", entryPath(parent.InodeID, name), c))
	}
	if e.parent.Generation != parent.Generation {
		logger.Error("namespace %s: incompatible entry %s: recorded parent %s, removing with %s",
			ns.cfg.Name, entryPath(parent.InodeID, name), e.parent, parent)
	}

	p := ns.arena.get(pref)
	if p.childCount == 0 {
		panic(fmt.Sprintf("namespace: child count underflow on %s", p))
	}
	p.childCount--

	if c.lookupCount > 0 {
		return nil
	}
	if c.childCount != 0 {
		panic(fmt.Sprintf("namespace: destroying node with children: %s", c))
	}

	id := c.id
	if _, _, err := ns.nodes.Delete(id.InodeID); err != nil {
		panic(fmt.Sprintf("namespace: node %s missing from node index: %v", id, err))
	}
	ns.arena.release(cref)

	logger.Debug("namespace %s: node %s destroyed", ns.cfg.Name, id)
	return nil
}
