package namespace

import (
	"time"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
)

// Rename moves the entry srcName under srcParent to dstName under
// dstParent. The node keeps its identity and generation.
//
// The move is an add followed by a remove, both under one exclusive hold of
// the namespace lock. An existing destination entry resolving to another
// inode is removed first.
func (ns *Namespace) Rename(srcParent Identity, srcName string, dstParent Identity, dstName string) error {
	start := time.Now()

	ns.lock.Lock()
	err := ns.renameLocked(srcParent, srcName, dstParent, dstName)
	ns.lock.Unlock()

	ns.observe(opRename, start, err, true)
	return err
}

func (ns *Namespace) renameLocked(srcParent Identity, srcName string, dstParent Identity, dstName string) error {
	if err := ns.ready(); err != nil {
		return err
	}
	if err := validName(srcName, ns.cfg.MaxNameLen); err != nil {
		return err
	}
	if err := validName(dstName, ns.cfg.MaxNameLen); err != nil {
		return err
	}

	// Validate the source side before touching the destination.
	if _, err := ns.parentRef(srcParent); err != nil {
		return err
	}

	cref, err := ns.lookup.Get(edgeKey{parent: srcParent.InodeID, name: srcName})
	if err != nil {
		if hashtable.StatusOf(err) == hashtable.StatusNoSuchKey {
			return newError(ErrNotFound, entryPath(srcParent.InodeID, srcName), "rename source not in namespace")
		}
		return ns.indexError(err, entryPath(srcParent.InodeID, srcName))
	}

	if _, err := ns.parentRef(dstParent); err != nil {
		return err
	}

	if srcParent.InodeID == dstParent.InodeID && srcName == dstName {
		return nil
	}

	child := ns.arena.get(cref).id

	_, err = ns.addChildLocked(dstParent, dstName, child.InodeID, child.Generation)
	if IsConflict(err) {
		logger.Debug("namespace %s: rename replaces %s", ns.cfg.Name, entryPath(dstParent.InodeID, dstName))
		if err := ns.removeChildLocked(dstParent, dstName); err != nil {
			return err
		}
		_, err = ns.addChildLocked(dstParent, dstName, child.InodeID, child.Generation)
	}
	if err != nil {
		return err
	}

	return ns.removeChildLocked(srcParent, srcName)
}
