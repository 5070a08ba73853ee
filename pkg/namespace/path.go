package namespace

import (
	"fmt"
	"strings"
	"time"
)

// GetGeneration returns the generation recorded for id.
func (ns *Namespace) GetGeneration(id InodeID) (uint32, error) {
	start := time.Now()

	ns.lock.RLock()
	gen, err := ns.getGenerationLocked(id)
	ns.lock.RUnlock()

	ns.observe(opGetGeneration, start, err, false)
	return gen, err
}

func (ns *Namespace) getGenerationLocked(id InodeID) (uint32, error) {
	if err := ns.ready(); err != nil {
		return 0, err
	}
	ref, err := ns.nodes.Get(id)
	if err != nil {
		return 0, ns.indexError(err, id.String())
	}
	return ns.arena.get(ref).id.Generation, nil
}

// ReconstructPath walks from id up to the root along each node's first
// edge and returns the absolute path. The root itself is "/".
//
// Every hop checks that the node reached still carries the generation the
// edge (or, for the starting node, the caller) expects. A node that is its
// own parent fails with ErrLoop; a path longer than MaxPathLen fails with
// ErrPathTooLong, which also bounds the walk.
func (ns *Namespace) ReconstructPath(id Identity) (string, error) {
	start := time.Now()

	ns.lock.RLock()
	path, err := ns.reconstructPathLocked(id)
	ns.lock.RUnlock()

	ns.observe(opReconstructPath, start, err, false)
	return path, err
}

func (ns *Namespace) reconstructPathLocked(id Identity) (string, error) {
	if err := ns.ready(); err != nil {
		return "", err
	}

	ref, err := ns.nodes.Get(id.InodeID)
	if err != nil {
		return "", ns.indexError(err, id.InodeID.String())
	}
	n := ns.arena.get(ref)
	expect := id.Generation

	// names are collected leaf first
	var names []string
	length := 0

	for {
		if n.id.Generation != expect {
			return "", newError(ErrStale, n.id.InodeID.String(),
				"generation %d does not match %d", expect, n.id.Generation)
		}

		e, ok := n.firstEdge()
		if !ok {
			break
		}
		if e.parent.InodeID == n.id.InodeID {
			return "", newError(ErrLoop, entryPath(e.parent.InodeID, e.name), "entry is its own parent")
		}

		length += len(e.name) + 1
		if length > ns.cfg.MaxPathLen {
			return "", newError(ErrPathTooLong, id.InodeID.String(),
				"path exceeds %d bytes", ns.cfg.MaxPathLen)
		}
		names = append(names, e.name)

		pref, err := ns.nodes.Get(e.parent.InodeID)
		if err != nil {
			panic(fmt.Sprintf("namespace: parent of %s missing from node index: %v", n, err))
		}
		n = ns.arena.get(pref)
		expect = e.parent.Generation
	}

	if len(names) == 0 {
		return "/", nil
	}

	var b strings.Builder
	b.Grow(length)
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}
	return b.String(), nil
}
