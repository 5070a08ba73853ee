package main

import (
	"context"
	"fmt"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/namespace"
)

// sampleInodes hands out inode numbers for the sample tree.
type sampleInodes struct {
	device uint64
	next   uint64
}

func (s *sampleInodes) take() namespace.InodeID {
	s.next++
	return namespace.InodeID{Device: s.device, Inode: s.next}
}

// createInitialStructure fills the namespace with a small tree (a
// directory of images, a few text files and a hardlink) and logs the
// reconstructed path of every entry.
func createInitialStructure(ctx context.Context, ns *namespace.Namespace) error {
	root := ns.Root()
	inodes := &sampleInodes{device: root.Device, next: root.Inode + 100}

	add := func(parent namespace.Identity, name string, id namespace.InodeID) (namespace.Identity, error) {
		gen, err := ns.AddChildAuto(ctx, parent, name, id)
		if err != nil {
			return namespace.Identity{}, fmt.Errorf("failed to create %s: %w", name, err)
		}
		return namespace.Identity{InodeID: id, Generation: gen}, nil
	}

	images, err := add(root, "images", inodes.take())
	if err != nil {
		return err
	}

	created := []namespace.Identity{images}
	for _, name := range []string{"background1.png", "background2.jpg", "wallpaper.png"} {
		id, err := add(images, name, inodes.take())
		if err != nil {
			return err
		}
		created = append(created, id)
	}

	for _, name := range []string{"readme.txt", "notes.txt"} {
		id, err := add(root, name, inodes.take())
		if err != nil {
			return err
		}
		created = append(created, id)
	}

	// the wallpaper is also reachable from the root
	if _, err := add(root, "wallpaper.png", created[3].InodeID); err != nil {
		return err
	}

	for _, id := range created {
		path, err := ns.ReconstructPath(id)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", id, err)
		}
		logger.Info("  %s -> %s", id, path)
	}

	return nil
}
