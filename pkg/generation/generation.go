// Package generation provides sources of inode generation numbers.
//
// A generation distinguishes successive objects that reuse one
// (device, inode) pair. The namespace asks a Source for a fresh generation
// whenever it creates a node whose generation the caller did not supply.
// Generation 0 is never handed out so it can mean "unknown".
package generation

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrExhausted is returned by a persistent Source once every 32-bit
// generation has been handed out.
var ErrExhausted = errors.New("generation space exhausted")

// Source hands out generation numbers. A number returned for a given
// (device, inode) pair is never returned again for that pair while the
// source lives; persistent sources extend that across restarts.
type Source interface {
	Next(ctx context.Context, device, inode uint64) (uint32, error)
	Close() error
}

// Counter is an in-memory Source backed by a single atomic counter shared
// by every inode.
type Counter struct {
	next atomic.Uint32
}

// NewCounter returns a Counter whose first generation is start (or 1 if
// start is 0).
func NewCounter(start uint32) *Counter {
	c := &Counter{}
	if start == 0 {
		start = 1
	}
	c.next.Store(start)
	return c
}

// Next returns the next generation. The inode is ignored.
func (c *Counter) Next(ctx context.Context, _, _ uint64) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for {
		g := c.next.Add(1) - 1
		if g != 0 {
			return g, nil
		}
	}
}

// Peek returns the generation the next call to Next will return.
func (c *Counter) Peek() uint32 {
	if g := c.next.Load(); g != 0 {
		return g
	}
	return 1
}

// Close is a no-op.
func (c *Counter) Close() error {
	return nil
}
