// Package badger implements a generation.Source persisted in BadgerDB, so
// generation numbers keep increasing across server restarts even though the
// namespace itself is rebuilt from scratch.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/generation"
)

const (
	sequenceKey = "generation/sequence"
	inodePrefix = "generation/inode/"

	defaultBandwidth = 1000

	// maxConflictRetries bounds retries of a per-inode update that lost a
	// transaction conflict.
	maxConflictRetries = 16
)

// Config configures the Badger generation source.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps the database in memory (tests, ephemeral servers).
	InMemory bool `mapstructure:"in_memory"`

	// Bandwidth is the number of sequence values leased from disk at once
	// in global mode. Values of a lease that is not used up before shutdown
	// are skipped, never reused.
	Bandwidth uint64 `mapstructure:"bandwidth"`

	// PerInode keeps one counter per (device, inode) pair instead of a single
	// global sequence. Each Next is then a read-modify-write transaction.
	PerInode bool `mapstructure:"per_inode"`
}

// Source is a generation.Source backed by BadgerDB.
type Source struct {
	db       *badger.DB
	seq      *badger.Sequence
	perInode bool

	// inodeMu serialises per-inode updates so concurrent callers do not
	// spin on transaction conflicts.
	inodeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("generation store path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	s := &Source{db: db, perInode: cfg.PerInode}

	if !cfg.PerInode {
		bandwidth := cfg.Bandwidth
		if bandwidth == 0 {
			bandwidth = defaultBandwidth
		}
		s.seq, err = db.GetSequence([]byte(sequenceKey), bandwidth)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to lease generation sequence: %w", err)
		}
	}

	logger.Debug("generation store opened (path=%q, in_memory=%t, per_inode=%t)",
		cfg.Path, cfg.InMemory, cfg.PerInode)
	return s, nil
}

// Next returns a generation never returned before for (device, inode).
func (s *Source) Next(ctx context.Context, device, inode uint64) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.perInode {
		return s.nextForInode(ctx, device, inode)
	}

	for {
		v, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("generation sequence: %w", err)
		}
		if v > math.MaxUint32 {
			return 0, fmt.Errorf("generation sequence at %d: %w", v, generation.ErrExhausted)
		}
		if v != 0 {
			return uint32(v), nil
		}
	}
}

func inodeKey(device, inode uint64) []byte {
	key := make([]byte, len(inodePrefix)+16)
	copy(key, inodePrefix)
	binary.BigEndian.PutUint64(key[len(inodePrefix):], device)
	binary.BigEndian.PutUint64(key[len(inodePrefix)+8:], inode)
	return key
}

func (s *Source) nextForInode(ctx context.Context, device, inode uint64) (uint32, error) {
	key := inodeKey(device, inode)

	s.inodeMu.Lock()
	defer s.inodeMu.Unlock()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var next uint32
		err := s.db.Update(func(txn *badger.Txn) error {
			var current uint32

			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					if len(val) != 4 {
						return fmt.Errorf("corrupt generation record for %d:%d (%d bytes)", device, inode, len(val))
					}
					current = binary.BigEndian.Uint32(val)
					return nil
				}); err != nil {
					return err
				}
			}

			if current == math.MaxUint32 {
				return generation.ErrExhausted
			}
			next = current + 1

			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, next)
			return txn.Set(key, buf)
		})

		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("generation for %d:%d: %w", device, inode, err)
		}
		return next, nil
	}
}

// Close releases the sequence lease and closes the database. Safe to call
// more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.seq != nil {
			if err := s.seq.Release(); err != nil {
				logger.Warn("generation sequence release failed: %v", err)
			}
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
