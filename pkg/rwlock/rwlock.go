// Package rwlock provides the reader/writer lock used by the hash table
// partitions and by the namespace manager.
//
// The lock differs from sync.RWMutex in that its hand-off policy is fixed and
// documented, because namespace correctness depends on it:
//
//   - Any number of readers may hold the lock together.
//   - A writer is admitted only when no reader and no writer is active.
//   - A new reader queues behind an active or waiting writer.
//   - When a writer releases, every waiting reader is admitted together; a
//     waiting writer is admitted only if no reader is waiting.
//   - When the last active reader releases, one waiting writer is admitted.
//   - Downgrade turns an exclusive hold into a shared one without letting a
//     waiting writer in between.
//
// Grants are handed off under the internal mutex: the releasing goroutine
// updates the counters on behalf of the goroutines it wakes, so a woken
// goroutine never has to race a newcomer for the lock.
package rwlock

import (
	"sync"
)

// RWLock is a reader/writer lock with writer-release-favours-readers
// hand-off. The zero value is an unlocked lock ready for use.
//
// RWLock must not be copied after first use.
type RWLock struct {
	mu sync.Mutex

	readCond  sync.Cond
	writeCond sync.Cond
	init      bool

	readersActive  int
	readersWaiting int
	writerActive   bool
	writersWaiting int

	// readBatch is bumped every time the waiting readers are admitted as a
	// group; a waiting reader leaves its wait loop once the batch it joined
	// has been admitted.
	readBatch uint64

	// writeGrants counts writer admissions handed off by a releaser and not
	// yet claimed by a woken writer.
	writeGrants int
}

// New returns an unlocked RWLock.
func New() *RWLock {
	return &RWLock{}
}

func (l *RWLock) lazyInit() {
	if !l.init {
		l.readCond.L = &l.mu
		l.writeCond.L = &l.mu
		l.init = true
	}
}

// RLock acquires the lock in shared mode.
func (l *RWLock) RLock() {
	l.mu.Lock()
	l.lazyInit()

	if !l.writerActive && l.writersWaiting == 0 {
		l.readersActive++
		l.mu.Unlock()
		return
	}

	l.readersWaiting++
	batch := l.readBatch
	for batch == l.readBatch {
		l.readCond.Wait()
	}
	// admitted: the releaser already moved us to readersActive
	l.mu.Unlock()
}

// RUnlock releases a shared hold.
func (l *RWLock) RUnlock() {
	l.mu.Lock()
	l.lazyInit()

	if l.readersActive <= 0 {
		l.mu.Unlock()
		panic("rwlock: RUnlock of unlocked RWLock")
	}
	l.readersActive--

	if l.readersActive == 0 && l.writersWaiting > 0 {
		l.admitWriter()
	}
	l.mu.Unlock()
}

// Lock acquires the lock in exclusive mode.
func (l *RWLock) Lock() {
	l.mu.Lock()
	l.lazyInit()

	if !l.writerActive && l.readersActive == 0 && l.writeGrants == 0 {
		l.writerActive = true
		l.mu.Unlock()
		return
	}

	l.writersWaiting++
	for l.writeGrants == 0 {
		l.writeCond.Wait()
	}
	// admitted: the releaser already set writerActive for us
	l.writeGrants--
	l.mu.Unlock()
}

// Unlock releases an exclusive hold.
func (l *RWLock) Unlock() {
	l.mu.Lock()
	l.lazyInit()

	if !l.writerActive {
		l.mu.Unlock()
		panic("rwlock: Unlock of unlocked RWLock")
	}
	l.writerActive = false

	switch {
	case l.readersWaiting > 0:
		l.admitReaders()
	case l.writersWaiting > 0:
		l.admitWriter()
	}
	l.mu.Unlock()
}

// Downgrade atomically converts an exclusive hold into a shared one.
//
// Readers that were waiting are admitted together with the caller. Waiting
// writers stay queued until the last reader leaves.
func (l *RWLock) Downgrade() {
	l.mu.Lock()
	l.lazyInit()

	if !l.writerActive {
		l.mu.Unlock()
		panic("rwlock: Downgrade of RWLock not held exclusively")
	}
	l.writerActive = false
	l.readersActive++

	if l.readersWaiting > 0 {
		l.admitReaders()
	}
	l.mu.Unlock()
}

// RLocker returns a sync.Locker that takes the lock in shared mode.
func (l *RWLock) RLocker() sync.Locker {
	return (*rlocker)(l)
}

// admitReaders moves every waiting reader to active. l.mu must be held.
func (l *RWLock) admitReaders() {
	l.readersActive += l.readersWaiting
	l.readersWaiting = 0
	l.readBatch++
	l.readCond.Broadcast()
}

// admitWriter hands the lock to exactly one waiting writer. l.mu must be held.
func (l *RWLock) admitWriter() {
	l.writersWaiting--
	l.writerActive = true
	l.writeGrants++
	l.writeCond.Signal()
}

// State is a snapshot of the lock counters, for diagnostics and tests.
type State struct {
	ReadersActive  int
	ReadersWaiting int
	WriterActive   bool
	WritersWaiting int
}

// State returns the current counters.
func (l *RWLock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		ReadersActive:  l.readersActive,
		ReadersWaiting: l.readersWaiting,
		WriterActive:   l.writerActive,
		WritersWaiting: l.writersWaiting,
	}
}

type rlocker RWLock

func (r *rlocker) Lock()   { (*RWLock)(r).RLock() }
func (r *rlocker) Unlock() { (*RWLock)(r).RUnlock() }
