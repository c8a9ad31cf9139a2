package mutablechannel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/objectstore-rt/mutablechannel/internal/futex"
)

// futexSem is a binary semaphore backed by a futex word embedded in shared
// memory, standing in for a POSIX named semaphore (unreachable from pure
// Go without cgo; see header_sem/object_sem in spec section 3).
type futexSem struct {
	word *uint32
}

// Acquire blocks until the semaphore's value is 1, then atomically claims
// it (sets it to 0). It respects ctx cancellation.
func (s *futexSem) Acquire(ctx context.Context) error {
	for {
		if atomic.CompareAndSwapUint32(s.word, 1, 0) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if futex.Supported {
			if err := futex.WaitTimeout(s.word, 0, int64(5*time.Millisecond)); err != nil && err != futex.ErrTimeout {
				return err
			}
		} else {
			runtime.Gosched()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Release posts the semaphore (sets it to 1) and wakes any waiters.
func (s *futexSem) Release() {
	atomic.StoreUint32(s.word, 1)
	futex.Wake(s.word, 1<<30)
}

// forceDown sets the semaphore's value to 0 without blocking or requiring
// it to currently be 1. Used by WriteRelease, which is the exclusive owner
// of the header at the point it calls this.
func (s *futexSem) forceDown() {
	atomic.StoreUint32(s.word, 0)
}

// semaphoreRegistry implements spec section 4.2: the per-process mapping
// from object ID to the pair of semaphores backing a region's header, plus
// the cross-process create-vs-open election driven by the header's
// semaphoresCreated tri-state atomic.
type semaphoreRegistry struct {
	mu      sync.Mutex
	opened  map[ObjectID]struct{}
}

func newSemaphoreRegistry() *semaphoreRegistry {
	return &semaphoreRegistry{opened: make(map[ObjectID]struct{})}
}

// OpenSemaphores performs the one-shot election described in spec section
// 4.2 against header's semaphoresCreated field, then records id as opened.
// It is idempotent: a second call for the same id is a no-op.
func (r *semaphoreRegistry) OpenSemaphores(ctx context.Context, id ObjectID, header *ObjectHeader) error {
	r.mu.Lock()
	_, already := r.opened[id]
	r.mu.Unlock()
	if already {
		return nil
	}

	if atomic.CompareAndSwapUint32(&header.l.semaphoresCreated, semUninitialized, semInitializing) {
		// Winner: our own initFresh already stamped header_sem/object_sem
		// to value 1 and reset the state atomics, standing in for
		// unlinking stale semaphores and sem_open(O_CREAT|O_EXCL, ...) on
		// fresh names. Publish Done with release ordering.
		atomic.StoreUint32(&header.l.semaphoresCreated, semDone)
	} else {
		// Loser: spin (cooperative yield) until the winner publishes Done.
		for {
			if atomic.LoadUint32(&header.l.semaphoresCreated) == semDone {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			runtime.Gosched()
		}
	}

	r.mu.Lock()
	r.opened[id] = struct{}{}
	r.mu.Unlock()
	return nil
}

// DestroySemaphores removes id's entry. Because the semaphores here are
// futex words embedded in the header rather than kernel-global objects,
// there is no separate unlink step: the header's memory is reclaimed when
// the region itself is closed by its owner.
func (r *semaphoreRegistry) DestroySemaphores(id ObjectID) {
	r.mu.Lock()
	delete(r.opened, id)
	r.mu.Unlock()
}

// snapshotIDs returns the currently opened IDs, decoupled from the live
// map so callers may safely mutate the registry while iterating — the
// same "copy before destroy" discipline the teardown path in
// experimental_mutable_object_manager.cc uses to avoid mutating
// semaphores_ while iterating over it.
func (r *semaphoreRegistry) snapshotIDs() []ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ObjectID, 0, len(r.opened))
	for id := range r.opened {
		ids = append(ids, id)
	}
	return ids
}
