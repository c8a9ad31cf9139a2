package mutablechannel

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/objectstore-rt/mutablechannel/internal/futex"
)

// Tri-state values for ObjectHeader.semaphoresCreated, the one-shot
// election primitive described in spec section 4.2/9.
const (
	semUninitialized uint32 = 0
	semInitializing  uint32 = 1
	semDone          uint32 = 2
)

const maxUniqueNameLen = 64

// headerLayout is the in-place, shared-memory-resident state machine that
// lives at offset 0 of every mutable region. Field order keeps 8-byte
// atomics first so the struct stays naturally aligned regardless of where
// the backing mmap places it.
type headerLayout struct {
	magic         [8]byte // "MUTCHDR\x00"
	version       int64   // 0x08: monotonically increasing; 0 = no version yet
	numReaders    int64   // 0x10: acks still owed for the current version
	maxReaders    int64   // 0x18: -1 means broadcast (unbounded)
	dataSize      uint64  // 0x20
	metadataSize  uint64  // 0x28
	allocatedSize uint64  // 0x30: capacity of the buffer following this header

	semaphoresCreated uint32 // 0x38: tri-state election flag
	errorFlag         uint32 // 0x3C: sticky error bit

	headerSem uint32 // 0x40: futex word backing header_sem, 1 = available
	objectSem uint32 // 0x44: futex word backing object_sem, 1 = available

	nameLen uint16          // 0x48
	_       [6]byte         // padding
	name    [maxUniqueNameLen]byte // 0x50
}

var headerMagic = [8]byte{'M', 'U', 'T', 'C', 'H', 'D', 'R', 0}

// HeaderSize is the number of bytes a mutable region's header occupies at
// the front of the region. The data buffer begins immediately after.
const HeaderSize = int(unsafe.Sizeof(headerLayout{}))

// ObjectHeader is the Go-side handle onto a headerLayout living inside a
// mapped region's backing bytes. Every method is safe to call from any
// process that has mapped the same region.
type ObjectHeader struct {
	l *headerLayout

	headerSem futexSem
	objectSem futexSem
}

// newObjectHeader wraps the header struct found at the start of mem. mem
// must be at least HeaderSize bytes and must outlive the returned header.
func newObjectHeader(mem []byte) *ObjectHeader {
	l := (*headerLayout)(unsafe.Pointer(&mem[0]))
	return &ObjectHeader{
		l:         l,
		headerSem: futexSem{word: &l.headerSem},
		objectSem: futexSem{word: &l.objectSem},
	}
}

// initFresh stamps a newly created region's header with its initial
// values. Only the process that created the backing region should call
// this; a process opening an existing region must not.
func (h *ObjectHeader) initFresh(uniqueName string, allocatedSize uint64) {
	h.l.magic = headerMagic
	if len(uniqueName) > maxUniqueNameLen {
		uniqueName = uniqueName[:maxUniqueNameLen]
	}
	copy(h.l.name[:], uniqueName)
	h.l.nameLen = uint16(len(uniqueName))
	atomic.StoreUint64(&h.l.allocatedSize, allocatedSize)
	atomic.StoreUint32(&h.l.headerSem, 1)
	atomic.StoreUint32(&h.l.objectSem, 1)
	atomic.StoreUint32(&h.l.semaphoresCreated, semUninitialized)
	atomic.StoreUint32(&h.l.errorFlag, 0)
	atomic.StoreInt64(&h.l.version, 0)
	atomic.StoreInt64(&h.l.numReaders, 0)
	atomic.StoreInt64(&h.l.maxReaders, 0)
	atomic.StoreUint64(&h.l.dataSize, 0)
	atomic.StoreUint64(&h.l.metadataSize, 0)
}

// UniqueName returns the bounded name used to derive this header's
// semaphore identities.
func (h *ObjectHeader) UniqueName() string {
	n := h.l.nameLen
	return string(h.l.name[:n])
}

func (h *ObjectHeader) AllocatedSize() uint64 {
	return atomic.LoadUint64(&h.l.allocatedSize)
}

func (h *ObjectHeader) Version() int64 {
	return atomic.LoadInt64(&h.l.version)
}

func (h *ObjectHeader) hasError() bool {
	return atomic.LoadUint32(&h.l.errorFlag) != 0
}

// WriteAcquire is step 1-4 of spec section 4.1: block until the previous
// version's readers have all released, then claim the header for mutation
// by a writer. On success the caller may write into the region's data
// buffer and must follow with WriteRelease.
func (h *ObjectHeader) WriteAcquire(ctx context.Context, dataSize, metadataSize uint64, numReaders int64) error {
	if err := h.headerSem.Acquire(ctx); err != nil {
		return err
	}
	if h.hasError() {
		h.headerSem.Release()
		return newErr(IoError, nil, "header error flag set")
	}

	if atomic.LoadInt64(&h.l.numReaders) != 0 {
		// Previous version still has outstanding readers. Release the
		// header and block on object_sem until the last reader reposts
		// it, then retake the header.
		h.headerSem.Release()
		if err := h.objectSem.Acquire(ctx); err != nil {
			return err
		}
		if err := h.headerSem.Acquire(ctx); err != nil {
			return err
		}
		if h.hasError() {
			h.headerSem.Release()
			return newErr(IoError, nil, "header error flag set")
		}
	}

	atomic.StoreUint64(&h.l.dataSize, dataSize)
	atomic.StoreUint64(&h.l.metadataSize, metadataSize)
	atomic.StoreInt64(&h.l.maxReaders, numReaders)
	if numReaders == -1 {
		// Broadcast: no acks are owed, even though max_readers records
		// the unbounded sentinel.
		atomic.StoreInt64(&h.l.numReaders, 0)
	} else {
		atomic.StoreInt64(&h.l.numReaders, numReaders)
	}

	h.headerSem.Release()
	return nil
}

// WriteRelease is spec section 4.1's WriteRelease: publish the version the
// writer just finished filling and arm the reader rendezvous.
func (h *ObjectHeader) WriteRelease(ctx context.Context) error {
	if err := h.headerSem.Acquire(ctx); err != nil {
		return err
	}
	if h.hasError() {
		h.headerSem.Release()
		return newErr(IoError, nil, "header error flag set")
	}

	atomic.AddInt64(&h.l.version, 1)

	// Mark the rendezvous pending; ReadRelease reposts it once the last
	// owed ack comes in.
	h.objectSem.forceDown()
	if atomic.LoadInt64(&h.l.numReaders) == 0 {
		// Broadcast (max_readers == -1) or zero declared readers: nobody
		// owes an ack, so the rendezvous is immediately satisfied.
		h.objectSem.Release()
	}

	h.headerSem.Release()
	futex.Wake(&h.l.headerSem, 1<<30) // best-effort: wake any header_sem waiters so they re-check version
	return nil
}

// ReadAcquire is spec section 4.1's ReadAcquire: block until a version
// newer than lastReadVersion is published, then return it. The caller
// must follow with ReadRelease before the returned version number is
// reused for any purpose.
func (h *ObjectHeader) ReadAcquire(ctx context.Context, lastReadVersion int64) (versionObserved int64, err error) {
	for {
		if err := h.headerSem.Acquire(ctx); err != nil {
			return 0, err
		}
		if h.hasError() {
			h.headerSem.Release()
			return 0, newErr(IoError, nil, "header error flag set")
		}
		v := atomic.LoadInt64(&h.l.version)
		if v > lastReadVersion {
			h.headerSem.Release()
			return v, nil
		}
		h.headerSem.Release()

		if err := sleepOrDone(ctx, 1*time.Millisecond); err != nil {
			return 0, err
		}
	}
}

// ReadRelease is spec section 4.1's ReadRelease: acknowledge the version
// the caller just finished reading.
func (h *ObjectHeader) ReadRelease(ctx context.Context) error {
	if err := h.headerSem.Acquire(ctx); err != nil {
		return err
	}
	if h.hasError() {
		h.headerSem.Release()
		return newErr(IoError, nil, "header error flag set")
	}

	if atomic.LoadInt64(&h.l.maxReaders) != -1 {
		remaining := atomic.AddInt64(&h.l.numReaders, -1)
		if remaining == 0 {
			h.objectSem.Release()
		}
	}

	h.headerSem.Release()
	return nil
}

// SetErrorUnlocked sets the sticky error flag and wakes anyone blocked
// inside the protocol so they can observe it. Safe to call concurrently
// with in-flight acquires/releases; it does not itself take header_sem
// because a hung holder must never be able to prevent teardown.
func (h *ObjectHeader) SetErrorUnlocked() {
	atomic.StoreUint32(&h.l.errorFlag, 1)
	atomic.StoreUint32(&h.l.headerSem, 1)
	atomic.StoreUint32(&h.l.objectSem, 1)
	futex.Wake(&h.l.headerSem, 1<<30)
	futex.Wake(&h.l.objectSem, 1<<30)
}

// sleepOrDone waits for d or ctx cancellation, matching the cooperative
// polling style used elsewhere in this package for blocking operations.
func sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
