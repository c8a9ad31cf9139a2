package mutablechannel

import (
	"fmt"
	"sync"

	"github.com/objectstore-rt/mutablechannel/internal/shmio"
)

// Region is the external MutableRegion contract of spec section 3/6: an
// exclusively-owned handle onto a shared-memory region holding an
// ObjectHeader at offset 0 followed by a data buffer of AllocatedSize()
// bytes. Implementations supplied by an object store need only satisfy
// this interface; this file provides an shm-backed implementation for
// single-host multi-process use and an in-process one (memRegion) that the
// tests use.
type Region interface {
	Header() *ObjectHeader
	Buffer() []byte
	AllocatedSize() uint64
	Close() error
}

// ObjectStore is the external collaborator described in spec section 6:
// it resolves an ObjectID to a MutableRegion. The channel subsystem never
// allocates regions on its own; it is always handed one.
type ObjectStore interface {
	GetMutableObject(id ObjectID) (Region, error)
}

// shmRegion is a Region backed by a real OS shared-memory segment,
// grounded on the teacher's CreateSegment/OpenSegment pair.
type shmRegion struct {
	seg  *shmio.Segment
	hdr  *ObjectHeader
	size uint64
}

func (r *shmRegion) Header() *ObjectHeader  { return r.hdr }
func (r *shmRegion) Buffer() []byte         { return r.seg.Mem[HeaderSize:] }
func (r *shmRegion) AllocatedSize() uint64  { return r.size }
func (r *shmRegion) Close() error           { return r.seg.Close() }

// memRegion is a Region backed by an ordinary process-local byte slice. It
// supports every operation this package offers except cross-process
// sharing, works on every platform, and is used by tests and by
// cmd/mutchan-debug for in-process channels.
type memRegion struct {
	mem  []byte
	hdr  *ObjectHeader
	size uint64
}

func (r *memRegion) Header() *ObjectHeader { return r.hdr }
func (r *memRegion) Buffer() []byte        { return r.mem[HeaderSize:] }
func (r *memRegion) AllocatedSize() uint64 { return r.size }
func (r *memRegion) Close() error          { return nil }

// NewMemRegion allocates an in-process region of the given buffer
// capacity, with a freshly initialized header under uniqueName.
func NewMemRegion(uniqueName string, allocatedSize uint64) Region {
	mem := make([]byte, HeaderSize+int(allocatedSize))
	hdr := newObjectHeader(mem)
	hdr.initFresh(uniqueName, allocatedSize)
	return &memRegion{mem: mem, hdr: hdr, size: allocatedSize}
}

// ShmObjectStore is an ObjectStore backed by named OS shared-memory
// segments, one per ObjectID, file-backed under /dev/shm (falling back to
// the OS temp directory), grounded on the teacher's
// generateSegmentPath/isDevShmAvailable logic.
type ShmObjectStore struct {
	mu      sync.Mutex
	regions map[ObjectID]Region
}

// NewShmObjectStore returns an empty store. On platforms without real
// shared memory, GetMutableObject and CreateMutableObject return
// ErrUnsupported.
func NewShmObjectStore() *ShmObjectStore {
	return &ShmObjectStore{regions: make(map[ObjectID]Region)}
}

// CreateMutableObject creates a brand-new backing segment for id, sized to
// hold allocatedSize data+metadata bytes plus the header. Fails if a
// region for id is already tracked by this store.
func (s *ShmObjectStore) CreateMutableObject(id ObjectID, allocatedSize uint64) (Region, error) {
	if !shmio.Supported {
		return nil, ErrUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[id]; ok {
		return nil, newErr(Invalid, nil, "region for %s already exists in this store", id)
	}

	name := id.String()
	seg, err := shmio.Create(name, HeaderSize+int(allocatedSize))
	if err != nil {
		return nil, fmt.Errorf("mutablechannel: create region %s: %w", id, err)
	}
	hdr := newObjectHeader(seg.Mem)
	hdr.initFresh(name, allocatedSize)

	r := &shmRegion{seg: seg, hdr: hdr, size: allocatedSize}
	s.regions[id] = r
	return r, nil
}

// GetMutableObject implements ObjectStore by returning the region
// previously created or opened for id.
func (s *ShmObjectStore) GetMutableObject(id ObjectID) (Region, error) {
	if !shmio.Supported {
		return nil, ErrUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.regions[id]; ok {
		return r, nil
	}

	name := id.String()
	// allocatedSize is unknown without opening the segment first; probe
	// its on-disk size indirectly by letting shmio.Open read it once we
	// know the header's recorded allocatedSize. We open at HeaderSize to
	// read the header, then verify the full size matches.
	seg, err := shmio.Open(name, HeaderSize)
	if err != nil {
		return nil, newErr(NotFound, err, "no mutable object %s", id)
	}
	hdr := newObjectHeader(seg.Mem)
	size := hdr.AllocatedSize()
	seg.Close()

	seg, err = shmio.Open(name, HeaderSize+int(size))
	if err != nil {
		return nil, fmt.Errorf("mutablechannel: reopen region %s: %w", id, err)
	}
	hdr = newObjectHeader(seg.Mem)

	r := &shmRegion{seg: seg, hdr: hdr, size: size}
	s.regions[id] = r
	return r, nil
}

// Remove closes and unlinks id's backing segment.
func (s *ShmObjectStore) Remove(id ObjectID) error {
	s.mu.Lock()
	r, ok := s.regions[id]
	delete(s.regions, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.Close(); err != nil {
		return err
	}
	return shmio.Remove(id.String())
}
