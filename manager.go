package mutablechannel

import (
	"context"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/grpclog"
)

var logger = grpclog.Component("mutablechannel")

// Manager is the channel manager of spec section 4.3 (C3): a per-process
// registry of Channels that enforces registration/roles, serializes
// single-reader access per channel, and orchestrates teardown.
type Manager struct {
	mu       sync.Mutex
	channels map[ObjectID]*Channel

	sems  *semaphoreRegistry
	store ObjectStore
}

// NewManager returns an empty channel manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		channels: make(map[ObjectID]*Channel),
		sems:     newSemaphoreRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterChannel implements spec section 4.3's RegisterChannel: insert or
// update the channel for id, marking the requested role. Registering a
// role that is already set on an existing channel fails with Invalid. An
// existing channel keeps its original region; region is used only when id
// is not yet registered.
func (m *Manager) RegisterChannel(ctx context.Context, id ObjectID, region Region, reader bool) (*Channel, error) {
	m.mu.Lock()
	ch, exists := m.channels[id]
	if !exists {
		ch = newChannel(region)
		m.channels[id] = ch
	}
	m.mu.Unlock()

	if reader {
		if ch.readerRegistered {
			return nil, newErr(Invalid, nil, "reader role already registered for %s", id)
		}
		ch.readerRegistered = true
	} else {
		if ch.writerRegistered {
			return nil, newErr(Invalid, nil, "writer role already registered for %s", id)
		}
		ch.writerRegistered = true
	}

	if err := m.sems.OpenSemaphores(ctx, id, ch.region.Header()); err != nil {
		return nil, err
	}
	return ch, nil
}

// RegisterObject resolves id through the manager's configured
// ObjectStore (see WithObjectStore) and registers the resulting region,
// for callers that would rather not call the store directly.
func (m *Manager) RegisterObject(ctx context.Context, id ObjectID, reader bool) (*Channel, error) {
	if m.store == nil {
		return nil, newErr(Invalid, nil, "manager has no configured ObjectStore; use RegisterChannel directly")
	}
	region, err := m.store.GetMutableObject(id)
	if err != nil {
		return nil, err
	}
	return m.RegisterChannel(ctx, id, region, reader)
}

// GetChannel looks up id's channel, returning NotFound if it is not
// registered. The returned pointer is stable for the lifetime of the
// manager.
func (m *Manager) GetChannel(id ObjectID) (*Channel, error) {
	m.mu.Lock()
	ch, ok := m.channels[id]
	m.mu.Unlock()
	if !ok {
		return nil, newErr(NotFound, nil, "channel %s is not registered", id)
	}
	return ch, nil
}

// WriteAcquire implements spec section 4.3's WriteAcquire.
func (m *Manager) WriteAcquire(ctx context.Context, id ObjectID, dataSize uint64, metadata []byte, metadataSize uint64, numReaders int64) ([]byte, error) {
	ch, err := m.GetChannel(id)
	if err != nil {
		return nil, err
	}
	if ch.region.Header().hasError() {
		return nil, newErr(IoError, nil, "channel %s is in the error state", id)
	}
	if !ch.writerRegistered {
		return nil, newErr(Invalid, nil, "channel %s has no registered writer", id)
	}
	if ch.written {
		return nil, newErr(Invalid, nil, "WriteAcquire called twice without an intervening WriteRelease on %s", id)
	}
	if dataSize+metadataSize > ch.region.AllocatedSize() {
		return nil, newErr(InvalidArgument, nil,
			"data_size (%d) + metadata_size (%d) exceeds allocated size (%d) for %s",
			dataSize, metadataSize, ch.region.AllocatedSize(), id)
	}

	if err := ch.region.Header().WriteAcquire(ctx, dataSize, metadataSize, numReaders); err != nil {
		return nil, err
	}

	buf := ch.region.Buffer()
	if metadata != nil {
		copy(buf[dataSize:dataSize+metadataSize], metadata)
	}
	ch.written = true
	return buf[:dataSize], nil
}

// WriteRelease implements spec section 4.3's WriteRelease.
func (m *Manager) WriteRelease(ctx context.Context, id ObjectID) error {
	ch, err := m.GetChannel(id)
	if err != nil {
		return err
	}
	if ch.region.Header().hasError() {
		return newErr(IoError, nil, "channel %s is in the error state", id)
	}
	if !ch.writerRegistered || !ch.written {
		return newErr(Invalid, nil, "WriteRelease called without a matching WriteAcquire on %s", id)
	}
	if err := ch.region.Header().WriteRelease(ctx); err != nil {
		return err
	}
	ch.written = false
	return nil
}

// ReadAcquire implements spec section 4.3's ReadAcquire, returning
// non-owning data and metadata slices valid until the matching
// ReadRelease.
func (m *Manager) ReadAcquire(ctx context.Context, id ObjectID) (data, metadata []byte, err error) {
	ch, err := m.GetChannel(id)
	if err != nil {
		return nil, nil, err
	}
	if ch.region.Header().hasError() {
		return nil, nil, newErr(IoError, nil, "channel %s is in the error state", id)
	}
	if !ch.readerRegistered {
		return nil, nil, newErr(Invalid, nil, "channel %s has no registered reader", id)
	}

	if err := ch.acquireReaderGate(ctx); err != nil {
		return nil, nil, err
	}

	versionObserved, err := ch.region.Header().ReadAcquire(ctx, ch.nextVersionToRead-1)
	if err != nil {
		ch.releaseReaderGate()
		return nil, nil, err
	}
	ch.nextVersionToRead = versionObserved

	l := ch.region.Header().l
	dataSize := atomic.LoadUint64(&l.dataSize)
	metadataSize := atomic.LoadUint64(&l.metadataSize)
	buf := ch.region.Buffer()
	return buf[0:dataSize], buf[dataSize : dataSize+metadataSize], nil
}

// ReadRelease implements spec section 4.3's ReadRelease.
func (m *Manager) ReadRelease(ctx context.Context, id ObjectID) error {
	ch, err := m.GetChannel(id)
	if err != nil {
		return err
	}
	if ch.region.Header().hasError() {
		return newErr(IoError, nil, "channel %s is in the error state", id)
	}
	if !ch.readerRegistered {
		return newErr(Invalid, nil, "channel %s has no registered reader", id)
	}

	err = ch.region.Header().ReadRelease(ctx)
	ch.nextVersionToRead++
	ch.releaseReaderGate()
	return err
}

// SetError implements spec section 4.3's single-channel SetError: it sets
// the header's sticky error flag and clears both role flags. Registering a
// role again afterwards succeeds, but the channel keeps the same region,
// so its operations keep returning IoError.
func (m *Manager) SetError(id ObjectID) error {
	ch, err := m.GetChannel(id)
	if err != nil {
		return err
	}
	ch.region.Header().SetErrorUnlocked()
	ch.readerRegistered = false
	ch.writerRegistered = false
	return nil
}

// SetErrorAll implements the all-channel variant of SetError. It walks
// every registered channel best-effort (spec section 9's resolved Open
// Question) rather than stopping at the first failure, and returns the
// first error observed, if any.
func (m *Manager) SetErrorAll() error {
	m.mu.Lock()
	ids := make([]ObjectID, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := m.SetError(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close is the manager's destructor (spec section 4.3's "Destructor"): it
// snapshots the semaphore registry, calls SetError on every channel, then
// DestroySemaphores on each — in that order, so any thread blocked inside
// ReadAcquire/WriteAcquire is released with IoError before its backing
// semaphores disappear.
func (m *Manager) Close() error {
	ids := m.sems.snapshotIDs()
	logger.Infof("tearing down channel manager: %d channel(s)", len(ids))

	var first error
	for _, id := range ids {
		if err := m.SetError(id); err != nil && first == nil {
			first = err
		}
	}
	for _, id := range ids {
		m.sems.DestroySemaphores(id)
	}
	return first
}
