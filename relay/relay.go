package relay

import (
	"context"
	"sync"

	"github.com/objectstore-rt/mutablechannel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/grpclog"
)

var logger = grpclog.Component("relay")

// ClientFactory resolves a peer node ID to an RPC client capable of
// invoking PushMutable/RegisterMutable against it. The relay treats the
// RPC framework as an external collaborator (spec section 1); callers
// supply their own factory, typically backed by a grpc.ClientConn pool.
type ClientFactory func(ctx context.Context, peerNodeID string) (*peerClient, error)

// Relay is the cross-node relay of spec section 4.4 (C4): it runs a
// dedicated pump goroutine per writer-side channel and a reader-side
// handler for incoming pushes.
type Relay struct {
	manager *mutablechannel.Manager
	store   mutablechannel.ObjectStore
	dial    ClientFactory

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	crossNode map[mutablechannel.ObjectID]remoteInfo
}

// New returns a Relay wired to manager and store, using dial to obtain
// peer clients for writer-side channels. ctx bounds the lifetime of every
// pump goroutine the relay starts; canceling it (or calling Close) stops
// them all.
func New(ctx context.Context, manager *mutablechannel.Manager, store mutablechannel.ObjectStore, dial ClientFactory) *Relay {
	gctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(gctx)
	return &Relay{
		manager:   manager,
		store:     store,
		dial:      dial,
		group:     group,
		ctx:       gctx,
		cancel:    cancel,
		crossNode: make(map[mutablechannel.ObjectID]remoteInfo),
	}
}

// RegisterWriterChannel implements spec section 4.4's writer-side
// RegisterWriterChannel: it registers the local object as a reader (the
// relay consumes versions to forward them), obtains a client to peerNodeID,
// tells the peer via RegisterMutable which local object ID to shadow the
// pushed versions into, and schedules a dedicated pump for the channel.
// One goroutine per channel is required because PollWriter can block
// indefinitely inside ReadAcquire; multiplexing channels onto a shared
// goroutine would risk head-of-line blocking (spec section 4.4's stated
// constraint).
//
// remoteShadowID and numReaders configure the peer's shadow channel; both
// sides must agree on numReaders out of band, as spec section 4.4 notes
// for broadcast configurations.
func (r *Relay) RegisterWriterChannel(id mutablechannel.ObjectID, peerNodeID string, remoteShadowID mutablechannel.ObjectID, numReaders int64) error {
	region, err := r.store.GetMutableObject(id)
	if err != nil {
		return err
	}
	if _, err := r.manager.RegisterChannel(r.ctx, id, region, true); err != nil {
		return err
	}
	client, err := r.dial(r.ctx, peerNodeID)
	if err != nil {
		return err
	}

	_, err = client.RegisterMutable(r.ctx, &RegisterMutableRequest{
		RemoteObjectID: id,
		NumReaders:     numReaders,
		LocalObjectID:  remoteShadowID,
	})
	if err != nil {
		return err
	}

	r.group.Go(func() error {
		return r.pollWriter(id, client)
	})
	return nil
}

// pollWriter is PollWriter from spec section 4.4: a self-rescheduling loop
// (expressed as a loop rather than recursive RPC-completion callbacks,
// since this goroutine can simply block on the synchronous ReadAcquire) that
// forwards each observed version to client and releases it regardless of
// RPC outcome — the design's resolved Open Question: a persistent RPC
// failure is not retried, on the assumption the next version supersedes it.
func (r *Relay) pollWriter(id mutablechannel.ObjectID, client *peerClient) error {
	for {
		data, metadata, err := r.manager.ReadAcquire(r.ctx, id)
		if err != nil {
			if mutablechannel.IsIoError(err) {
				logger.Infof("pump for %s stopping: channel entered error state", id)
				return nil
			}
			return err
		}

		req := &PushMutableRequest{
			ObjectID:     id,
			DataSize:     uint64(len(data)),
			MetadataSize: uint64(len(metadata)),
			Payload:      append(append([]byte(nil), data...), metadata...),
		}
		if _, err := client.PushMutable(r.ctx, req); err != nil {
			logger.Warningf("pump for %s: PushMutable failed, proceeding to next version: %v", id, err)
		}

		if err := r.manager.ReadRelease(r.ctx, id); err != nil && !mutablechannel.IsIoError(err) {
			return err
		}
	}
}

// Close cancels every running pump and waits for them to exit.
func (r *Relay) Close() error {
	r.cancel()
	return r.group.Wait()
}
