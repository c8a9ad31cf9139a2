package relay

import (
	"context"

	"github.com/objectstore-rt/mutablechannel"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// remoteInfo is the bookkeeping HandleRegisterMutableObject records per
// spec section 4.4: the number of readers a broadcast/bounded shadow
// channel was configured with, and which local object the pushed bytes
// land in.
type remoteInfo struct {
	numReaders    int64
	localObjectID mutablechannel.ObjectID
}

// RegisterReaderChannel registers localID as a shadow channel carrying
// both roles: writer, so the relay itself may WriteAcquire/WriteRelease
// into it on behalf of whatever remote writer's versions arrive over
// PushMutable, and reader, so local consumers sharing this Manager may
// call ReadAcquire/ReadRelease without a separate registration step (spec
// section 4.3's "a channel may legitimately carry both roles").
func (r *Relay) RegisterReaderChannel(ctx context.Context, localID mutablechannel.ObjectID) error {
	region, err := r.store.GetMutableObject(localID)
	if err != nil {
		return err
	}
	if _, err := r.manager.RegisterChannel(ctx, localID, region, false); err != nil {
		if code, ok := mutablechannel.CodeOf(err); !ok || code != mutablechannel.Invalid {
			return err
		}
	}
	if _, err := r.manager.RegisterChannel(ctx, localID, region, true); err != nil {
		if code, ok := mutablechannel.CodeOf(err); !ok || code != mutablechannel.Invalid {
			return err
		}
	}
	return nil
}

// HandleRegisterMutableObject implements the reader-side endpoint of spec
// section 4.4: it records the remote-to-local object mapping and ensures
// the local shadow channel is registered so local consumers can subscribe.
func (r *Relay) HandleRegisterMutableObject(ctx context.Context, req *RegisterMutableRequest) (*RegisterMutableReply, error) {
	remoteID := mutablechannel.ObjectID(req.RemoteObjectID)
	localID := mutablechannel.ObjectID(req.LocalObjectID)

	r.mu.Lock()
	r.crossNode[remoteID] = remoteInfo{numReaders: req.NumReaders, localObjectID: localID}
	r.mu.Unlock()

	if err := r.RegisterReaderChannel(ctx, localID); err != nil {
		return nil, toStatus(err)
	}
	return &RegisterMutableReply{}, nil
}

// HandlePushMutable implements the reader-side endpoint of spec section
// 4.4: it looks up the local mapping for the pushed object, writes the
// full payload into the local shadow channel, and publishes it.
func (r *Relay) HandlePushMutable(ctx context.Context, req *PushMutableRequest) (*PushMutableReply, error) {
	remoteID := mutablechannel.ObjectID(req.ObjectID)

	r.mu.Lock()
	info, ok := r.crossNode[remoteID]
	r.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "relay: no RegisterMutable mapping for object %s", remoteID)
	}

	if req.DataSize+req.MetadataSize > uint64(len(req.Payload)) {
		return nil, status.Errorf(codes.InvalidArgument, "relay: payload shorter than declared data+metadata size")
	}
	data := req.Payload[:req.DataSize]
	metadata := req.Payload[req.DataSize : req.DataSize+req.MetadataSize]

	buf, err := r.manager.WriteAcquire(ctx, info.localObjectID, req.DataSize, metadata, req.MetadataSize, info.numReaders)
	if err != nil {
		return nil, toStatus(err)
	}
	copy(buf, data)
	if err := r.manager.WriteRelease(ctx, info.localObjectID); err != nil {
		return nil, toStatus(err)
	}
	return &PushMutableReply{}, nil
}

func toStatus(err error) error {
	code, ok := mutablechannel.CodeOf(err)
	if !ok {
		return status.Error(codes.Unknown, err.Error())
	}
	return status.Error(code.GRPCCode(), err.Error())
}
