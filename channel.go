package mutablechannel

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Channel is the per-process bookkeeping for one registered mutable
// region, per spec section 3.
type Channel struct {
	region Region

	readerRegistered bool
	writerRegistered bool
	written          bool

	nextVersionToRead int64

	// readerGate serializes local readers: the header protocol alone does
	// not coordinate two in-process threads sharing one num_readers
	// budget (spec section 9, "Per-channel reader gate").
	readerGate *semaphore.Weighted
}

func newChannel(region Region) *Channel {
	return &Channel{
		region:            region,
		nextVersionToRead: 1,
		readerGate:        semaphore.NewWeighted(1),
	}
}

// Role reports the channel's current (reader, writer) role pair.
func (c *Channel) Role() (reader, writer bool) {
	return c.readerRegistered, c.writerRegistered
}

func (c *Channel) acquireReaderGate(ctx context.Context) error {
	if err := c.readerGate.Acquire(ctx, 1); err != nil {
		return newErr(IoError, err, "reader gate acquire canceled")
	}
	return nil
}

func (c *Channel) releaseReaderGate() {
	c.readerGate.Release(1)
}
