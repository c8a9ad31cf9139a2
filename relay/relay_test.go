package relay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/objectstore-rt/mutablechannel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPushMutableRequestWireRoundTrip(t *testing.T) {
	want := &PushMutableRequest{
		ObjectID:     [20]byte{1, 2, 3, 4, 5},
		DataSize:     4,
		MetadataSize: 3,
		Payload:      []byte{9, 9, 9, 9, 'm', 'e', 't'},
	}

	got := new(PushMutableRequest)
	if err := got.Unmarshal(want.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PushMutableRequest wire round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterMutableRequestWireRoundTrip(t *testing.T) {
	want := &RegisterMutableRequest{
		RemoteObjectID: [20]byte{0xAA},
		NumReaders:     -1,
		LocalObjectID:  [20]byte{0xBB},
	}

	got := new(RegisterMutableRequest)
	if err := got.Unmarshal(want.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("RegisterMutableRequest wire round trip mismatch (-want +got):\n%s", diff)
	}
}

// pipeListener is an in-memory net.Listener backed by net.Pipe, used so
// relay tests exercise a real grpc.Server/grpc.ClientConn without binding
// an OS socket.
type pipeListener struct {
	mu     sync.Mutex
	conns  chan net.Conn
	closed bool
}

func newPipeListener() *pipeListener {
	return &pipeListener{conns: make(chan net.Conn, 1)}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	c, ok := <-l.conns
	if !ok {
		return nil, fmt.Errorf("relay: pipe listener closed")
	}
	return c, nil
}

func (l *pipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.conns)
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr{} }

func (l *pipeListener) dial(context.Context, string) (net.Conn, error) {
	client, server := net.Pipe()
	l.conns <- server
	return client, nil
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// newLoopbackRelayPair starts two in-process relays connected by a real
// grpc.Server/grpc.ClientConn pair over net.Pipe, each with its own
// Manager and in-process object store.
func newLoopbackRelayPair(t *testing.T) (writer *Relay, reader *Relay, cleanup func()) {
	t.Helper()

	readerManager := mutablechannel.NewManager()
	readerRelay := &Relay{
		manager:   readerManager,
		store:     memStore{},
		crossNode: make(map[mutablechannel.ObjectID]remoteInfo),
	}

	srv := grpc.NewServer()
	RegisterHandler(srv, readerRelay)

	lis := newPipeListener()
	go srv.Serve(lis)

	cc, err := grpc.NewClient("passthrough:///pipe",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(lis.dial),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}

	writerManager := mutablechannel.NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	client := NewPeerClient(cc)
	writerRelay := New(ctx, writerManager, memStore{}, func(context.Context, string) (*peerClient, error) {
		return client, nil
	})

	return writerRelay, readerRelay, func() {
		writerRelay.Close()
		cc.Close()
		srv.Stop()
		cancel()
	}
}

// memStore is an ObjectStore that hands out a fresh in-process region the
// first time an ID is requested and the same one thereafter, letting both
// sides of a loopback test share regions by ID without real shared memory.
type memStore struct{}

var sharedRegions sync.Map // ObjectID -> mutablechannel.Region

func (memStore) GetMutableObject(id mutablechannel.ObjectID) (mutablechannel.Region, error) {
	if r, ok := sharedRegions.Load(id); ok {
		return r.(mutablechannel.Region), nil
	}
	r := mutablechannel.NewMemRegion(id.String(), 256)
	sharedRegions.Store(id, r)
	return r, nil
}

func TestRelayEquivalence(t *testing.T) {
	writer, _, cleanup := newLoopbackRelayPair(t)
	defer cleanup()

	var localID, shadowID mutablechannel.ObjectID
	localID[0] = 0xAA
	shadowID[0] = 0xBB

	// numReaders 0 for the shadow channel: nothing in this test reads it
	// back through the Manager, so its WriteAcquire must never block
	// waiting for a reader that will never arrive.
	if err := writer.RegisterWriterChannel(localID, "peer-0", shadowID, 0); err != nil {
		t.Fatalf("RegisterWriterChannel: %v", err)
	}
	// RegisterWriterChannel only registers the relay's own reader role on
	// the local channel (it is the one reading versions to forward them);
	// the producing application still registers the writer role itself.
	region, err := writer.store.GetMutableObject(localID)
	if err != nil {
		t.Fatalf("GetMutableObject(localID): %v", err)
	}
	if _, err := writer.manager.RegisterChannel(context.Background(), localID, region, false); err != nil {
		t.Fatalf("RegisterChannel writer role: %v", err)
	}

	for v := byte(1); v <= 3; v++ {
		buf, err := writer.manager.WriteAcquire(context.Background(), localID, 4, []byte("m"), 1, 1)
		if err != nil {
			t.Fatalf("WriteAcquire v%d: %v", v, err)
		}
		copy(buf, []byte{v, v, v, v})
		if err := writer.manager.WriteRelease(context.Background(), localID); err != nil {
			t.Fatalf("WriteRelease v%d: %v", v, err)
		}

		if !waitForShadowVersion(shadowID, int64(v)) {
			t.Fatalf("shadow channel did not observe version %d within deadline", v)
		}
	}
}

func waitForShadowVersion(id mutablechannel.ObjectID, version int64) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := sharedRegions.Load(id)
		if ok && r.(mutablechannel.Region).Header().Version() >= version {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
