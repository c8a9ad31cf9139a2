package mutablechannel

import (
	"context"
	"testing"
	"time"
)

func idFromByte(b byte) ObjectID {
	var id ObjectID
	id[0] = b
	return id
}

func TestManagerRoundTripThreeVersions(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	id := idFromByte(1)
	region := NewMemRegion("chan-1", 1024)

	if _, err := m.RegisterChannel(ctx, id, region, false); err != nil {
		t.Fatalf("RegisterChannel writer: %v", err)
	}
	if _, err := m.RegisterChannel(ctx, id, region, true); err != nil {
		t.Fatalf("RegisterChannel reader: %v", err)
	}

	payloads := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}
	for _, p := range payloads {
		buf, err := m.WriteAcquire(ctx, id, uint64(len(p)), []byte("m"), 1, 1)
		if err != nil {
			t.Fatalf("WriteAcquire: %v", err)
		}
		copy(buf, p)
		if err := m.WriteRelease(ctx, id); err != nil {
			t.Fatalf("WriteRelease: %v", err)
		}

		data, metadata, err := m.ReadAcquire(ctx, id)
		if err != nil {
			t.Fatalf("ReadAcquire: %v", err)
		}
		if string(data) != string(p) {
			t.Fatalf("ReadAcquire: got data %v, want %v", data, p)
		}
		if string(metadata) != "m" {
			t.Fatalf("ReadAcquire: got metadata %q, want %q", metadata, "m")
		}
		if err := m.ReadRelease(ctx, id); err != nil {
			t.Fatalf("ReadRelease: %v", err)
		}
	}
}

func TestManagerOversizedPayloadRejected(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	id := idFromByte(2)
	region := NewMemRegion("chan-2", 64)

	if _, err := m.RegisterChannel(ctx, id, region, false); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}

	if _, err := m.WriteAcquire(ctx, id, 50, nil, 20, 1); err == nil {
		t.Fatal("WriteAcquire with oversized payload: got nil error, want InvalidArgument")
	} else if code, _ := CodeOf(err); code != InvalidArgument {
		t.Fatalf("WriteAcquire with oversized payload: got code %v, want InvalidArgument", code)
	}

	if _, err := m.WriteAcquire(ctx, id, 30, nil, 20, 1); err != nil {
		t.Fatalf("WriteAcquire after rejecting oversized payload: %v", err)
	}
}

func TestManagerDoubleRoleRegistrationRejected(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	id := idFromByte(3)
	region := NewMemRegion("chan-3", 64)

	if _, err := m.RegisterChannel(ctx, id, region, true); err != nil {
		t.Fatalf("first reader registration: %v", err)
	}
	if _, err := m.RegisterChannel(ctx, id, region, true); err == nil {
		t.Fatal("second reader registration: got nil error, want Invalid")
	} else if code, _ := CodeOf(err); code != Invalid {
		t.Fatalf("second reader registration: got code %v, want Invalid", code)
	}

	if _, err := m.RegisterChannel(ctx, id, region, false); err != nil {
		t.Fatalf("writer registration after reader: %v", err)
	}
}

func TestManagerTeardownDuringBlockedRead(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	id := idFromByte(4)
	region := NewMemRegion("chan-4", 64)

	if _, err := m.RegisterChannel(ctx, id, region, true); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := m.ReadAcquire(ctx, id)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("ReadAcquire returned before Close, with no version ever published")
	case <-time.After(20 * time.Millisecond):
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if !IsIoError(err) {
			t.Fatalf("ReadAcquire after Close: got %v, want IoError", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadAcquire did not return within one second of Close")
	}
}

type fakeObjectStore struct {
	regions map[ObjectID]Region
}

func (s *fakeObjectStore) GetMutableObject(id ObjectID) (Region, error) {
	r, ok := s.regions[id]
	if !ok {
		return nil, newErr(NotFound, nil, "no object %s in fake store", id)
	}
	return r, nil
}

func TestManagerRegisterObjectUsesConfiguredStore(t *testing.T) {
	ctx := context.Background()
	id := idFromByte(6)
	store := &fakeObjectStore{regions: map[ObjectID]Region{id: NewMemRegion("chan-6", 64)}}
	m := NewManager(WithObjectStore(store))

	if _, err := m.RegisterObject(ctx, id, false); err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	if _, err := m.WriteAcquire(ctx, id, 4, nil, 0, 1); err != nil {
		t.Fatalf("WriteAcquire after RegisterObject: %v", err)
	}

	unknown := idFromByte(7)
	if _, err := m.RegisterObject(ctx, unknown, false); err == nil {
		t.Fatal("RegisterObject for an id the store doesn't have: got nil error, want NotFound")
	} else if code, _ := CodeOf(err); code != NotFound {
		t.Fatalf("RegisterObject for an unknown id: got code %v, want NotFound", code)
	}
}

func TestManagerRegisterObjectWithoutConfiguredStore(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	if _, err := m.RegisterObject(ctx, idFromByte(8), false); err == nil {
		t.Fatal("RegisterObject with no configured store: got nil error, want Invalid")
	} else if code, _ := CodeOf(err); code != Invalid {
		t.Fatalf("RegisterObject with no configured store: got code %v, want Invalid", code)
	}
}

func TestManagerSetErrorIdempotentWriteRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	id := idFromByte(5)
	region := NewMemRegion("chan-5", 64)

	if _, err := m.RegisterChannel(ctx, id, region, false); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	if err := m.SetError(id); err != nil {
		t.Fatalf("SetError: %v", err)
	}

	if err := m.WriteRelease(ctx, id); err == nil {
		t.Fatal("WriteRelease after SetError: got nil error, want an error")
	}

	if err := m.WriteRelease(ctx, id); err == nil {
		t.Fatal("second WriteRelease after SetError: got nil error, want an error")
	}
}
