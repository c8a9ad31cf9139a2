package mutablechannel

import (
	"encoding/hex"
	"fmt"
)

// objectIDSize matches the fixed identifier width used throughout the
// surrounding runtime's object store.
const objectIDSize = 20

// ObjectID is an opaque, fixed-size, comparable identifier for a mutable
// object. Callers obtain one from the object store; the channel subsystem
// never constructs one on its own behalf except in tests.
type ObjectID [objectIDSize]byte

// String renders the ID as a lowercase hex string.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// ObjectIDFromBytes copies b into an ObjectID. b must be exactly
// objectIDSize bytes long.
func ObjectIDFromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != objectIDSize {
		return id, fmt.Errorf("mutablechannel: object id must be %d bytes, got %d", objectIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ObjectIDFromHex parses a hex-encoded object ID, as produced by String.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("mutablechannel: decode object id: %w", err)
	}
	return ObjectIDFromBytes(b)
}
