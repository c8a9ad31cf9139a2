package mutablechannel

// ManagerOption configures a Manager at construction time, following the
// functional-options pattern grpc-go itself uses for DialOption/
// ServerOption (and which the teacher's own shm_dialer.go follows for its
// DialOptions).
type ManagerOption func(*Manager)

// WithObjectStore lets RegisterObject resolve an ObjectID to a Region
// through store, instead of requiring callers to call the store and
// RegisterChannel separately.
func WithObjectStore(store ObjectStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}
