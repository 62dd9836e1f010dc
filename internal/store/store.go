// Package store is the client side of the remote record store: opaque
// containers holding one JSON document each, parent/child references that keep
// containers alive, and a name index mapping usernames to container ids.
package store

import (
	"context"
	"fmt"

	"secretari/internal/errors"
)

// Container kinds.
const (
	KindApp  = "app"
	KindUser = "user"
)

// ContainerSpec describes a container to allocate.
type ContainerSpec struct {
	Kind  string
	Owner string
}

// Result is the outcome of a Get. Found is false when the container does not
// exist or holds no document; that case is never reported as an error.
type Result struct {
	Data  []byte
	Found bool
}

// Store is the remote key-value store. Every transport or server failure is
// returned wrapped in errors.ErrStorageUnavailable.
type Store interface {
	// Login performs the application handshake and returns the root container
	// for appKey, creating it on first use.
	Login(ctx context.Context, appKey string) (string, error)

	Create(ctx context.Context, spec ContainerSpec) (string, error)
	Get(ctx context.Context, id string) (Result, error)
	Put(ctx context.Context, id string, data []byte) error
	// Delete removes a container and its outgoing references. Deleting a
	// missing container is not an error.
	Delete(ctx context.Context, id string) error

	AddRef(ctx context.Context, parentID, childID string) error
	RemoveRef(ctx context.Context, parentID, childID string) error
	Refs(ctx context.Context, parentID string) ([]string, error)

	Resolve(ctx context.Context, name string) (id string, found bool, err error)
	// Bind associates name with id unless name is already bound. It reports
	// true when name ends up bound to id.
	Bind(ctx context.Context, name, id string) (bool, error)
	Rebind(ctx context.Context, name, id string) error
	Unbind(ctx context.Context, name string) error
	Names(ctx context.Context) (map[string]string, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", errors.ErrStorageUnavailable, op, err)
}
