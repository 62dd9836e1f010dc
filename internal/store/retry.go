package store

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"secretari/internal/errors"
)

// RetryConfig bounds the retries of a Retrying store.
type RetryConfig struct {
	// CallTimeout caps every single attempt. Zero disables the per-call deadline.
	CallTimeout time.Duration
	MaxRetries  uint64
	Base        time.Duration
}

// Retrying retries calls that fail with errors.ErrStorageUnavailable using
// exponential backoff. Other errors and NotFound results pass straight through.
type Retrying struct {
	next Store
	cfg  RetryConfig
}

var _ Store = (*Retrying)(nil)

// NewRetrying wraps next.
func NewRetrying(next Store, cfg RetryConfig) *Retrying {
	if cfg.Base <= 0 {
		cfg.Base = 100 * time.Millisecond
	}
	return &Retrying{next: next, cfg: cfg}
}

func do[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	b := retry.WithMaxRetries(cfg.MaxRetries, retry.NewExponential(cfg.Base))
	return retry.DoValue(ctx, b, func(ctx context.Context) (T, error) {
		callCtx := ctx
		if cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
			defer cancel()
		}
		v, err := fn(callCtx)
		if errors.Is(err, errors.ErrStorageUnavailable) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}

func (r *Retrying) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := do(ctx, r.cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *Retrying) Login(ctx context.Context, appKey string) (string, error) {
	return do(ctx, r.cfg, func(ctx context.Context) (string, error) {
		return r.next.Login(ctx, appKey)
	})
}

func (r *Retrying) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	return do(ctx, r.cfg, func(ctx context.Context) (string, error) {
		return r.next.Create(ctx, spec)
	})
}

func (r *Retrying) Get(ctx context.Context, id string) (Result, error) {
	return do(ctx, r.cfg, func(ctx context.Context) (Result, error) {
		return r.next.Get(ctx, id)
	})
}

func (r *Retrying) Put(ctx context.Context, id string, data []byte) error {
	return r.exec(ctx, func(ctx context.Context) error {
		return r.next.Put(ctx, id, data)
	})
}

func (r *Retrying) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, func(ctx context.Context) error {
		return r.next.Delete(ctx, id)
	})
}

func (r *Retrying) AddRef(ctx context.Context, parentID, childID string) error {
	return r.exec(ctx, func(ctx context.Context) error {
		return r.next.AddRef(ctx, parentID, childID)
	})
}

func (r *Retrying) RemoveRef(ctx context.Context, parentID, childID string) error {
	return r.exec(ctx, func(ctx context.Context) error {
		return r.next.RemoveRef(ctx, parentID, childID)
	})
}

func (r *Retrying) Refs(ctx context.Context, parentID string) ([]string, error) {
	return do(ctx, r.cfg, func(ctx context.Context) ([]string, error) {
		return r.next.Refs(ctx, parentID)
	})
}

func (r *Retrying) Resolve(ctx context.Context, name string) (string, bool, error) {
	type resolved struct {
		id    string
		found bool
	}
	res, err := do(ctx, r.cfg, func(ctx context.Context) (resolved, error) {
		id, found, err := r.next.Resolve(ctx, name)
		return resolved{id, found}, err
	})
	return res.id, res.found, err
}

func (r *Retrying) Bind(ctx context.Context, name, id string) (bool, error) {
	return do(ctx, r.cfg, func(ctx context.Context) (bool, error) {
		return r.next.Bind(ctx, name, id)
	})
}

func (r *Retrying) Rebind(ctx context.Context, name, id string) error {
	return r.exec(ctx, func(ctx context.Context) error {
		return r.next.Rebind(ctx, name, id)
	})
}

func (r *Retrying) Unbind(ctx context.Context, name string) error {
	return r.exec(ctx, func(ctx context.Context) error {
		return r.next.Unbind(ctx, name)
	})
}

func (r *Retrying) Names(ctx context.Context) (map[string]string, error) {
	return do(ctx, r.cfg, func(ctx context.Context) (map[string]string, error) {
		return r.next.Names(ctx)
	})
}
