package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker is a lease store. TryLock grants the lease on key to owner for ttl
// unless another owner holds it; Unlock only removes a lease still held by
// owner.
type Locker interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

const (
	DefaultTimeout      = 10 * time.Second
	DefaultTTL          = 60 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

type options struct {
	timeout      time.Duration
	ttl          time.Duration
	pollInterval time.Duration
}

// Option configures Acquire.
type Option func(*options)

// WithTimeout bounds how long Acquire waits for a held lease.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTTL sets the lease duration. A crashed holder loses the lease after ttl.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithPollInterval sets the delay between acquisition attempts.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// Guard is a held lease. Release it on every exit path.
type Guard struct {
	locker Locker
	key    string
	owner  string
	once   sync.Once
	err    error
}

// Key returns the locked key.
func (g *Guard) Key() string { return g.key }

// Release gives the lease back. Calling it more than once is a no-op that
// returns the first result.
func (g *Guard) Release(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		g.err = g.locker.Unlock(ctx, g.key, g.owner)
	})
	return g.err
}

// Acquire polls l until the lease on key is granted, the timeout elapses
// (ErrTimeout) or ctx is done. Every acquisition holds its own token derived
// from owner, so two acquisitions by the same owner exclude each other.
func Acquire(ctx context.Context, l Locker, key, owner string, opts ...Option) (*Guard, error) {
	if key == "" || owner == "" {
		return nil, ErrInvalidKey
	}

	o := options{
		timeout:      DefaultTimeout,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	token := owner + "#" + uuid.NewString()
	deadline := time.NewTimer(o.timeout)
	defer deadline.Stop()

	for {
		ok, err := l.TryLock(ctx, key, token, o.ttl)
		if err != nil {
			return nil, errors.Join(ErrBackend, err)
		}
		if ok {
			return &Guard{locker: l, key: key, owner: token}, nil
		}

		wait := time.NewTimer(o.pollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			wait.Stop()
			return nil, ErrTimeout
		case <-wait.C:
		}
	}
}
