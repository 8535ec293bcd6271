// Package lock serializes work per user, either within one process or
// across processes sharing a Redis server.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the lock could not be taken before the
// context ended.
var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out exclusive per-user locks. The returned func releases the
// lock and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, userID int64) (func(), error)
}

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty keyed mutex.
func NewLocal() *Local {
	return &Local{locks: make(map[int64]*entry)}
}

// Lock blocks until the user's lock is free or ctx ends.
func (l *Local) Lock(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[userID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(userID, e)
		return nil, fmt.Errorf("%w: %v", ErrNotObtained, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(userID, e)
		})
	}, nil
}

// drop forgets the entry once nobody holds or waits for it.
func (l *Local) drop(userID int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, userID)
	}
}

// Redis locks through a shared Redis server so several processes can serve
// the same users.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedis returns a locker over rdb. Locks expire after ttl if the holder
// dies without releasing them.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl}
}

// Lock retries until the user's lock is obtained or ctx ends. The lock is
// refreshed in the background until released, so a handler may run longer
// than the TTL.
func (r *Redis) Lock(ctx context.Context, userID int64) (func(), error) {
	key := "tovor:user:" + strconv.FormatInt(userID, 10)
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtaining lock: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go keepAlive(l, r.ttl, userID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may be done by now.
			if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				slog.Warn("failed to release lock", "user", userID, "error", err)
			}
		})
	}, nil
}

type refresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepAlive extends l to a full ttl every third of ttl until stop is closed
// or a refresh fails. done is closed on return.
func keepAlive(l refresher, ttl time.Duration, userID int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			err := l.Refresh(ctx, ttl, nil)
			cancel()
			if err != nil {
				slog.Error("lost user lock", "user", userID, "error", err)
				return
			}
		}
	}
}
