package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creditstudio/CreditStudio/internal/metrics"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Locker forbids concurrent step execution on one chat. Lock fails fast with ErrChatBusy
// instead of queueing.
type Locker interface {
	Lock(ctx context.Context, chatID uint64) (unlock func(), err error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uint64]struct{}
}

// NewLocalLocker constructs a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[uint64]struct{})}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(_ context.Context, chatID uint64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[chatID]; busy {
		metrics.Get().LockAcquireTotal.WithLabelValues("local", "busy").Inc()
		return nil, fmt.Errorf("%w: chat %d", ErrChatBusy, chatID)
	}
	l.held[chatID] = struct{}{}
	metrics.Get().LockAcquireTotal.WithLabelValues("local", "ok").Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, chatID)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker is a redsync-backed Locker shared by every instance using the same redis.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker constructs a RedisLocker. expiry bounds how long a crashed holder blocks the chat.
func NewRedisLocker(client redis.UniversalClient, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 150 * time.Second
	}
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client)), expiry: expiry}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, chatID uint64) (func(), error) {
	mutex := l.rs.NewMutex(
		fmt.Sprintf("creditstudio:chat:%d:step", chatID),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)
	if errLock := mutex.LockContext(ctx); errLock != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !lockContended(errLock) {
			metrics.Get().LockAcquireTotal.WithLabelValues("redis", "error").Inc()
			return nil, fmt.Errorf("workflow: acquire chat %d lock: %w", chatID, errLock)
		}
		metrics.Get().LockAcquireTotal.WithLabelValues("redis", "busy").Inc()
		return nil, fmt.Errorf("%w: chat %d: %v", ErrChatBusy, chatID, errLock)
	}
	metrics.Get().LockAcquireTotal.WithLabelValues("redis", "ok").Inc()

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ok, errUnlock := mutex.UnlockContext(unlockCtx); !ok || errUnlock != nil {
			log.WithError(errUnlock).WithField("chat_id", chatID).Warn("workflow: release chat lock")
		}
	}, nil
}

// lockContended reports whether errLock means another holder owns the lock, as opposed to
// redis being unreachable.
func lockContended(errLock error) bool {
	var redisErr *redsync.RedisError
	if errors.As(errLock, &redisErr) {
		return false
	}
	var taken *redsync.ErrTaken
	var nodeTaken *redsync.ErrNodeTaken
	return errors.Is(errLock, redsync.ErrFailed) || errors.As(errLock, &taken) || errors.As(errLock, &nodeTaken)
}
