package service

import (
	"context"
	"educube_backend/pkg/logger"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyLocker 按业务键串行化读-改-写，返回的函数用于释放锁
type KeyLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type localKeyLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 进程内的按键互斥锁，单实例部署或未启用 Redis 时使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localKeyLock
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localKeyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[key]
	if !ok {
		k = &localKeyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.ch
			l.release(key, k)
		})
	}, nil
}

func (l *LocalLocker) release(key string, k *localKeyLock) {
	l.mu.Lock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// keepAlive 持锁期间按 interval 续期，锁已被他人持有时停止；返回的函数停止续期并等待退出
func keepAlive(interval time.Duration, refresh func(ctx context.Context) (bool, error)) func() {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			held, err := refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Log.Warn("refresh lock failed", zap.Error(err))
				continue
			}
			if !held {
				logger.Log.Warn("lock lost before release")
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// RedisLocker 基于 SET NX 的分布式锁，多实例部署时使用，持锁期间自动续期
type RedisLocker struct {
	Redis         *redis.Client
	TTL           time.Duration
	RetryInterval time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		Redis:         rdb,
		TTL:           10 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.New().String()

	for {
		ok, err := l.Redis.SetNX(ctx, lockKey, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.RetryInterval):
		}
	}

	stop := keepAlive(l.TTL/3, func(ctx context.Context) (bool, error) {
		n, err := refreshScript.Run(ctx, l.Redis, []string{lockKey}, token, l.TTL.Milliseconds()).Int()
		return n == 1, err
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			// 只删除自己持有的锁
			unlockScript.Run(context.Background(), l.Redis, []string{lockKey}, token)
		})
	}, nil
}
