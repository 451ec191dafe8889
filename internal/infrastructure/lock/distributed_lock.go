package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 按用户维度的余额操作锁
//
// 同一个用户的提现、购币等写操作必须串行，否则两次并发扣款可能把
// 余额扣成负数。不同用户之间完全并发，不存在全局锁。
//
// Redis 实现：SET key value NX EX，释放时用 Lua 脚本校验持有者再删除，
// 防止锁过期后误删他人的锁。账户上的版本号 CAS 是第二道防线，
// 锁丢失也不会产生资金错误，只会多一次重试。
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// Locker 按 key 串行化一段操作
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// BalanceKey 用户余额锁的 key
func BalanceKey(userID int64) string {
	return fmt.Sprintf("balance:lock:user:%d", userID)
}

// ============================================================
// Redis 分布式锁
// ============================================================

type redisLocker struct {
	client     *redis.Client
	expiration time.Duration
	retryWait  time.Duration
	maxRetries int
}

func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{
		client:     client,
		expiration: 30 * time.Second,
		retryWait:  100 * time.Millisecond,
		maxRetries: 30,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	value := fmt.Sprintf("%d", time.Now().UnixNano())

	acquired := false
	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, key, value, l.expiration).Result()
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryWait):
		}
	}
	if !acquired {
		return ErrLockFailed
	}

	defer func() {
		// Lua 保证"校验持有者+删除"的原子性
		script := `
			if redis.call("GET", KEYS[1]) == ARGV[1] then
				return redis.call("DEL", KEYS[1])
			else
				return 0
			end
		`
		l.client.Eval(context.Background(), script, []string{key}, value)
	}()

	return fn()
}

// ============================================================
// 进程内锁（测试用，语义与 Redis 锁一致）
// ============================================================

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn()
}
