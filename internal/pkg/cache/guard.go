package cache

import "time"

// Guard is an atomic set-if-absent window keyed in Redis, shared across
// instances. Acquire reports whether this caller won the key.
type Guard interface {
	Acquire(key, value string, ttl time.Duration) (bool, error)
	Release(key string)
	Held(key string) bool
}

type redisGuard struct{}

// NewGuard returns the Redis-backed guard.
func NewGuard() Guard {
	return redisGuard{}
}

func (redisGuard) Acquire(key, value string, ttl time.Duration) (bool, error) {
	return SetNX(key, value, ttl)
}

func (redisGuard) Release(key string) {
	_ = Delete(key)
}

func (redisGuard) Held(key string) bool {
	_, err := Get(key)
	return err == nil
}
