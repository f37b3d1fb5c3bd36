package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors for persistence operations.
var (
	ErrInvalidConfig = errors.New("invalid storage configuration")
	ErrInvalidDriver = errors.New("invalid storage driver")
	ErrCorruptState  = errors.New("persisted session state is corrupt")
)

// KV is the durable key/value storage the adapter writes through.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Driver names a KV implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverFile   Driver = "file"
	DriverRedis  Driver = "redis"
)

// Options configures NewKV.
type Options struct {
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	DialTimeout   time.Duration
}

// NewKV creates the KV for the given driver.
func NewKV(ctx context.Context, driver Driver, opts Options) (KV, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryKV(), nil

	case DriverFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("%w: file driver requires a directory", ErrInvalidConfig)
		}
		return NewFileKV(opts.Dir)

	case DriverRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("%w: redis driver requires an address", ErrInvalidConfig)
		}
		timeout := opts.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client := redis.NewClient(&redis.Options{
			Addr:        opts.RedisAddr,
			Password:    opts.RedisPassword,
			DB:          opts.RedisDB,
			DialTimeout: timeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.RedisAddr, err)
		}
		return NewRedisKV(client, opts.RedisPrefix), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
	}
}
