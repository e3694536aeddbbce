// Copyright 2025 James Ross
// Package redisclient builds the shared go-redis client used by the
// Broker and the BackendSession reconnect policy.
package redisclient

import (
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osmo-project/control-plane/internal/config"
)

// New returns a configured go-redis v9 client with pooling and retries.
func New(cfg config.Redis) *redis.Client {
	poolSize := cfg.PoolSizeMultiplier * runtime.NumCPU()
	if poolSize <= 0 {
		poolSize = 10 * runtime.NumCPU()
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		ConnMaxIdleTime: 5 * time.Minute,
	})
}
