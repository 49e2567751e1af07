package config

import (
	"time"

	"github.com/trickster-vod/edge/internal/cache"
)

// CacheBuildConfig translates the Running Configuration's env-tag structs
// (durations as plain ints, sized for easy env var overrides) into the
// cache package's construction structs (durations as time.Duration).
func (c *Config) CacheBuildConfig() cache.BuildConfig {
	ttl := time.Duration(c.Cache.TTLSecs) * time.Second
	return cache.BuildConfig{
		DefaultTTL: ttl,
		Memory: cache.MemoryConfig{
			MaxItems:     c.Cache.MaxItems,
			MaxSizeBytes: c.Cache.MaxSizeBytes,
			CheckPeriod:  time.Duration(c.Cache.CheckPeriodSecs) * time.Second,
			DefaultTTL:   ttl,
		},
		Redis: cache.RedisConfig{
			Host:            c.Redis.Host,
			Port:            c.Redis.Port,
			Password:        c.Redis.Password,
			DB:              c.Redis.DB,
			Prefix:          c.Redis.Prefix,
			MaxRetries:      c.Redis.MaxRetries,
			ConnectTimeout:  time.Duration(c.Redis.ConnectTimeoutMS) * time.Millisecond,
			CommandTimeout:  time.Duration(c.Redis.CommandTimeoutMS) * time.Millisecond,
			MemoryThreshold: c.Redis.MemoryThreshold,
			DefaultTTL:      ttl,
		},
		Cassandra: cache.CassandraConfig{
			Hosts:             c.Cassandra.Hosts,
			Keyspace:          c.Cassandra.Keyspace,
			Username:          c.Cassandra.Username,
			Password:          c.Cassandra.Password,
			LocalDC:           c.Cassandra.LocalDC,
			ReplicationFactor: c.Cassandra.ReplicationFactor,
			Table:             c.Cassandra.Table,
			ConnectTimeout:    time.Duration(c.Cassandra.ConnectTimeoutMS) * time.Millisecond,
			Timeout:           time.Duration(c.Cassandra.TimeoutMS) * time.Millisecond,
			DefaultTTL:        ttl,
			MaxFiles:          c.Cassandra.MaxFiles,
		},
	}
}
