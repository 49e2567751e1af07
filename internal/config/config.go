/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package config holds the Running Configuration for the VOD edge proxy,
// assembled once at startup from environment variables and threaded
// through constructors rather than read as a package global.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// CacheMode identifies which cache backend composition is active.
type CacheMode string

// The cache modes supported by the Cache Manager (C6).
const (
	CacheModeMemory    CacheMode = "memory"
	CacheModeRedis     CacheMode = "redis"
	CacheModeCassandra CacheMode = "cassandra"
	CacheModeHybrid    CacheMode = "redis-cassandra"
)

// IsValid reports whether m is one of the known cache modes.
func (m CacheMode) IsValid() bool {
	switch m {
	case CacheModeMemory, CacheModeRedis, CacheModeCassandra, CacheModeHybrid:
		return true
	}
	return false
}

// Config is the root Running Configuration for the application.
type Config struct {
	Server    ServerConfig
	Origin    OriginConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	Capacity  CapacityConfig
}

// ServerConfig is a collection of general server configuration values.
type ServerConfig struct {
	// Port is the TCP port the HTTP listener binds to.
	Port string `env:"PORT" envDefault:"9090"`
	// Host is the interface address the HTTP listener binds to.
	Host string `env:"HOST"`
	// NodeEnv selects prod/dev behaviors (verbose errors, pretty logging).
	NodeEnv string `env:"NODE_ENV" envDefault:"production"`
	// LogLevel is the most granular level (debug, info, warn, error) to log.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// CDNBase is the first path segment under which objects are served.
	CDNBase string `env:"CDN_BASE" envDefault:"cdn"`
	// ProxyBase is the first path segment under which proxy admin routes live.
	ProxyBase string `env:"PROXY_BASE" envDefault:"trickster"`
}

// OriginConfig describes the upstream S3-compatible object store.
type OriginConfig struct {
	// Endpoint is the S3-compatible endpoint URL (e.g. MinIO).
	Endpoint string `env:"S3_ENDPOINT"`
	// AccessKeyID is the S3 access key.
	AccessKeyID string `env:"S3_ACCESS_KEY_ID"`
	// SecretAccessKey is the S3 secret key.
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	// Region is the S3 region to sign requests for.
	Region string `env:"S3_REGION" envDefault:"us-east-1"`
	// DefaultBucket is used when the request path carries no bucket segment.
	DefaultBucket string `env:"S3_BUCKET_NAME" envDefault:"default"`
	// ForcePathStyle selects path-style (vs. virtual-hosted) bucket addressing.
	ForcePathStyle bool `env:"S3_FORCE_PATH_STYLE" envDefault:"true"`
	// UseSSL selects https vs http when talking to Endpoint.
	UseSSL bool `env:"S3_USE_SSL" envDefault:"true"`
	// TimeoutSecs bounds how long a single origin request may run.
	TimeoutSecs int `env:"S3_REQUEST_TIMEOUT_SECS" envDefault:"30"`
}

// CacheConfig is the cache-wide configuration shared across backends.
type CacheConfig struct {
	// Mode selects which backend composition the Cache Manager constructs.
	Mode CacheMode `env:"CACHE_MODE" envDefault:"memory"`
	// TTLSecs is the default item lifetime applied when Set omits one.
	TTLSecs int `env:"CACHE_TTL" envDefault:"3600"`
	// CheckPeriodSecs is the Memory backend's lazy-TTL sweep interval.
	CheckPeriodSecs int `env:"CACHE_CHECK_PERIOD" envDefault:"60"`
	// MaxItems bounds the Memory backend's item count.
	MaxItems int `env:"CACHE_MAX_ITEMS" envDefault:"10000"`
	// MaxSizeBytes bounds the Memory backend's total payload bytes.
	MaxSizeBytes int64 `env:"CACHE_MAX_SIZE" envDefault:"536870912"`
	// StreamMaxBytes is S_MAX: the largest un-ranged object the fetch
	// pipeline will tee into the cache while streaming.
	StreamMaxBytes int64 `env:"CACHE_STREAM_MAX_BYTES" envDefault:"5242880"`
	// PlaylistMaxBytes bounds rewritten M3U8 bodies admitted to cache.
	PlaylistMaxBytes int64 `env:"CACHE_PLAYLIST_MAX_BYTES" envDefault:"1048576"`
}

// RedisConfig configures the L1 (fast key-value) backend.
type RedisConfig struct {
	Host             string `env:"REDIS_HOST" envDefault:"localhost"`
	Port             int    `env:"REDIS_PORT" envDefault:"6379"`
	Password         string `env:"REDIS_PASSWORD"`
	DB               int    `env:"REDIS_DB" envDefault:"0"`
	Prefix           string `env:"REDIS_PREFIX" envDefault:"vodedge:"`
	MaxRetries       int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	ConnectTimeoutMS int    `env:"REDIS_CONNECT_TIMEOUT_MS" envDefault:"2000"`
	CommandTimeoutMS int    `env:"REDIS_COMMAND_TIMEOUT_MS" envDefault:"500"`
	// MemoryThreshold is a fraction (0-1). When the server has no configured
	// maxmemory, GetCapacityInfo takes used memory divided by this value as
	// the ceiling; a non-positive value makes the ceiling equal used memory.
	MemoryThreshold float64 `env:"REDIS_MEMORY_THRESHOLD" envDefault:"0.85"`
}

// CassandraConfig configures the L2 (persistent wide-column) backend.
type CassandraConfig struct {
	Hosts             []string `env:"CASSANDRA_HOSTS" envSeparator:"," envDefault:"127.0.0.1"`
	Keyspace          string   `env:"CASSANDRA_KEYSPACE" envDefault:"vodedge"`
	Username          string   `env:"CASSANDRA_USERNAME"`
	Password          string   `env:"CASSANDRA_PASSWORD"`
	LocalDC           string   `env:"CASSANDRA_LOCAL_DC"`
	Consistency       string   `env:"CASSANDRA_CONSISTENCY" envDefault:"LOCAL_QUORUM"`
	ReplicationFactor int      `env:"CASSANDRA_REPLICATION_FACTOR" envDefault:"3"`
	Table             string   `env:"CASSANDRA_TABLE" envDefault:"cache_items"`
	ConnectTimeoutMS  int      `env:"CASSANDRA_CONNECT_TIMEOUT_MS" envDefault:"5000"`
	TimeoutMS         int      `env:"CASSANDRA_TIMEOUT_MS" envDefault:"2000"`
	// MaxFiles is the row-count ceiling the L2 backend divides its row count
	// by to report an approximate usedPercentage.
	MaxFiles int `env:"CASSANDRA_MAX_FILES" envDefault:"32"`
}

// CapacityConfig configures the periodic watchdog (C7).
type CapacityConfig struct {
	// PeriodSecs is how often the watchdog ticks.
	PeriodSecs int `env:"CAPACITY_CHECK_PERIOD_SECS" envDefault:"60"`
	// RedisThreshold is the L1 usedPercentage at which migration/eviction starts.
	RedisThreshold float64 `env:"REDIS_CAPACITY_THRESHOLD" envDefault:"85"`
	// CassandraThreshold is the L2 usedPercentage at which eviction starts.
	CassandraThreshold float64 `env:"CASSANDRA_CAPACITY_THRESHOLD" envDefault:"90"`
}

// Load assembles the Running Configuration from the process environment.
func Load() (*Config, error) {
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	c.Cache.Mode = CacheMode(strings.ToLower(string(c.Cache.Mode)))
	if !c.Cache.Mode.IsValid() {
		return fmt.Errorf("config: invalid CACHE_MODE %q", c.Cache.Mode)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("config: PORT must not be empty")
	}
	if c.Origin.DefaultBucket == "" {
		return fmt.Errorf("config: S3_BUCKET_NAME must not be empty")
	}
	return nil
}
