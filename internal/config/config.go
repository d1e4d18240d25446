// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Backend selects the storage wiring for the service.
const (
	BackendMemory   = "memory"
	BackendExternal = "external" // Redis inventory + MySQL carts/tickets
)

// Config holds configuration knobs for the HTTP server and storage backends.
type Config struct {
	HTTPAddr        string
	StorageBackend  string
	MySQLDSN        string
	MySQLMaxConns   int
	RedisAddr       string
	RedisPoolSize   int
	ShutdownTimeout time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		StorageBackend:  getenv("STORAGE_BACKEND", BackendMemory),
		MySQLDSN:        getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/checkout?parseTime=true"),
		MySQLMaxConns:   atoienv("MYSQL_MAX_CONNS", 50),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:   atoienv("REDIS_POOL_SIZE", 100),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 5),
	}
}
