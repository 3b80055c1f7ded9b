package config

// Redis backs the distributed rate limiter and the showtime response cache.
// When the server cannot be reached at startup NewRedisClient returns nil
// and both features are switched off.

import (
    "context"
    "crypto/tls"
    "os"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings read from the environment.
type RedisConfig struct {
    Addr        string
    Password    string
    DB          int
    TLS         bool
    PingTimeout time.Duration
}

// LoadRedisConfig reads:
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand, used when host/port are not both set
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func LoadRedisConfig() RedisConfig {
    host := os.Getenv("REDIS_HOST")
    port := os.Getenv("REDIS_PORT")
    addr := os.Getenv("REDIS_ADDR")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    tlsEnv := os.Getenv("REDIS_TLS")
    return RedisConfig{
        Addr:        addr,
        Password:    os.Getenv("REDIS_PASSWORD"),
        DB:          envInt("REDIS_DB", 0),
        TLS:         strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
        PingTimeout: envDur("REDIS_PING_TIMEOUT", 2*time.Second),
    }
}

// NewRedisClient connects with cfg and pings the server.  The returned
// client is nil if the ping fails.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{InsecureSkipVerify: true}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    timeout := cfg.PingTimeout
    if timeout <= 0 {
        timeout = 2 * time.Second
    }
    ctx, cancel := context.WithTimeout(context.Background(), timeout)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
