package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var DefaultHubURLs = []string{
	"https://snapchain-api.neynar.com",
	"https://hub-api.neynar.com",
	"https://hub.pinata.cloud",
}

type Config struct {
	HTTPAddr    string
	RoutePrefix string
	PostgresDSN string
	LogLevel    string
	LogFormat   string

	AuthMode          string
	AuthJWTSecret     string
	AuthJWKSURL       string
	AuthIssuer        string
	AuthAudience      string
	AuthClockSkewSecs int
	SupabaseURL       string
	SupabaseAnonKey   string

	NeynarAPIURL           string
	NeynarAPIKey           string
	ChannelCacheBackend    string
	ChannelCacheMaxEntries int
	ChannelCacheTTLSeconds int

	HubURLs          []string
	HubAPIKey        string
	HubTimeoutMS     int
	FarcasterNetwork string

	IdempotencyWaitMS   int
	IdempotencyTTLHours int
	AuditQueueSize      int

	SigningPolicyPath string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	neynarKey := os.Getenv("NEYNAR_API_KEY")
	return Config{
		HTTPAddr:               envDefault("HTTP_ADDR", ":8080"),
		RoutePrefix:            strings.TrimRight(os.Getenv("ROUTE_PREFIX"), "/"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFormat:              envDefault("LOG_FORMAT", "json"),
		AuthMode:               envDefault("AUTH_MODE", "jwt"),
		AuthJWTSecret:          os.Getenv("AUTH_JWT_SECRET"),
		AuthJWKSURL:            os.Getenv("AUTH_JWKS_URL"),
		AuthIssuer:             os.Getenv("AUTH_ISSUER"),
		AuthAudience:           envDefault("AUTH_AUDIENCE", "authenticated"),
		AuthClockSkewSecs:      envIntDefault("AUTH_CLOCK_SKEW_SECONDS", 30),
		SupabaseURL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:        os.Getenv("SUPABASE_ANON_KEY"),
		NeynarAPIURL:           strings.TrimRight(envDefault("NEYNAR_API_URL", "https://api.neynar.com"), "/"),
		NeynarAPIKey:           neynarKey,
		ChannelCacheBackend:    envDefault("CHANNEL_CACHE_BACKEND", "memory"),
		ChannelCacheMaxEntries: envIntDefault("CHANNEL_CACHE_MAX_ENTRIES", 1000),
		ChannelCacheTTLSeconds: envIntDefault("CHANNEL_CACHE_TTL_SECONDS", 3600),
		HubURLs:                envListDefault("HUB_URLS", DefaultHubURLs),
		HubAPIKey:              envDefault("HUB_API_KEY", neynarKey),
		HubTimeoutMS:           envIntDefault("HUB_TIMEOUT_MS", 10000),
		FarcasterNetwork:       envDefault("FARCASTER_NETWORK", "mainnet"),
		IdempotencyWaitMS:      envIntDefault("IDEMPOTENCY_WAIT_MS", 15000),
		IdempotencyTTLHours:    envIntDefault("IDEMPOTENCY_RETENTION_HOURS", 72),
		AuditQueueSize:         envIntDefault("AUDIT_QUEUE_SIZE", 1024),
		SigningPolicyPath:      os.Getenv("SIGNING_POLICY_PATH"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envListDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

func (c Config) HubTimeout() time.Duration {
	return time.Duration(c.HubTimeoutMS) * time.Millisecond
}

func (c Config) IdempotencyWait() time.Duration {
	return time.Duration(c.IdempotencyWaitMS) * time.Millisecond
}

func (c Config) IdempotencyRetention() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

func (c Config) ChannelCacheTTL() time.Duration {
	return time.Duration(c.ChannelCacheTTLSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
