package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Backend names returned by Config.Backend.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	DatabaseURL string // CHARTERS_DATABASE_URL (required)
	GRPCAddr    string // CHARTERS_GRPC_ADDR (default ":9090")
	HTTPAddr    string // CHARTERS_HTTP_ADDR (default ":8080")
	NATSURL     string // CHARTERS_NATS_URL (optional, empty = no events)
	AuthToken   string // CHARTERS_AUTH_TOKEN (optional, empty = auth disabled)
	SchemaFile  string // CHARTERS_SCHEMA_FILE (optional .cue override of the built-in schema)

	UpdateTimeout  time.Duration // CHARTERS_UPDATE_TIMEOUT (default 15s; 0 = caller's context only)
	PresenceWindow time.Duration // CHARTERS_PRESENCE_WINDOW (default 10m)

	// Sync settings
	SyncInterval   time.Duration // CHARTERS_SYNC_INTERVAL (default 5m; 0 = disabled)
	SyncS3Bucket   string        // CHARTERS_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // CHARTERS_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // CHARTERS_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // CHARTERS_SYNC_S3_KEY (default "charters/ledger.jsonl")
	SyncGitRepo    string        // CHARTERS_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // CHARTERS_SYNC_GIT_FILE (default "charters.jsonl")
	SyncGitBranch  string        // CHARTERS_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("CHARTERS_DATABASE_URL"),
		GRPCAddr:       envOrDefault("CHARTERS_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("CHARTERS_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("CHARTERS_NATS_URL"),
		AuthToken:      os.Getenv("CHARTERS_AUTH_TOKEN"),
		SchemaFile:     os.Getenv("CHARTERS_SCHEMA_FILE"),
		SyncS3Bucket:   os.Getenv("CHARTERS_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("CHARTERS_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("CHARTERS_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("CHARTERS_SYNC_S3_KEY", "charters/ledger.jsonl"),
		SyncGitRepo:    os.Getenv("CHARTERS_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("CHARTERS_SYNC_GIT_FILE", "charters.jsonl"),
		SyncGitBranch:  envOrDefault("CHARTERS_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("CHARTERS_DATABASE_URL is required")
	}
	if _, _, err := c.Backend(); err != nil {
		return nil, err
	}

	for _, d := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"CHARTERS_UPDATE_TIMEOUT", "15s", &c.UpdateTimeout},
		{"CHARTERS_PRESENCE_WINDOW", "10m", &c.PresenceWindow},
		{"CHARTERS_SYNC_INTERVAL", "5m", &c.SyncInterval},
	} {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = v
	}

	return c, nil
}

// Backend picks the store implementation from DatabaseURL. postgres:// and
// postgresql:// URLs go to Postgres unchanged; sqlite://path and file: URLs
// go to SQLite, with the sqlite:// scheme stripped.
func (c *Config) Backend() (backend, dsn string, err error) {
	u := c.DatabaseURL
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return BackendPostgres, u, nil
	case strings.HasPrefix(u, "sqlite://"):
		path := strings.TrimPrefix(u, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("CHARTERS_DATABASE_URL: sqlite:// needs a path")
		}
		return BackendSQLite, path, nil
	case strings.HasPrefix(u, "file:"):
		return BackendSQLite, u, nil
	}
	return "", "", fmt.Errorf("CHARTERS_DATABASE_URL: unsupported scheme in %q", u)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
