package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // BUDGETS_DATABASE_URL (required)
	GRPCAddr    string // BUDGETS_GRPC_ADDR (default ":9090")
	HTTPAddr    string // BUDGETS_HTTP_ADDR (default ":8080")
	NATSURL     string // BUDGETS_NATS_URL (optional, empty = no events)
	AuthToken   string // BUDGETS_AUTH_TOKEN (optional, empty = auth disabled)

	// ThrottleCutBps is the default soft-throttle reduction in basis points.
	ThrottleCutBps int64 // BUDGETS_THROTTLE_CUT_BPS (default 5000)

	// Sync settings
	SyncInterval   time.Duration // BUDGETS_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // BUDGETS_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // BUDGETS_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // BUDGETS_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // BUDGETS_SYNC_S3_KEY (default "budgets/snapshot.jsonl")
	SyncS3Archive  string        // BUDGETS_SYNC_S3_ARCHIVE_PREFIX (keeps dated copies when set)
	SyncGitRepo    string        // BUDGETS_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // BUDGETS_SYNC_GIT_FILE (default "budgets.jsonl")
	SyncGitBranch  string        // BUDGETS_SYNC_GIT_BRANCH (default "main")
}

// Load reads the server configuration from the environment.
func Load() (*Config, error) {
	c, err := parse()
	if err != nil {
		return nil, err
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("BUDGETS_DATABASE_URL is required")
	}
	return c, nil
}

// LoadInMemory is Load for a server backed by the in-memory store, where
// BUDGETS_DATABASE_URL is ignored.
func LoadInMemory() (*Config, error) {
	return parse()
}

func parse() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("BUDGETS_DATABASE_URL"),
		GRPCAddr:       envOrDefault("BUDGETS_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("BUDGETS_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("BUDGETS_NATS_URL"),
		AuthToken:      os.Getenv("BUDGETS_AUTH_TOKEN"),
		SyncS3Bucket:   os.Getenv("BUDGETS_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("BUDGETS_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("BUDGETS_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("BUDGETS_SYNC_S3_KEY", "budgets/snapshot.jsonl"),
		SyncS3Archive:  os.Getenv("BUDGETS_SYNC_S3_ARCHIVE_PREFIX"),
		SyncGitRepo:    os.Getenv("BUDGETS_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("BUDGETS_SYNC_GIT_FILE", "budgets.jsonl"),
		SyncGitBranch:  envOrDefault("BUDGETS_SYNC_GIT_BRANCH", "main"),
	}
	intervalStr := envOrDefault("BUDGETS_SYNC_INTERVAL", "3m")
	d, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("BUDGETS_SYNC_INTERVAL: %w", err)
	}
	c.SyncInterval = d

	cut, err := strconv.ParseInt(envOrDefault("BUDGETS_THROTTLE_CUT_BPS", "5000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("BUDGETS_THROTTLE_CUT_BPS: %w", err)
	}
	if cut < 0 || cut > 10000 {
		return nil, fmt.Errorf("BUDGETS_THROTTLE_CUT_BPS must be within [0, 10000], got %d", cut)
	}
	c.ThrottleCutBps = cut

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
