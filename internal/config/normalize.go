package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// applyEnv overrides file values with TOVOR_* environment variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"TOVOR_ADDR":            &c.Server.Addr,
		"TOVOR_DATA_DIR":        &c.Server.DataDir,
		"TOVOR_DB_PATH":         &c.Server.DBPath,
		"TOVOR_LOG_PATH":        &c.Server.LogPath,
		"TOVOR_REDIS_ADDR":      &c.Redis.Addr,
		"TOVOR_REDIS_PASSWORD":  &c.Redis.Password,
		"TOVOR_ARCHIVE_BACKEND": &c.Archive.Backend,
		"TOVOR_S3_ENDPOINT":     &c.Archive.Endpoint,
		"TOVOR_S3_BUCKET":       &c.Archive.Bucket,
		"TOVOR_S3_ACCESS_KEY":   &c.Archive.AccessKey,
		"TOVOR_S3_SECRET_KEY":   &c.Archive.SecretKey,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv("TOVOR_ADMIN_IDS"); ok {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("TOVOR_ADMIN_IDS: %w", err)
		}
		c.Auth.AdminIDs = ids
	}
	return nil
}

// parseIDs parses a comma-separated list of user IDs.
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// normalize fills derived values and cleans up paths.
func (c *Config) normalize() {
	c.Server.DataDir = filepath.Clean(c.Server.DataDir)
	if c.Server.DBPath == "" {
		c.Server.DBPath = filepath.Join(c.Server.DataDir, "tovor.db")
	}
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	c.Document.AccentColor = strings.ToUpper(c.Document.AccentColor)
	c.Document.HeaderColor = strings.ToUpper(c.Document.HeaderColor)
}
