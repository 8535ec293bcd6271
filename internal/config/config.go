// Package config loads tovor's TOML configuration, applies .env and
// environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "tovor.toml"

// Server contains listener and on-disk locations.
type Server struct {
	Addr    string `toml:"addr" validate:"required"`
	DataDir string `toml:"data_dir" validate:"required"`
	DBPath  string `toml:"db_path" validate:"required"`
	LogPath string `toml:"log_path"`
}

// Document contains the look of generated documents.
type Document struct {
	Title        string `toml:"title" validate:"required"`
	Subtitle     string `toml:"subtitle"`
	AccentColor  string `toml:"accent_color" validate:"hexcolor,len=7"`
	HeaderColor  string `toml:"header_color" validate:"hexcolor,len=7"`
	ThumbnailMax int    `toml:"thumbnail_max" validate:"min=16,max=1000"`
}

// Auth lists the chat users that are always admitted and may issue invites.
type Auth struct {
	AdminIDs []int64 `toml:"admin_ids" validate:"dive,ne=0"`
}

// Redis enables cross-process per-user locking when Addr is set.
type Redis struct {
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db" validate:"min=0"`
	LockTTLSeconds int    `toml:"lock_ttl_seconds" validate:"min=1"`
}

// Archive selects where finished documents are stored.
type Archive struct {
	Backend   string `toml:"backend" validate:"oneof=local s3"`
	Endpoint  string `toml:"s3_endpoint" validate:"required_if=Backend s3"`
	Bucket    string `toml:"s3_bucket" validate:"required_if=Backend s3"`
	AccessKey string `toml:"s3_access_key"`
	SecretKey string `toml:"s3_secret_key"`
	Region    string `toml:"s3_region"`
	UseSSL    bool   `toml:"s3_use_ssl"`
}

// Config is the full tovor configuration.
type Config struct {
	Server   Server   `toml:"server"`
	Document Document `toml:"document"`
	Auth     Auth     `toml:"auth"`
	Redis    Redis    `toml:"redis"`
	Archive  Archive  `toml:"archive"`
}

// Load reads the config file at path (or DefaultConfigFile when path is
// empty and the file exists), then applies .env and TOVOR_* overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MediaDir is where inbound attachments are stored.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Server.DataDir, "media")
}

// ArchiveDir is where the local archive backend stores documents.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.Server.DataDir, "archive")
}

// LockPath is the file locked by a running server.
func (c *Config) LockPath() string {
	return filepath.Join(c.Server.DataDir, "tovor.lock")
}
