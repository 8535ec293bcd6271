package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/tovor/internal/archive"
	"github.com/erazemk/tovor/internal/config"
	"github.com/erazemk/tovor/internal/db"
	"github.com/erazemk/tovor/internal/lock"
	"github.com/erazemk/tovor/internal/sheet"
)

// app holds what every subcommand needs: the loaded config and an open,
// migrated database.
type app struct {
	cfg *config.Config
	db  *sql.DB
}

func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	database, err := db.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, err
	}
	return &app{cfg: cfg, db: database}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// archive opens the configured archive backend.
func (a *app) archive(ctx context.Context) (archive.Archive, error) {
	if a.cfg.Archive.Backend != "s3" {
		return archive.NewLocal(a.cfg.ArchiveDir())
	}

	c := a.cfg.Archive
	s3, err := archive.NewS3(archive.S3Config{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		Region:    c.Region,
		UseSSL:    c.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

// locker returns a Redis-backed locker when Redis is configured and an
// in-process one otherwise. The returned func closes the Redis client.
func (a *app) locker(ctx context.Context) (lock.Locker, func(), error) {
	r := a.cfg.Redis
	if r.Addr == "" {
		return lock.NewLocal(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", r.Addr, err)
	}
	return lock.NewRedis(rdb, time.Duration(r.LockTTLSeconds)*time.Second), func() { rdb.Close() }, nil
}

func (a *app) layout() sheet.Layout {
	d := a.cfg.Document
	return sheet.Layout{
		Title:        d.Title,
		Subtitle:     d.Subtitle,
		AccentColor:  d.AccentColor,
		HeaderColor:  d.HeaderColor,
		ThumbnailMax: d.ThumbnailMax,
	}
}
