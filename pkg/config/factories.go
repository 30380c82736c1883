package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hoardfs/hoard/internal/logger"
	"github.com/hoardfs/hoard/pkg/cache"
	"github.com/hoardfs/hoard/pkg/content"
	contentFs "github.com/hoardfs/hoard/pkg/content/fs"
	contentMemory "github.com/hoardfs/hoard/pkg/content/memory"
	contentS3 "github.com/hoardfs/hoard/pkg/content/s3"
	"github.com/hoardfs/hoard/pkg/index"
	indexBadger "github.com/hoardfs/hoard/pkg/index/badger"
	indexFile "github.com/hoardfs/hoard/pkg/index/file"
)

// CreateContentStore builds the content store the configuration selects.
//
// The Type field picks the implementation; the matching map section is
// decoded into that backend's own configuration type.
func CreateContentStore(ctx context.Context, cfg *ContentConfig) (content.ContentStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		return contentMemory.NewMemoryContentStore(ctx)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	type FilesystemContentStoreOptions struct {
		Path string `mapstructure:"path"`
	}

	var storeOpts FilesystemContentStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}
	if storeOpts.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentFs.NewFSContentStore(ctx, storeOpts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}
	return store, nil
}

func createS3ContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	type S3ContentStoreOptions struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		UsePathStyle    bool   `mapstructure:"use_path_style"`
	}

	var storeOpts S3ContentStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}
	if storeOpts.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeOpts.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Region:          storeOpts.Region,
		Bucket:          storeOpts.Bucket,
		KeyPrefix:       storeOpts.KeyPrefix,
		Endpoint:        storeOpts.Endpoint,
		AccessKeyID:     storeOpts.AccessKeyID,
		SecretAccessKey: storeOpts.SecretAccessKey,
		UsePathStyle:    storeOpts.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeOpts.Bucket, storeOpts.Region, storeOpts.KeyPrefix)

	return store, nil
}

// CreateIndex builds the index the configuration selects.
func CreateIndex(ctx context.Context, cfg *IndexConfig) (index.Index, error) {
	switch cfg.Type {
	case "file":
		return createFileIndex(ctx, cfg.File)
	case "badger":
		return createBadgerIndex(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown index type: %q", cfg.Type)
	}
}

func createFileIndex(ctx context.Context, options map[string]any) (index.Index, error) {
	type FileIndexOptions struct {
		Path string `mapstructure:"path"`
	}

	var idxOpts FileIndexOptions
	if err := mapstructure.Decode(options, &idxOpts); err != nil {
		return nil, fmt.Errorf("failed to decode file index config: %w", err)
	}
	if idxOpts.Path == "" {
		return nil, fmt.Errorf("file index: path is required")
	}

	idx, err := indexFile.NewFileIndex(ctx, idxOpts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file index: %w", err)
	}
	return idx, nil
}

func createBadgerIndex(ctx context.Context, options map[string]any) (index.Index, error) {
	type BadgerIndexOptions struct {
		Path     string `mapstructure:"path"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var idxOpts BadgerIndexOptions
	if err := mapstructure.Decode(options, &idxOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger index config: %w", err)
	}

	idx, err := indexBadger.NewBadgerIndex(ctx, indexBadger.BadgerIndexConfig{
		Path:     idxOpts.Path,
		InMemory: idxOpts.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger index: %w", err)
	}
	return idx, nil
}

// CreateCache assembles a cache from the full configuration: one content
// store, one index, plus any facade options the caller adds (metrics).
func CreateCache(ctx context.Context, cfg *Config, opts ...cache.Option) (*cache.Cache, error) {
	store, err := CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		return nil, err
	}
	idx, err := CreateIndex(ctx, &cfg.Index)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cache.New(store, idx, opts...), nil
}
