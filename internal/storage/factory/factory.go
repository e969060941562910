// Package factory builds storage backends from a type name and JSON config.
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mistware/files/internal/storage"
	"github.com/mistware/files/internal/storage/local"
	"github.com/mistware/files/internal/storage/remote"
	"github.com/mistware/files/internal/storage/smb"
)

// MemoryConfig configures the in-process "memory" backend.
type MemoryConfig struct {
	Name string `json:"name"`
	remote.Options
}

// NewBackend creates a Backend from a backend type string and JSON config.
func NewBackend(ctx context.Context, backendType string, config json.RawMessage) (storage.Backend, error) {
	switch backendType {
	case "local":
		return local.NewFromJSON(config)
	case "smb":
		return smb.NewFromJSON(config)
	case "s3":
		share, opts, err := remote.NewS3ShareFromJSON(ctx, config)
		if err != nil {
			return nil, err
		}
		return remote.New(ctx, share, opts)
	case "minio":
		share, opts, err := remote.NewMinioShareFromJSON(config)
		if err != nil {
			return nil, err
		}
		return remote.New(ctx, share, opts)
	case "memory":
		var cfg MemoryConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("parse memory config: %w", err)
			}
		}
		if cfg.Name == "" {
			cfg.Name = "default"
		}
		return remote.New(ctx, remote.NewMemoryShare(cfg.Name), cfg.Options)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}
