// Package smb serves a Windows/Samba file share through the operating
// system's CIFS mount. The process never speaks SMB itself: the share is
// mounted beforehand and every operation is plain file I/O below the mount.
package smb

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mistware/files/internal/storage"
	"github.com/mistware/files/internal/storage/local"
)

// Config describes a mounted share. Only MountPath is used for I/O; Server,
// Username and Domain identify the share in errors and logs.
type Config struct {
	Server    string `json:"server"` // UNC path, //host/share
	Username  string `json:"username"`
	Domain    string `json:"domain"`
	MountPath string `json:"mount_path"`
}

// Backend is a local backend rooted at the share's mount point.
type Backend struct {
	*local.LocalBackend
	location string
}

var _ storage.Backend = (*Backend)(nil)

// New opens the share mounted at cfg.MountPath. Mount points are never
// created: a missing directory means the share is not mounted.
func New(cfg Config) (*Backend, error) {
	if cfg.MountPath == "" {
		return nil, fmt.Errorf("mount_path is required")
	}
	lb, err := local.New(local.Config{RootPath: cfg.MountPath})
	if err != nil {
		return nil, fmt.Errorf("share not mounted at %s: %w", cfg.MountPath, err)
	}
	return &Backend{LocalBackend: lb, location: location(cfg)}, nil
}

// NewFromJSON decodes a Config and opens the share.
func NewFromJSON(raw json.RawMessage) (*Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse smb config: %w", err)
	}
	return New(cfg)
}

func (b *Backend) Type() string { return "smb" }

// Location is the share's UNC path with the account, or the mount path when
// no server is configured.
func (b *Backend) Location() string { return b.location }

func location(cfg Config) string {
	if cfg.Server == "" {
		return cfg.MountPath
	}
	server := strings.ReplaceAll(cfg.Server, `\`, "/")
	switch {
	case cfg.Username != "" && cfg.Domain != "":
		return fmt.Sprintf("%s (%s\\%s)", server, cfg.Domain, cfg.Username)
	case cfg.Username != "":
		return fmt.Sprintf("%s (%s)", server, cfg.Username)
	}
	return server
}
