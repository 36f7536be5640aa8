package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Hostname     string `toml:"hostname"`
	Port         int    `toml:"port"`
	AllowOrigins string `toml:"allow_origins,omitempty"`
}

// MediaConfig selects and configures the blob store backend
type MediaConfig struct {
	// Type is one of "filesystem", "s3" or "memory"
	Type string `toml:"type"`

	// Filesystem backend
	Root    string `toml:"root,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`

	// S3 backend
	Bucket          string `toml:"bucket,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
	PublicBaseURL   string `toml:"public_base_url,omitempty"`
}

// UserConfig is one entry of the static identity table. Credential
// management proper lives outside the board; tokens here only map requests
// to an already-established identity.
type UserConfig struct {
	Token       string `toml:"token"`
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name,omitempty"`
	Email       string `toml:"email,omitempty"`
}

// Config represents the top-level configuration
type Config struct {
	Server   ServerConfig `toml:"server"`
	Database string       `toml:"database"`
	Media    MediaConfig  `toml:"media"`
	Users    []UserConfig `toml:"users"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if config.Database == "" {
		config.Database = "tavle.db"
	}
	if config.Media.Type == "" {
		config.Media.Type = "filesystem"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}

	return &config, nil
}
