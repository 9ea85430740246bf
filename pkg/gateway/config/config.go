// Package config loads the gateway configuration from an optional yaml file
// and AGENTGATE_* environment variables.
package config

import (
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
	"github.com/agentgate-dev/agentgate/pkg/gateway/workspace"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Store     StoreConfig     `mapstructure:"store"`
	LogLevel  int             `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RuntimeConfig holds agent runtime settings. Env entries are added to the
// runtime subprocess environment on every turn.
type RuntimeConfig struct {
	Binary   string            `mapstructure:"binary"`
	Model    string            `mapstructure:"model"`
	MaxTurns int               `mapstructure:"max_turns"`
	Env      map[string]string `mapstructure:"env"`
}

// WorkspaceConfig selects and parameterizes the isolation strategy.
type WorkspaceConfig struct {
	Strategy       string `mapstructure:"strategy"`
	BasePath       string `mapstructure:"base_path"`
	ContainerImage string `mapstructure:"container_image"`
	ServicePort    int    `mapstructure:"service_port"`
	RemoteEndpoint string `mapstructure:"remote_endpoint"`
	TokenPath      string `mapstructure:"token_path"`
}

// StoreConfig holds transcript store settings.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	QueueSize int    `mapstructure:"queue_size"`
}

// Load reads configuration from the given file (optional) plus environment
// variables, applies defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("runtime.binary", "claude")
	v.SetDefault("workspace.strategy", workspace.StrategyLocal)
	v.SetDefault("workspace.base_path", workspace.DefaultBasePath)
	v.SetDefault("workspace.service_port", workspace.DefaultServicePort)
	v.SetDefault("store.path", "agentgate.db")
	v.SetDefault("store.queue_size", 256)

	// AutomaticEnv only resolves keys viper already knows about, so keys
	// without a default must be bound explicitly or their env values are
	// silently dropped.
	for _, key := range []string{
		"runtime.model",
		"runtime.max_turns",
		"workspace.container_image",
		"workspace.remote_endpoint",
		"workspace.token_path",
		"log_level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
				"failed to bind environment key "+key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
				"failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"failed to parse configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks strategy-specific requirements. Failures here are fatal at
// construction time.
func (c *Config) Validate() error {
	switch c.Workspace.Strategy {
	case workspace.StrategyLocal:
	case workspace.StrategyContainer:
		if c.Workspace.ContainerImage == "" {
			return apperrors.New(apperrors.ErrCodeConfigInvalid,
				"workspace.container_image is required for the container strategy", nil)
		}
	case workspace.StrategyRemote:
		if c.Workspace.RemoteEndpoint == "" {
			return apperrors.New(apperrors.ErrCodeConfigInvalid,
				"workspace.remote_endpoint is required for the remote strategy", nil)
		}
	default:
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			"unknown workspace strategy: "+c.Workspace.Strategy, nil)
	}

	if c.Runtime.Binary == "" {
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			"runtime.binary is required", nil)
	}
	return nil
}
