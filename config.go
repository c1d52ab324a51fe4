package shmbridge

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/shm"
)

// Config represents a shm-bridge configuration file
type Config struct {
	Reader *ReaderSection `yaml:"reader,omitempty"`
	Writer *WriterSection `yaml:"writer,omitempty"`
}

// ReaderSection configures one Reader
type ReaderSection struct {
	Name      string           `yaml:"name"`
	Path      string           `yaml:"path"`
	Workers   int              `yaml:"workers"` // conversion bands (default: 16)
	Reconnect ReconnectSection `yaml:"reconnect"`
}

// ReconnectSection controls socket reconnection
type ReconnectSection struct {
	MaxRetries   int           `yaml:"max_retries"`   // 0 retries forever
	InitialDelay time.Duration `yaml:"initial_delay"` // e.g. "1s" (default: 1s)
	MaxDelay     time.Duration `yaml:"max_delay"`     // e.g. "30s" (default: 30s)
}

// WriterSection configures one Writer
type WriterSection struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// LoadConfig reads and validates a YAML configuration file from fs
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills defaults and checks every present section
func (c *Config) Validate() error {
	if c.Reader == nil && c.Writer == nil {
		return fmt.Errorf("%w: no reader or writer section", ErrInvalidConfig)
	}

	if r := c.Reader; r != nil {
		if r.Path == "" {
			return fmt.Errorf("%w: reader.path is required", ErrInvalidConfig)
		}
		if r.Workers < 0 {
			return fmt.Errorf("%w: reader.workers must be >= 0, got %d", ErrInvalidConfig, r.Workers)
		}
		if r.Workers == 0 {
			r.Workers = DefaultWorkers
		}

		def := shm.DefaultReconnectConfig()
		rc := &r.Reconnect
		if rc.MaxRetries < 0 {
			return fmt.Errorf("%w: reader.reconnect.max_retries must be >= 0, got %d", ErrInvalidConfig, rc.MaxRetries)
		}
		if rc.InitialDelay < 0 || rc.MaxDelay < 0 {
			return fmt.Errorf("%w: reader.reconnect delays must not be negative", ErrInvalidConfig)
		}
		if rc.InitialDelay == 0 {
			rc.InitialDelay = def.InitialDelay
		}
		if rc.MaxDelay == 0 {
			rc.MaxDelay = def.MaxDelay
		}
		if rc.MaxDelay < rc.InitialDelay {
			return fmt.Errorf("%w: reader.reconnect.max_delay (%s) < initial_delay (%s)",
				ErrInvalidConfig, rc.MaxDelay, rc.InitialDelay)
		}
	}

	if w := c.Writer; w != nil && w.Path == "" {
		return fmt.Errorf("%w: writer.path is required", ErrInvalidConfig)
	}

	return nil
}

// ReaderConfig converts the section into a ReaderConfig.
func (s *ReaderSection) ReaderConfig() ReaderConfig {
	return ReaderConfig{
		Name:    s.Name,
		Workers: s.Workers,
		Reconnect: ReconnectConfig{
			MaxRetries:   s.Reconnect.MaxRetries,
			InitialDelay: s.Reconnect.InitialDelay,
			MaxDelay:     s.Reconnect.MaxDelay,
		},
	}
}

// WriterConfig converts the section into a WriterConfig.
func (s *WriterSection) WriterConfig() WriterConfig {
	return WriterConfig{Name: s.Name, Path: s.Path}
}
