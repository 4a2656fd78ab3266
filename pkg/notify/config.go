package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/stationauth/stationauth/pkg/observability"
)

// Config selects which registered services are enabled.
type Config struct {
	Version  string   `yaml:"version"`
	Services []string `yaml:"services"`
}

// DefaultConfig returns a config with no services enabled.
func DefaultConfig() *Config {
	return &Config{Version: "v1"}
}

// LoadConfig loads the service configuration from a file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse notify config: %w", err)
	}

	return &config, nil
}

// WatchConfig applies the config at path to the registry and reloads it
// whenever the file changes. Blocks until the context is cancelled, so
// run it in its own goroutine. A broken reload keeps the previous
// enabled set.
func WatchConfig(ctx context.Context, path string, registry *Registry, logger *observability.Logger) error {
	config, err := LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load notify config: %w", err)
	}
	registry.SetEnabled(config.Services)
	logger.WithField("services", config.Services).Info("notify services enabled")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			config, err := LoadConfig(path)
			if err != nil {
				logger.WithError(err).Warn("notify config reload failed, keeping previous set")
				continue
			}
			registry.SetEnabled(config.Services)
			logger.WithField("services", config.Services).Info("notify services reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("config watcher error")
		}
	}
}
