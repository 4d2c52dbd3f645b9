// Package config loads the connection-tuning defaults consumed by the
// client facade and the example CLI: ping cadence, event channel capacity,
// and the default history lookback window. The core's own protocol and
// session logic takes no configuration (spec.md §6: "no CLI surface in the
// core"); this is purely the convenience layer around it.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the tunables a caller may want to override.
type Settings struct {
	PingInterval           time.Duration `yaml:"pingInterval"`
	EventChannelCapacity   int           `yaml:"eventChannelCapacity"`
	RequestChannelCapacity int           `yaml:"requestChannelCapacity"`
	HistoryLookback        time.Duration `yaml:"historyLookback"`
	DialTimeout            time.Duration `yaml:"dialTimeout"`
}

// Default returns the recommended defaults (spec.md §5: channel capacity
// >= 256, 30s ping cadence).
func Default() Settings {
	return Settings{
		PingInterval:           30 * time.Second,
		EventChannelCapacity:   256,
		RequestChannelCapacity: 256,
		HistoryLookback:        30 * 24 * time.Hour,
		DialTimeout:            10 * time.Second,
	}
}

// Load reads Settings from a YAML file at path, falling back to Default()
// values for any field the document omits.
func Load(path string) (Settings, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	reader, closer, err := openFile(path)
	if err != nil {
		return Settings{}, err
	}
	defer closer()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func openFile(path string) (io.Reader, func(), error) {
	safePath := filepath.Clean(path)
	file, err := os.Open(safePath) // #nosec G304 -- configuration paths are controlled by operators.
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
