package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"
)

var (
	ErrRead     = errors.New("failed to read config")
	ErrParse    = errors.New("failed to parse config")
	ErrNoStages = errors.New("no [[stage]] defined")
	ErrExists   = errors.New("config file already exists")
)

// Parse decodes a pipeline description. When data is nil the content is read
// from file; file is otherwise only used in error messages.
func Parse(file string, data []byte) (*Config, error) {
	if data == nil {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrRead, file, err)
		}
		data = b
	}

	var c Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w %s: %s", ErrParse, file, describe(err))
	}

	// go-toml cannot tell an absent key from its zero value.
	var set presence
	if err := toml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrParse, file, err)
	}
	c.applyDefaults(&set)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrParse, file, err)
	}
	return &c, nil
}

// Load reads and decodes the config at path.
func Load(path string) (*Config, error) {
	return Parse(path, nil)
}

func (c *Config) validate() error {
	if len(c.Stages) == 0 {
		return ErrNoStages
	}
	if c.MinVersion != "" && !semver.IsValid(c.MinVersion) {
		return fmt.Errorf("min_version %q is not a semantic version", c.MinVersion)
	}
	for _, s := range c.Stages {
		switch s.Build.Timestamps {
		case TimestampsModified, TimestampsCreated:
		default:
			return fmt.Errorf("stage %s: timestamps must be %q or %q, got %q",
				s.Name, TimestampsModified, TimestampsCreated, s.Build.Timestamps)
		}
	}
	return nil
}

// describe keeps the line/column context go-toml attaches to syntax errors.
func describe(err error) string {
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		row, col := derr.Position()
		return fmt.Sprintf("line %d, column %d: %s", row, col, derr.Error())
	}
	var serr *toml.StrictMissingError
	if errors.As(err, &serr) {
		keys := make([]string, 0, len(serr.Errors))
		for _, e := range serr.Errors {
			keys = append(keys, strings.Join(e.Key(), "."))
		}
		return "unknown keys: " + strings.Join(keys, ", ")
	}
	return err.Error()
}

// Marshal encodes c as TOML.
func Marshal(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes c to path. An existing file is only replaced when force is set.
func Write(path string, c *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	data, err := Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// VersionError reports a config that needs a newer cbt.
type VersionError struct {
	Required string
	Running  string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("config requires cbt %s or newer, running %s", e.Required, e.Running)
}

// CheckVersion verifies running satisfies c.MinVersion. Development builds,
// whose version is not valid semver, always pass.
func (c *Config) CheckVersion(running string) error {
	if c.MinVersion == "" || !semver.IsValid(running) {
		return nil
	}
	if semver.Compare(running, c.MinVersion) < 0 {
		return &VersionError{Required: c.MinVersion, Running: running}
	}
	return nil
}
