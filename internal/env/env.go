package env

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/goplus/cbt/pkgs/config"
)

// ConfigEnv names the environment variable consulted when no --config flag is given.
const ConfigEnv = "CBT_CONFIG"

// Version is the cbt release, overridable with
// -ldflags "-X github.com/goplus/cbt/internal/env.Version=v1.2.3".
var Version = "v0.1.0"

// BuildVersion returns Version, or the module version when cbt was
// installed with "go install" at a tagged release.
func BuildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return Version
}

// ConfigPath picks the config file: flag, then $CBT_CONFIG, then cbt.toml
// in the working directory.
func ConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return config.DefaultFile
}

// ProjectRoot canonicalizes configPath and returns it together with its
// directory, against which the config's relative paths are resolved.
func ProjectRoot(configPath string) (file, root string, err error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", "", fmt.Errorf("could not canonicalize config path %s: %w", configPath, err)
	}
	file, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", fmt.Errorf("could not canonicalize config path %s: %w", configPath, err)
	}
	return file, filepath.Dir(file), nil
}
