package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Build directory layout:
//
//	buildDir/
//	  .cbt-cache.json          # manifest of the last successful build
//	  objects/                 # mirrors the source dir
//	    main.o
//	    arch/boot.asm.o
//	  <executable>.o           # linked relocatable object
//	  <executable>             # unless target_dir is used
const manifestFile = ".cbt-cache.json"

// Manifest records what the last successful build of a stage produced.
type Manifest struct {
	Stage      string    `json:"stage"`
	Objects    []string  `json:"objects"`
	Linked     string    `json:"linked,omitempty"`
	Executable string    `json:"executable,omitempty"`
	BuildTime  time.Time `json:"build_time"`
}

// ManifestPath returns the manifest location inside buildDir.
func ManifestPath(buildDir string) string {
	return filepath.Join(buildDir, manifestFile)
}

// LoadManifest reads the manifest of buildDir.
func LoadManifest(buildDir string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(buildDir))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func saveManifest(buildDir string, m *Manifest) error {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ManifestPath(buildDir), data, 0o644)
}
