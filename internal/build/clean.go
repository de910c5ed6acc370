package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/goplus/cbt/internal/sources"
	"github.com/goplus/cbt/pkgs/config"
)

// ErrUnsafeClean is returned when a build dir contains the project root.
var ErrUnsafeClean = errors.New("build dir contains the project root")

// Clean removes what the stages built: the executable recorded in each
// manifest when it lives outside the build dir, then the build dir itself.
// Stages that were never built are skipped.
func (b *Builder) Clean(stages []config.Stage) error {
	for i := range stages {
		stage := &stages[i]
		buildDir := sources.BuildDir(b.root, stage)
		if within(b.root, buildDir) {
			return fmt.Errorf("failed to clean stage %s: %w: %s", stage.Name, ErrUnsafeClean, buildDir)
		}
		if _, err := os.Stat(buildDir); os.IsNotExist(err) {
			log.Debugf("stage %s: %s does not exist", stage.Name, buildDir)
			continue
		}
		if m, err := LoadManifest(buildDir); err == nil && m.Executable != "" && !within(m.Executable, buildDir) {
			if err := os.Remove(m.Executable); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to clean stage %s: %w", stage.Name, err)
			}
		}
		if err := os.RemoveAll(buildDir); err != nil {
			return fmt.Errorf("failed to clean stage %s: %w", stage.Name, err)
		}
		fmt.Fprintln(b.out, b.style.Message("Removed"), buildDir)
	}
	return nil
}

// within reports whether p is dir or lies below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
