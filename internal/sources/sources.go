// Package sources finds the translation units of a stage and prepares the
// object tree that mirrors them.
package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cbt/pkgs/buildsys"
	"github.com/goplus/cbt/pkgs/config"
)

var (
	// ErrNoSourceFiles is returned when a stage has nothing to compile.
	ErrNoSourceFiles = errors.New("no source files found in source directory")
	// ErrObjectCollision is returned when two sources map to one object file,
	// as a.c and a.cpp do.
	ErrObjectCollision = errors.New("sources compile to the same object")
)

// ObjectsDir is the subdirectory of a build dir that mirrors the source tree.
const ObjectsDir = "objects"

// Resolve returns p as an absolute path, interpreting relative paths against root.
func Resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// BuildDir returns the absolute build directory of a stage.
func BuildDir(root string, stage *config.Stage) string {
	return Resolve(root, stage.Build.BuildDir)
}

// ObjectDir returns the directory object files of a stage are written under.
func ObjectDir(root string, stage *config.Stage) string {
	return filepath.Join(BuildDir(root, stage), ObjectsDir)
}

// canonical resolves symlinks in the longest existing prefix of p.
func canonical(p string) string {
	p = filepath.Clean(p)
	if c, err := filepath.EvalSymlinks(p); err == nil {
		return c
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	return filepath.Join(canonical(parent), filepath.Base(p))
}

type tree struct {
	srcDir   string
	objDir   string
	skipDirs map[string]bool
	skipFile map[string]bool
}

func newTree(root string, stage *config.Stage) (*tree, error) {
	src := Resolve(root, stage.Source.SourceDir)
	srcDir, err := filepath.EvalSymlinks(src)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir %s: %w", src, err)
	}
	t := &tree{
		srcDir:   srcDir,
		objDir:   ObjectDir(root, stage),
		skipDirs: make(map[string]bool),
		skipFile: make(map[string]bool),
	}
	for _, d := range stage.Exclude.Dirs {
		t.skipDirs[canonical(Resolve(root, d))] = true
	}
	for _, f := range stage.Exclude.Files {
		t.skipFile[canonical(Resolve(root, f))] = true
	}
	// Build output inside the source tree must never be walked. When the
	// build dir is the source dir itself only its object tree is skipped.
	for _, d := range []string{canonical(BuildDir(root, stage)), canonical(t.objDir)} {
		if strings.HasPrefix(d, srcDir+string(filepath.Separator)) {
			t.skipDirs[d] = true
		}
	}
	return t, nil
}

// excludedDir reports whether p or one of its ancestors is excluded.
func (t *tree) excludedDir(p string) bool {
	for d := range t.skipDirs {
		if p == d || strings.HasPrefix(p, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// walk visits every file and directory of the source tree outside the
// excluded subtrees, in lexical order.
func (t *tree) walk(fn func(path string, d fs.DirEntry) error) error {
	if t.skipDirs[t.srcDir] {
		return nil
	}
	return filepath.WalkDir(t.srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != t.srcDir && t.skipDirs[path] {
			return filepath.SkipDir
		}
		return fn(path, d)
	})
}

// Discover lists the C, C++ and assembly files of stage. root is the
// canonical project root that relative config paths are resolved against.
// Files come back in lexical walk order.
func Discover(root string, stage *config.Stage) ([]buildsys.SourceFile, error) {
	t, err := newTree(root, stage)
	if err != nil {
		return nil, err
	}
	var files []buildsys.SourceFile
	owner := make(map[string]string)
	err = t.walk(func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		lang, ok := buildsys.LanguageOf(d.Name())
		if !ok {
			return nil
		}
		resolved := canonical(path)
		if t.skipFile[path] || t.skipFile[resolved] || t.excludedDir(resolved) {
			return nil
		}
		rel, err := filepath.Rel(t.srcDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		out := filepath.Join(t.objDir, strings.TrimSuffix(rel, filepath.Ext(rel))+lang.ObjectExt())
		if prev, ok := owner[out]; ok {
			return fmt.Errorf("%w: %s and %s both produce %s", ErrObjectCollision, prev, name, out)
		}
		owner[out] = name
		files = append(files, buildsys.SourceFile{
			Path:    resolved,
			OutPath: out,
			Name:    name,
			Lang:    lang,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover sources in %s: %w", t.srcDir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceFiles, t.srcDir)
	}
	return files, nil
}

// Mirror recreates the non-excluded directory structure of the source tree
// under the stage's object dir. Existing directories are left alone.
func Mirror(root string, stage *config.Stage) error {
	t, err := newTree(root, stage)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(t.objDir, 0755); err != nil {
		return fmt.Errorf("mirror %s: %w", t.objDir, err)
	}
	err = t.walk(func(path string, d fs.DirEntry) error {
		if !d.IsDir() || path == t.srcDir {
			return nil
		}
		rel, err := filepath.Rel(t.srcDir, path)
		if err != nil {
			return err
		}
		return os.MkdirAll(filepath.Join(t.objDir, rel), 0755)
	})
	if err != nil {
		return fmt.Errorf("mirror %s into %s: %w", t.srcDir, t.objDir, err)
	}
	return nil
}

// Dirs lists the source dir and its non-excluded subdirectories.
func Dirs(root string, stage *config.Stage) ([]string, error) {
	t, err := newTree(root, stage)
	if err != nil {
		return nil, err
	}
	var dirs []string
	err = t.walk(func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.srcDir, err)
	}
	return dirs, nil
}
