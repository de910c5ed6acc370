// Package native drives a GNU-style C/C++/assembly toolchain: it compiles
// single translation units, links objects into one relocatable object and
// turns an object into an executable.
package native

import (
	"context"
	"os"
	"path/filepath"

	"github.com/qiniu/x/log"

	"github.com/goplus/cbt/pkgs/buildsys"
	"github.com/goplus/cbt/pkgs/config"
)

// Freshness answers whether target can be reused given its inputs.
type Freshness interface {
	UpToDate(target string, sources ...string) bool
}

// Toolchain runs the tools of one stage. Relative paths in Stage are
// resolved against Root, which is also the working directory of every tool.
type Toolchain struct {
	Root      string
	Compilers config.Compilers
	Stage     *config.Stage
	Runner    buildsys.Runner
	Fresh     Freshness

	// Skipped is called with the target of every step found up to date.
	Skipped func(step buildsys.Step, target string)
	// Started is called before a tool is spawned.
	Started func(step buildsys.Step, target string)
}

func (t *Toolchain) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(t.Root, p)
}

// BuildDir returns the absolute build directory of the stage.
func (t *Toolchain) BuildDir() string {
	return t.resolve(t.Stage.Build.BuildDir)
}

// tool returns the program and flags used to compile lang.
func (t *Toolchain) tool(lang buildsys.Language) (string, []string) {
	switch lang {
	case buildsys.CXX:
		return t.Compilers.CXX, t.Stage.Flags.CXXFlags
	case buildsys.ASM:
		return t.Compilers.ASM, t.Stage.Flags.ASMFlags
	}
	return t.Compilers.CC, t.Stage.Flags.CFlags
}

// CompileArgs returns the arguments passed to the compiler for file.
func (t *Toolchain) CompileArgs(file buildsys.SourceFile) []string {
	_, flags := t.tool(file.Lang)
	var args []string
	if file.Lang != buildsys.ASM {
		args = append(args, "-c")
	}
	args = append(args, file.Path, "-o", file.OutPath)
	if file.Lang != buildsys.ASM {
		prefix := t.Stage.Includes.IncludePrefix
		for _, dir := range t.Stage.Includes.IncludeDirs {
			args = append(args, prefix+dir)
		}
	}
	return append(args, flags...)
}

// Compile turns file into its object and returns the object path. Nothing is
// spawned when the object is newer than the source.
func (t *Toolchain) Compile(ctx context.Context, file buildsys.SourceFile) (string, error) {
	if t.fresh(file.OutPath, file.Path) {
		t.skipped(buildsys.StepCompile, file.Name)
		return file.OutPath, nil
	}
	name, _ := t.tool(file.Lang)
	if err := t.run(ctx, buildsys.StepCompile, file.Name, name, t.CompileArgs(file)); err != nil {
		return "", err
	}
	return file.OutPath, nil
}

// LinkPath returns where Link writes the relocatable object.
func (t *Toolchain) LinkPath() string {
	return filepath.Join(t.BuildDir(), t.Stage.Build.LinkName()+".o")
}

// Link combines objects into a single relocatable object. Any object newer
// than the previous result forces the whole link to run again.
func (t *Toolchain) Link(ctx context.Context, objects []string) (string, error) {
	out := t.LinkPath()
	if t.fresh(out, objects...) {
		t.skipped(buildsys.StepLink, filepath.Base(out))
		return out, nil
	}
	args := []string{"-r"}
	args = append(args, objects...)
	args = append(args, "-o", out)
	args = append(args, t.Stage.Flags.LDFlags...)
	if err := t.run(ctx, buildsys.StepLink, filepath.Base(out), t.Compilers.Linker, args); err != nil {
		return "", err
	}
	return out, nil
}

// ExecutableDir returns target_dir when it exists, else the build dir.
func (t *Toolchain) ExecutableDir() string {
	if dir := t.Stage.Build.TargetDir; dir != "" {
		if p, err := filepath.EvalSymlinks(t.resolve(dir)); err == nil {
			if fi, err := os.Stat(p); err == nil && fi.IsDir() {
				return p
			}
		}
		log.Debugf("target dir %s not usable, writing executable to build dir", dir)
	}
	return t.BuildDir()
}

// ExecutablePath returns where Executable writes its output.
func (t *Toolchain) ExecutablePath() string {
	return filepath.Join(t.ExecutableDir(), t.Stage.Build.ExecutableName())
}

// Executable links object into the stage's executable with the C compiler
// as front-end and returns its path.
func (t *Toolchain) Executable(ctx context.Context, object string) (string, error) {
	out := t.ExecutablePath()
	if t.fresh(out, object) {
		t.skipped(buildsys.StepExecutable, filepath.Base(out))
		return out, nil
	}
	args := []string{object, "-o", out}
	args = append(args, t.Stage.Flags.CFlags...)
	args = append(args, t.Stage.Build.ExecutableExtraFlags...)
	if err := t.run(ctx, buildsys.StepExecutable, filepath.Base(object), t.Compilers.CC, args); err != nil {
		return "", err
	}
	return out, nil
}

func (t *Toolchain) fresh(target string, sources ...string) bool {
	return t.Fresh != nil && t.Fresh.UpToDate(target, sources...)
}

func (t *Toolchain) skipped(step buildsys.Step, target string) {
	log.Debugf("%s %s: up to date", step, target)
	if t.Skipped != nil {
		t.Skipped(step, target)
	}
}

func (t *Toolchain) run(ctx context.Context, step buildsys.Step, target, name string, args []string) error {
	if t.Started != nil {
		t.Started(step, target)
	}
	log.Debug(buildsys.CommandLine(name, args))
	runner := t.Runner
	if runner == nil {
		runner = buildsys.ExecRunner{}
	}
	if err := runner.Run(ctx, t.Root, name, args...); err != nil {
		return &buildsys.ToolError{Step: step, Tool: name, Target: target, Err: err}
	}
	return nil
}
