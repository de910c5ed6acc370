// Package build runs cbt pipelines: every stage is discovered, mirrored,
// compiled, linked and turned into an executable, in order, stopping at the
// first failure.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/qiniu/x/log"

	"github.com/goplus/cbt/internal/sources"
	"github.com/goplus/cbt/internal/stale"
	"github.com/goplus/cbt/internal/ui"
	"github.com/goplus/cbt/pkgs/buildsys"
	"github.com/goplus/cbt/pkgs/buildsys/native"
	"github.com/goplus/cbt/pkgs/config"
)

// ErrPostScript reports a post-build script that could not run or exited
// with a non-zero status. It never fails a stage.
var ErrPostScript = errors.New("post-build script failed")

// Options configures a Builder.
type Options struct {
	// Root is the canonical project root. Relative config paths resolve
	// against it and every tool runs in it.
	Root string
	// Runner spawns tools. Defaults to buildsys.ExecRunner.
	Runner buildsys.Runner
	// Stdout receives progress lines. Defaults to os.Stdout.
	Stdout io.Writer
}

type Builder struct {
	root   string
	runner buildsys.Runner
	out    io.Writer
	style  ui.Printer
}

// Result describes one finished stage.
type Result struct {
	Stage      string
	Objects    []string
	Linked     string // empty when the stage had a single object
	Executable string // empty when build_executable is off
	Spawned    int    // tools run; zero when everything was up to date

	// PostScriptErr is set when the post-build script failed.
	PostScriptErr error
}

func NewBuilder(opts Options) *Builder {
	b := &Builder{
		root:   opts.Root,
		runner: opts.Runner,
		out:    opts.Stdout,
	}
	if b.runner == nil {
		b.runner = buildsys.ExecRunner{}
	}
	if b.out == nil {
		b.out = os.Stdout
	}
	b.style = ui.For(b.out)
	return b
}

// Run executes stages in order with the config's compilers. The results of
// the stages that completed are returned along with the first error.
func (b *Builder) Run(ctx context.Context, cfg *config.Config, stages []config.Stage) ([]*Result, error) {
	results := make([]*Result, 0, len(stages))
	for i := range stages {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := b.RunStage(ctx, cfg.Compilers, &stages[i])
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunStage builds a single stage.
func (b *Builder) RunStage(ctx context.Context, compilers config.Compilers, stage *config.Stage) (*Result, error) {
	fmt.Fprintln(b.out, b.style.Info("Building stage %s", stage.Name))
	start := time.Now()

	files, err := sources.Discover(b.root, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage %s: %w", stage.Name, err)
	}
	if err := sources.Mirror(b.root, stage); err != nil {
		return nil, fmt.Errorf("failed to build stage %s: %w", stage.Name, err)
	}

	res := &Result{Stage: stage.Name}
	tc := &native.Toolchain{
		Root:      b.root,
		Compilers: compilers,
		Stage:     stage,
		Runner:    b.runner,
		Fresh:     stale.New(stage.Build.Timestamps),
		Started: func(step buildsys.Step, target string) {
			res.Spawned++
			b.progress(step, target)
		},
	}

	for _, f := range files {
		obj, err := tc.Compile(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("failed to build stage %s: %w", stage.Name, err)
		}
		res.Objects = append(res.Objects, obj)
	}

	object := res.Objects[0]
	if len(res.Objects) > 1 {
		if object, err = tc.Link(ctx, res.Objects); err != nil {
			return nil, fmt.Errorf("failed to build stage %s: %w", stage.Name, err)
		}
		res.Linked = object
	}

	if stage.Build.BuildExecutable {
		if res.Executable, err = tc.Executable(ctx, object); err != nil {
			return nil, fmt.Errorf("failed to build stage %s: %w", stage.Name, err)
		}
	}

	m := &Manifest{
		Stage:      stage.Name,
		Objects:    res.Objects,
		Linked:     res.Linked,
		Executable: res.Executable,
		BuildTime:  time.Now(),
	}
	if err := saveManifest(tc.BuildDir(), m); err != nil {
		return nil, fmt.Errorf("failed to save build manifest: %w", err)
	}

	if stage.PostScript != "" {
		if err := b.postScript(ctx, stage.PostScript); err != nil {
			fmt.Fprintf(b.out, "%s: %v\n", b.style.Warning("Warning"), err)
			res.PostScriptErr = err
		}
	}

	if res.Spawned == 0 {
		fmt.Fprintln(b.out, b.style.Dim("Stage %s is up to date", stage.Name))
	} else {
		fmt.Fprintln(b.out, b.style.Message("Finished stage %s in %s", stage.Name, time.Since(start).Round(time.Millisecond)))
	}
	return res, nil
}

func (b *Builder) progress(step buildsys.Step, target string) {
	var verb string
	switch step {
	case buildsys.StepCompile:
		verb = "Compiling"
	case buildsys.StepLink:
		verb = "Linking"
	default:
		verb = "Creating executable from"
	}
	fmt.Fprintln(b.out, b.style.Message(verb), target)
}

// postScript runs script through the platform shell in the project root and
// prints what it wrote.
func (b *Builder) postScript(ctx context.Context, script string) error {
	name, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		name, flag = "cmd", "/C"
	}
	fmt.Fprintln(b.out, b.style.Message("Running post-build script"))
	log.Debug(buildsys.CommandLine(name, []string{flag, script}))

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, name, flag, script)
	cmd.Dir = b.root
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if output.Len() > 0 {
		b.out.Write(output.Bytes())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPostScript, err)
	}
	return nil
}
