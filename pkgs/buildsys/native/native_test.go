package native

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/goplus/cbt/pkgs/buildsys"
	"github.com/goplus/cbt/pkgs/buildsys/buildsystest"
	"github.com/goplus/cbt/pkgs/config"
)

type freshFunc func(target string, sources ...string) bool

func (f freshFunc) UpToDate(target string, sources ...string) bool { return f(target, sources...) }

var never = freshFunc(func(string, ...string) bool { return false })

func newToolchain(t *testing.T, rec buildsys.Runner) (*Toolchain, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stage := config.DefaultStage("app")
	stage.Flags.CFlags = []string{"-O2", "-Wall"}
	stage.Flags.CXXFlags = []string{"-std=c++17"}
	stage.Flags.LDFlags = []string{"-L/opt/lib"}
	stage.Includes.IncludeDirs = []string{"include", "/usr/local/include"}
	return &Toolchain{
		Root:      root,
		Compilers: config.DefaultCompilers(),
		Stage:     &stage,
		Runner:    rec,
		Fresh:     never,
	}, root
}

func TestCompileArgs(t *testing.T) {
	tc, _ := newToolchain(t, nil)
	tests := []struct {
		name string
		file buildsys.SourceFile
		tool string
		want []string
	}{
		{
			name: "c",
			file: buildsys.SourceFile{Path: "/p/src/a.c", OutPath: "/p/build/objects/a.o", Lang: buildsys.C},
			tool: "gcc",
			want: []string{"-c", "/p/src/a.c", "-o", "/p/build/objects/a.o", "-Iinclude", "-I/usr/local/include", "-O2", "-Wall"},
		},
		{
			name: "cxx",
			file: buildsys.SourceFile{Path: "/p/src/b.cpp", OutPath: "/p/build/objects/b.o", Lang: buildsys.CXX},
			tool: "g++",
			want: []string{"-c", "/p/src/b.cpp", "-o", "/p/build/objects/b.o", "-Iinclude", "-I/usr/local/include", "-std=c++17"},
		},
		{
			name: "asm",
			file: buildsys.SourceFile{Path: "/p/src/boot.s", OutPath: "/p/build/objects/boot.asm.o", Lang: buildsys.ASM},
			tool: "nasm",
			want: []string{"/p/src/boot.s", "-o", "/p/build/objects/boot.asm.o", "-felf64"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := tc.tool(tt.file.Lang); got != tt.tool {
				t.Errorf("tool = %q, want %q", got, tt.tool)
			}
			if got := tc.CompileArgs(tt.file); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CompileArgs() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}

func TestCompileIncludePrefix(t *testing.T) {
	tc, _ := newToolchain(t, nil)
	tc.Stage.Includes.IncludePrefix = "/I"
	tc.Stage.Includes.IncludeDirs = []string{"inc"}
	args := tc.CompileArgs(buildsys.SourceFile{Path: "a.c", OutPath: "a.o", Lang: buildsys.C})
	if !strings.Contains(strings.Join(args, " "), " /Iinc ") {
		t.Fatalf("CompileArgs() = %q, want /Iinc", args)
	}
}

func TestCompile(t *testing.T) {
	rec := &buildsystest.Recorder{}
	tc, root := newToolchain(t, rec)
	out := filepath.Join(root, "main.o")
	file := buildsys.SourceFile{Path: filepath.Join(root, "main.c"), OutPath: out, Name: "main.c", Lang: buildsys.C}

	var started []string
	tc.Started = func(step buildsys.Step, target string) {
		started = append(started, fmt.Sprintf("%s %s", step, target))
	}
	got, err := tc.Compile(context.Background(), file)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got != out {
		t.Errorf("Compile() = %q, want %q", got, out)
	}
	if len(rec.Calls) != 1 || rec.Calls[0].Name != "gcc" || rec.Calls[0].Dir != root {
		t.Fatalf("calls = %v", rec.Calls)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("object not written: %v", err)
	}
	if want := []string{"compile main.c"}; !reflect.DeepEqual(started, want) {
		t.Errorf("Started = %q, want %q", started, want)
	}
}

func TestCompileSkipsUpToDate(t *testing.T) {
	rec := &buildsystest.Recorder{}
	tc, root := newToolchain(t, rec)
	file := buildsys.SourceFile{Path: filepath.Join(root, "a.c"), OutPath: filepath.Join(root, "a.o"), Name: "a.c"}

	var asked []string
	tc.Fresh = freshFunc(func(target string, sources ...string) bool {
		asked = append(asked, target)
		asked = append(asked, sources...)
		return true
	})
	var skipped []string
	tc.Skipped = func(step buildsys.Step, target string) {
		skipped = append(skipped, target)
	}
	got, err := tc.Compile(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}
	if got != file.OutPath {
		t.Errorf("Compile() = %q, want existing %q", got, file.OutPath)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("up to date compile spawned %v", rec.Calls)
	}
	if want := []string{file.OutPath, file.Path}; !reflect.DeepEqual(asked, want) {
		t.Errorf("freshness asked about %q, want %q", asked, want)
	}
	if want := []string{"a.c"}; !reflect.DeepEqual(skipped, want) {
		t.Errorf("Skipped = %q, want %q", skipped, want)
	}
}

func TestLink(t *testing.T) {
	rec := &buildsystest.Recorder{}
	tc, root := newToolchain(t, rec)
	tc.Stage.Build.Executable = "app"
	objs := []string{filepath.Join(root, "a.o"), filepath.Join(root, "b.o")}
	if err := os.MkdirAll(filepath.Join(root, "build"), 0755); err != nil {
		t.Fatal(err)
	}

	out, err := tc.Link(context.Background(), objs)
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if want := filepath.Join(root, "build", "app.o"); out != want {
		t.Errorf("Link() = %q, want %q", out, want)
	}
	want := []string{"-r", objs[0], objs[1], "-o", out, "-L/opt/lib"}
	if len(rec.Calls) != 1 || rec.Calls[0].Name != "ld" || !reflect.DeepEqual(rec.Calls[0].Args, want) {
		t.Fatalf("calls = %v, want ld %q", rec.Calls, want)
	}
}

func TestLinkFallbackName(t *testing.T) {
	tc, root := newToolchain(t, nil)
	if want := filepath.Join(root, "build", config.DefaultLinkName+".o"); tc.LinkPath() != want {
		t.Errorf("LinkPath() = %q, want %q", tc.LinkPath(), want)
	}
}

func TestExecutable(t *testing.T) {
	tests := []struct {
		name      string
		targetDir string
		mkTarget  bool
		exe       string
		wantDir   string
	}{
		{"build dir fallback name", "", false, "", "build"},
		{"named in build dir", "", false, "app", "build"},
		{"existing target dir", "bin", true, "app", "bin"},
		{"missing target dir", "bin", false, "app", "build"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &buildsystest.Recorder{}
			tc, root := newToolchain(t, rec)
			tc.Stage.Build.TargetDir = tt.targetDir
			tc.Stage.Build.Executable = tt.exe
			tc.Stage.Build.ExecutableExtraFlags = []string{"-lm"}
			if err := os.MkdirAll(filepath.Join(root, "build"), 0755); err != nil {
				t.Fatal(err)
			}
			if tt.mkTarget {
				if err := os.MkdirAll(filepath.Join(root, tt.targetDir), 0755); err != nil {
					t.Fatal(err)
				}
			}
			obj := filepath.Join(root, "build", "app.o")

			out, err := tc.Executable(context.Background(), obj)
			if err != nil {
				t.Fatalf("Executable() error = %v", err)
			}
			name := tt.exe
			if name == "" {
				name = config.DefaultExecutableName
			}
			if want := filepath.Join(root, tt.wantDir, name); out != want {
				t.Errorf("Executable() = %q, want %q", out, want)
			}
			want := []string{obj, "-o", out, "-O2", "-Wall", "-lm"}
			if len(rec.Calls) != 1 || rec.Calls[0].Name != "gcc" || !reflect.DeepEqual(rec.Calls[0].Args, want) {
				t.Fatalf("calls = %v, want gcc %q", rec.Calls, want)
			}
		})
	}
}

func TestToolFailures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		step     buildsys.Step
		sentinel error
		run      func(tc *Toolchain) error
	}{
		{"compile spawn", buildsys.StepCompile, buildsys.ErrSpawn, func(tc *Toolchain) error {
			_, err := tc.Compile(ctx, buildsys.SourceFile{Path: "a.c", OutPath: "a.o", Name: "a.c"})
			return err
		}},
		{"compile exit", buildsys.StepCompile, buildsys.ErrExit, func(tc *Toolchain) error {
			_, err := tc.Compile(ctx, buildsys.SourceFile{Path: "a.c", OutPath: "a.o", Name: "a.c"})
			return err
		}},
		{"link exit", buildsys.StepLink, buildsys.ErrExit, func(tc *Toolchain) error {
			_, err := tc.Link(ctx, []string{"a.o", "b.o"})
			return err
		}},
		{"executable spawn", buildsys.StepExecutable, buildsys.ErrSpawn, func(tc *Toolchain) error {
			_, err := tc.Executable(ctx, "a.o")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &buildsystest.Recorder{Fail: func(buildsystest.Call) error {
				return fmt.Errorf("%w: boom", tt.sentinel)
			}}
			tc, _ := newToolchain(t, rec)
			err := tt.run(tc)
			var te *buildsys.ToolError
			if !errors.As(err, &te) {
				t.Fatalf("error = %v, want *ToolError", err)
			}
			if te.Step != tt.step {
				t.Errorf("Step = %v, want %v", te.Step, tt.step)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v in chain", err, tt.sentinel)
			}
		})
	}
}

func TestEmptyToolFailsToSpawn(t *testing.T) {
	tc, root := newToolchain(t, nil)
	tc.Compilers.CC = ""
	src := filepath.Join(root, "a.c")
	_, err := tc.Compile(context.Background(), buildsys.SourceFile{Path: src, OutPath: src + ".o", Name: "a.c"})
	if !errors.Is(err, buildsys.ErrSpawn) {
		t.Fatalf("Compile() with empty cc error = %v, want ErrSpawn", err)
	}
}

// TestRealToolchain compiles, links and runs a two-file program with the
// host gcc and ld.
func TestRealToolchain(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relocatable linking with ld is only exercised on linux")
	}
	for _, tool := range []string{"gcc", "ld"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH", tool)
		}
	}
	tc, root := newToolchain(t, buildsys.ExecRunner{})
	tc.Stage.Includes.IncludeDirs = []string{"include"}
	tc.Stage.Flags.CFlags = nil
	tc.Stage.Flags.LDFlags = nil
	tc.Stage.Build.Executable = "hello"

	write := func(rel, content string) string {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	write("include/greet.h", "int greet(void);\n")
	mainC := write("src/main.c", "#include <stdio.h>\n#include \"greet.h\"\nint main(void) { printf(\"%d\\n\", greet()); return 0; }\n")
	greetC := write("src/greet.c", "#include \"greet.h\"\nint greet(void) { return 42; }\n")
	objDir := filepath.Join(root, "build", "objects")
	if err := os.MkdirAll(objDir, 0755); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var objs []string
	for _, src := range []string{greetC, mainC} {
		base := filepath.Base(src)
		obj, err := tc.Compile(ctx, buildsys.SourceFile{
			Path:    src,
			OutPath: filepath.Join(objDir, strings.TrimSuffix(base, ".c")+".o"),
			Name:    base,
			Lang:    buildsys.C,
		})
		if err != nil {
			t.Fatalf("Compile(%s) error = %v", base, err)
		}
		objs = append(objs, obj)
	}
	linked, err := tc.Link(ctx, objs)
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	exe, err := tc.Executable(ctx, linked)
	if err != nil {
		t.Fatalf("Executable() error = %v", err)
	}
	out, err := exec.Command(exe).Output()
	if err != nil {
		t.Fatalf("running %s: %v", exe, err)
	}
	if strings.TrimSpace(string(out)) != "42" {
		t.Errorf("program printed %q, want 42", out)
	}
}
