// Package buildsys holds the vocabulary shared by the cbt build engine and
// its toolchain drivers: source files, languages, tool runners and their errors.
package buildsys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Language is the source language of a file, decided by its extension.
type Language int

const (
	C Language = iota
	CXX
	ASM
)

func (l Language) String() string {
	switch l {
	case C:
		return "C"
	case CXX:
		return "C++"
	case ASM:
		return "assembly"
	}
	return fmt.Sprintf("Language(%d)", int(l))
}

// ObjectExt returns the object file extension produced for the language.
func (l Language) ObjectExt() string {
	if l == ASM {
		return ".asm.o"
	}
	return ".o"
}

// LanguageOf classifies a file name by its case-insensitive extension.
// ok is false for files that are not compiled. A leading dot does not start
// an extension, so ".c" is not a C source.
func LanguageOf(name string) (lang Language, ok bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return 0, false
	}
	switch strings.ToLower(name[i:]) {
	case ".c":
		return C, true
	case ".cpp":
		return CXX, true
	case ".s", ".asm":
		return ASM, true
	}
	return 0, false
}

// SourceFile is a discovered translation unit.
type SourceFile struct {
	Path    string // canonical absolute path
	OutPath string // object path mirrored under the build tree
	Name    string // display name, relative to the source dir
	Lang    Language
}

// Step names the engine step a tool was run for.
type Step int

const (
	StepCompile Step = iota
	StepLink
	StepExecutable
)

func (s Step) String() string {
	switch s {
	case StepCompile:
		return "compile"
	case StepLink:
		return "link"
	case StepExecutable:
		return "create executable from"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

var (
	// ErrSpawn reports that a tool process could not be started.
	ErrSpawn = errors.New("could not start process")
	// ErrExit reports that a tool process exited with a non-zero status.
	ErrExit = errors.New("process exited with non-zero status")
)

// ToolError is returned when an external compiler, linker or executable
// front-end fails. Its chain contains ErrSpawn or ErrExit.
type ToolError struct {
	Step   Step
	Tool   string
	Target string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed to %s %s: %v", e.Tool, e.Step, e.Target, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner spawns a tool and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs tools as child processes sharing the parent's stdout and stderr.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrExit, err)
	}
	return nil
}

// CommandLine renders a command for logs.
func CommandLine(name string, args []string) string {
	var sb strings.Builder
	sb.WriteString(name)
	for _, a := range args {
		sb.WriteByte(' ')
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			sb.WriteString(fmt.Sprintf("%q", a))
			continue
		}
		sb.WriteString(a)
	}
	return sb.String()
}
