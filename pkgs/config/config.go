// Package config defines the cbt pipeline description and its TOML encoding.
package config

import "slices"

// DefaultFile is the config file name used when none is given.
const DefaultFile = "cbt.toml"

// Fallback names used when a stage does not configure an executable.
const (
	DefaultLinkName       = "full_project_out"
	DefaultExecutableName = "a.out"
)

// Timestamp sources understood by the staleness check.
const (
	TimestampsModified = "modified"
	TimestampsCreated  = "created"
)

// Config is a whole pipeline: the toolchain and the ordered stages.
type Config struct {
	MinVersion string    `toml:"min_version,omitempty"`
	Compilers  Compilers `toml:"compilers"`
	Stages     []Stage   `toml:"stage"`
}

// Compilers names the external tools. Missing tools fail when spawned.
type Compilers struct {
	CC     string `toml:"cc"`
	CXX    string `toml:"cxx"`
	ASM    string `toml:"asm"`
	Linker string `toml:"linker"`
}

// Stage is one unit of the pipeline with its own source tree and settings.
type Stage struct {
	Name       string   `toml:"name"`
	Flags      Flags    `toml:"flags"`
	Includes   Includes `toml:"includes"`
	Exclude    Exclude  `toml:"exclude"`
	Source     Source   `toml:"source"`
	Build      Build    `toml:"build"`
	PostScript string   `toml:"post_script,omitempty"`
}

// Flags are passed verbatim to the tools.
type Flags struct {
	CFlags   []string `toml:"cflags"`
	CXXFlags []string `toml:"cxxflags"`
	ASMFlags []string `toml:"asmflags"`
	LDFlags  []string `toml:"ldflags"`
}

type Includes struct {
	IncludeDirs   []string `toml:"include_dirs"`
	IncludePrefix string   `toml:"include_prefix"`
}

// Exclude lists directories and files, relative to the project root, that
// are left out of discovery.
type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Source struct {
	SourceDir string `toml:"source_dir"`
}

type Build struct {
	BuildDir             string   `toml:"build_dir"`
	TargetDir            string   `toml:"target_dir,omitempty"`
	Executable           string   `toml:"executable,omitempty"`
	ExecutableExtraFlags []string `toml:"executable_extra_flags,omitempty"`
	BuildExecutable      bool     `toml:"build_executable"`
	Timestamps           string   `toml:"timestamps,omitempty"`
}

// LinkName returns the base name of the relocatable object a stage links to.
func (b *Build) LinkName() string {
	if b.Executable != "" {
		return b.Executable
	}
	return DefaultLinkName
}

// ExecutableName returns the executable file name of a stage.
func (b *Build) ExecutableName() string {
	if b.Executable != "" {
		return b.Executable
	}
	return DefaultExecutableName
}

// DefaultCompilers returns the GNU toolchain with nasm for assembly.
func DefaultCompilers() Compilers {
	return Compilers{
		CC:     "gcc",
		CXX:    "g++",
		ASM:    "nasm",
		Linker: "ld",
	}
}

// DefaultStage returns a stage with every optional field at its default.
func DefaultStage(name string) Stage {
	return Stage{
		Name: name,
		Flags: Flags{
			CFlags:   []string{},
			CXXFlags: []string{},
			ASMFlags: []string{"-felf64"},
			LDFlags:  []string{},
		},
		Includes: Includes{
			IncludeDirs:   []string{"include"},
			IncludePrefix: "-I",
		},
		Exclude: Exclude{
			Dirs:  []string{},
			Files: []string{},
		},
		Source: Source{SourceDir: "src"},
		Build: Build{
			BuildDir:        "build",
			BuildExecutable: true,
		},
	}
}

// Default returns the config written by "cbt gen-config".
func Default() *Config {
	return &Config{
		Compilers: DefaultCompilers(),
		Stages:    []Stage{DefaultStage("default")},
	}
}

// presence mirrors the keys whose explicit empty value differs from leaving
// them out.
type presence struct {
	Compilers struct {
		CC     *string `toml:"cc"`
		CXX    *string `toml:"cxx"`
		ASM    *string `toml:"asm"`
		Linker *string `toml:"linker"`
	} `toml:"compilers"`
	Stage []struct {
		Includes struct {
			IncludePrefix *string `toml:"include_prefix"`
		} `toml:"includes"`
		Build struct {
			BuildExecutable *bool `toml:"build_executable"`
		} `toml:"build"`
	} `toml:"stage"`
}

// orDefault sets *v to def unless the file set the key.
func orDefault(v *string, set *string, def string) {
	if set == nil && *v == "" {
		*v = def
	}
}

// applyDefaults fills fields the file left out. Tools and the include prefix
// that are set to "" stay empty.
func (c *Config) applyDefaults(set *presence) {
	def := DefaultCompilers()
	orDefault(&c.Compilers.CC, set.Compilers.CC, def.CC)
	orDefault(&c.Compilers.CXX, set.Compilers.CXX, def.CXX)
	orDefault(&c.Compilers.ASM, set.Compilers.ASM, def.ASM)
	orDefault(&c.Compilers.Linker, set.Compilers.Linker, def.Linker)
	for i := range c.Stages {
		s := &c.Stages[i]
		d := DefaultStage(s.Name)
		var prefix *string
		var buildExe *bool
		if i < len(set.Stage) {
			prefix = set.Stage[i].Includes.IncludePrefix
			buildExe = set.Stage[i].Build.BuildExecutable
		}
		if s.Flags.ASMFlags == nil {
			s.Flags.ASMFlags = d.Flags.ASMFlags
		}
		if s.Includes.IncludeDirs == nil {
			s.Includes.IncludeDirs = d.Includes.IncludeDirs
		}
		orDefault(&s.Includes.IncludePrefix, prefix, d.Includes.IncludePrefix)
		if s.Source.SourceDir == "" {
			s.Source.SourceDir = d.Source.SourceDir
		}
		if s.Build.BuildDir == "" {
			s.Build.BuildDir = d.Build.BuildDir
		}
		if s.Build.Timestamps == "" {
			s.Build.Timestamps = TimestampsModified
		}
		s.Build.BuildExecutable = true
		if buildExe != nil {
			s.Build.BuildExecutable = *buildExe
		}
	}
}

// Select returns the stages whose names are in names, in declaration order.
// An empty names selects every stage.
func (c *Config) Select(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return c.Stages, nil
	}
	for _, n := range names {
		if !slices.ContainsFunc(c.Stages, func(s Stage) bool { return s.Name == n }) {
			return nil, &UnknownStageError{Name: n}
		}
	}
	var out []Stage
	for _, s := range c.Stages {
		if slices.Contains(names, s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}

// UnknownStageError is returned by Select for a name no stage has.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return "unknown stage " + e.Name
}
