package internal

import (
	"context"
	"fmt"
	"io"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/cbt/internal/build"
	"github.com/goplus/cbt/internal/env"
	"github.com/goplus/cbt/internal/sources"
	"github.com/goplus/cbt/internal/ui"
	"github.com/goplus/cbt/internal/watch"
	"github.com/goplus/cbt/pkgs/config"
)

var (
	buildConfig  string
	buildStages  []string
	buildVerbose bool
	buildWatch   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the project",
	Long: `Build runs every stage of the pipeline in order. Relative paths in the
config are resolved against the directory that contains it.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildConfig, "config", "c", "", "Config file (default $"+env.ConfigEnv+" or "+config.DefaultFile+")")
	buildCmd.Flags().StringArrayVar(&buildStages, "stage", nil, "Only build the named stage, can be repeated")
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Print every tool invocation")
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "Rebuild when the config or a source changes")
	rootCmd.AddCommand(buildCmd)
}

// project is a loaded config together with the directory it lives in.
type project struct {
	file   string
	root   string
	cfg    *config.Config
	stages []config.Stage
}

func loadProject(configFlag string, stageNames []string) (*project, error) {
	file, root, err := env.ProjectRoot(env.ConfigPath(configFlag))
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckVersion(env.BuildVersion()); err != nil {
		return nil, err
	}
	stages, err := cfg.Select(stageNames)
	if err != nil {
		return nil, err
	}
	return &project{file: file, root: root, cfg: cfg, stages: stages}, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	setVerbose(buildVerbose)
	out := cmd.OutOrStdout()
	if !buildWatch {
		return buildOnce(cmd.Context(), out)
	}

	file, _, err := env.ProjectRoot(env.ConfigPath(buildConfig))
	if err != nil {
		return err
	}
	w := &watch.Watcher{
		ConfigPath: file,
		Dirs:       watchedDirs,
		Build: func(ctx context.Context) error {
			return buildOnce(ctx, out)
		},
		OnError: func(err error) {
			stderr := cmd.ErrOrStderr()
			fmt.Fprintf(stderr, "%s: %v\n", ui.For(stderr).Error("error"), err)
		},
	}
	fmt.Fprintln(out, ui.For(out).Dim("Watching %s, press Ctrl-C to stop", file))
	return w.Run(cmd.Context())
}

func buildOnce(ctx context.Context, out io.Writer) error {
	p, err := loadProject(buildConfig, buildStages)
	if err != nil {
		return err
	}
	b := build.NewBuilder(build.Options{Root: p.root, Runner: runner, Stdout: out})
	results, err := b.Run(ctx, p.cfg, p.stages)
	if err != nil {
		return err
	}
	for _, r := range results {
		log.Debugf("stage %s: %d objects, %d tools run, executable %q", r.Stage, len(r.Objects), r.Spawned, r.Executable)
	}
	return nil
}

// watchedDirs lists the source dirs of the selected stages. Stages whose
// source dir is missing are left out rather than stopping the watch.
func watchedDirs() ([]string, error) {
	p, err := loadProject(buildConfig, buildStages)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for i := range p.stages {
		d, err := sources.Dirs(p.root, &p.stages[i])
		if err != nil {
			log.Warnf("stage %s: %v", p.stages[i].Name, err)
			continue
		}
		dirs = append(dirs, d...)
	}
	return dirs, nil
}
