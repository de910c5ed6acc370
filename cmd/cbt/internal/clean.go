package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/cbt/internal/build"
	"github.com/goplus/cbt/internal/env"
	"github.com/goplus/cbt/pkgs/config"
)

var (
	cleanConfig string
	cleanStages []string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build output",
	Long: `Clean deletes the build directory of every stage, and the executable
when it was written to a separate target directory.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanConfig, "config", "c", "", "Config file (default $"+env.ConfigEnv+" or "+config.DefaultFile+")")
	cleanCmd.Flags().StringArrayVar(&cleanStages, "stage", nil, "Only clean the named stage, can be repeated")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cleanConfig, cleanStages)
	if err != nil {
		return err
	}
	b := build.NewBuilder(build.Options{Root: p.root, Runner: runner, Stdout: cmd.OutOrStdout()})
	return b.Clean(p.stages)
}
