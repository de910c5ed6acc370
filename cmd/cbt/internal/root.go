package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/cbt/internal/env"
	"github.com/goplus/cbt/internal/ui"
	"github.com/goplus/cbt/pkgs/buildsys"
)

var rootCmd = &cobra.Command{
	Use:   "cbt",
	Short: "cbt builds C, C++ and assembly projects",
	Long: `cbt is a build tool for native projects. It reads a cbt.toml pipeline,
compiles the sources of every stage with the configured toolchain and links
them into an executable, skipping work that is already up to date.`,
	Version:       env.BuildVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runner spawns the toolchain; tests replace it.
var runner buildsys.Runner = buildsys.ExecRunner{}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ui.For(os.Stderr).Error("error"), err)
		os.Exit(1)
	}
}

func setVerbose(verbose bool) {
	if verbose {
		log.SetOutputLevel(log.Ldebug)
		return
	}
	log.SetOutputLevel(log.Linfo)
}
