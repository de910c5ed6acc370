package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/cbt/internal/ui"
	"github.com/goplus/cbt/pkgs/config"
)

var (
	genConfigPath  string
	genConfigForce bool
)

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generate a default config file",
	Long:  `Gen-config writes a config with a single default stage and the GNU toolchain.`,
	Args:  cobra.NoArgs,
	RunE:  runGenConfig,
}

func init() {
	genConfigCmd.Flags().StringVarP(&genConfigPath, "path", "p", config.DefaultFile, "Where to write the config")
	genConfigCmd.Flags().BoolVar(&genConfigForce, "force", false, "Overwrite an existing file")
	rootCmd.AddCommand(genConfigCmd)
}

func runGenConfig(cmd *cobra.Command, args []string) error {
	path := genConfigPath
	if path == "" {
		path = config.DefaultFile
	}
	if err := config.Write(path, config.Default(), genConfigForce); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.For(out).Message("Wrote"), path)
	return nil
}
