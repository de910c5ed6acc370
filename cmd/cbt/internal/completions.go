package internal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/goplus/cbt/internal/ui"
)

var completionsOutput string

var completionsCmd = &cobra.Command{
	Use:   "gen-completions <shell>",
	Short: "Generate shell completions",
	Long: `Gen-completions writes a completion script for bash, zsh, fish or
powershell to cbt.<ext>, or to the file given with --output ("-" for stdout).`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell", "elvish"},
	RunE:      runCompletions,
}

func init() {
	completionsCmd.Flags().StringVarP(&completionsOutput, "output", "o", "", "Output file, - for stdout (default cbt.<ext>)")
	rootCmd.AddCommand(completionsCmd)
}

var errNoGenerator = errors.New("no completion generator")

type shell struct {
	name string
	ext  string
	gen  func(cmd *cobra.Command, w io.Writer) error
}

var shells = []shell{
	{"bash", "bash", func(c *cobra.Command, w io.Writer) error { return c.GenBashCompletionV2(w, true) }},
	{"zsh", "zsh", func(c *cobra.Command, w io.Writer) error { return c.GenZshCompletion(w) }},
	{"fish", "fish", func(c *cobra.Command, w io.Writer) error { return c.GenFishCompletion(w, true) }},
	{"powershell", "ps1", func(c *cobra.Command, w io.Writer) error { return c.GenPowerShellCompletionWithDesc(w) }},
	{"elvish", "elv", nil},
}

func shellByName(name string) (shell, error) {
	for _, s := range shells {
		if s.name == name {
			if s.gen == nil {
				return s, fmt.Errorf("%w for %s", errNoGenerator, name)
			}
			return s, nil
		}
	}
	return shell{}, fmt.Errorf("unknown shell %q (want bash, zsh, fish or powershell)", name)
}

func runCompletions(cmd *cobra.Command, args []string) error {
	sh, err := shellByName(args[0])
	if err != nil {
		return err
	}
	if completionsOutput == "-" {
		return sh.gen(rootCmd, cmd.OutOrStdout())
	}
	path := completionsOutput
	if path == "" {
		path = rootCmd.Name() + "." + sh.ext
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := sh.gen(rootCmd, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s completions: %w", sh.name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.For(out).Message("Wrote"), path)
	return nil
}
