package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"othello/bot"
)

var vetCmd = &cobra.Command{
	Use:   "vet <file.lua>",
	Short: "Statically vet a bot source file",
	Long: `Run the static safety checks on a Lua bot source without uploading it.

The exit code is non-zero when the source would be rejected, so the command
can be used in scripts and CI.`,
	Args: cobra.ExactArgs(1),
	RunE: runVet,
}

func init() {
	rootCmd.AddCommand(vetCmd)
}

func runVet(cmd *cobra.Command, args []string) error {
	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	violations := bot.Vet(string(source), filepath.Base(path))
	if len(violations) == 0 {
		color.Green("✓ %s passed all checks", path)
		return nil
	}

	color.Red("✗ %s rejected with %d violation(s):", path, len(violations))
	for _, v := range violations {
		fmt.Printf("  %s line %d: %s\n", color.YellowString(string(v.Kind)), v.Line, v.Description)
		if v.Snippet != "" {
			fmt.Printf("    %s\n", v.Snippet)
		}
	}
	return fmt.Errorf("%d violation(s) found", len(violations))
}
