package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shepherd/internal/config"
	"github.com/dukerupert/shepherd/internal/theme"
)

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List monthly themes",
	Args:  cobra.NoArgs,
	RunE:  runThemes,
}

func runThemes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := theme.Load(cfg.ThemesFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, t := range catalog.All() {
		fmt.Fprintf(out, "%s  %s\n", t.Month, t.Name)
		for _, q := range t.Questions {
			fmt.Fprintf(out, "         • %s\n", q)
		}
	}
	fmt.Fprintf(out, "\nOther months use %q.\n", theme.Default.Name)
	if cfg.ThemesFile == "" {
		fmt.Fprintf(out, "Set themes_file in %s to add your own.\n", config.DefaultPath())
	}
	return nil
}
