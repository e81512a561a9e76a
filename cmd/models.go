package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/toolbridge/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	Long:  `List the models each configured provider serves, and which provider a model resolves to.`,
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := providers.NewRegistryFromConfig(cfg)
	if err != nil {
		return err
	}

	for _, p := range registry.Providers() {
		name := p.Name
		if name == cfg.DefaultProvider {
			color.Green("%s (default, %s) %s", name, p.Format, p.BaseURL)
		} else {
			color.Blue("%s (%s) %s", name, p.Format, p.BaseURL)
		}
		for _, model := range p.Models {
			resolved, err := registry.Resolve(model)
			if err == nil && resolved.Name != name {
				fmt.Printf("  - %s (served by %s)\n", model, resolved.Name)
				continue
			}
			fmt.Printf("  - %s\n", model)
		}
	}
	return nil
}
